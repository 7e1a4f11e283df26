package collabclient

import "novelsync-be/internal/entity"

// OnParticipantsChanged registers fn to receive the roster whenever it
// changes.
func (s *Session) OnParticipantsChanged(fn func([]entity.Participant)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participantListeners = append(s.participantListeners, fn)
}

// Participants returns the current roster. Offline it holds only the local
// user.
func (s *Session) Participants() []entity.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantsLocked()
}

func (s *Session) participantsLocked() []entity.Participant {
	return append([]entity.Participant{}, s.participants...)
}

func (s *Session) setParticipants(participants []entity.Participant) {
	s.mu.Lock()
	s.participants = append([]entity.Participant{}, participants...)
	present := make(map[string]bool, len(participants))
	for _, p := range participants {
		present[p.UserID] = true
	}
	for userID := range s.cursors {
		if !present[userID] {
			delete(s.cursors, userID)
		}
	}
	roster := s.participantsLocked()
	listeners := append([]func([]entity.Participant){}, s.participantListeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(roster)
	}
}

// handles lists the distinct mention handles of the roster.
func (s *Session) handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(s.participants))
	out := make([]string, 0, len(s.participants))
	for _, p := range s.participants {
		if p.Handle == "" || seen[p.Handle] {
			continue
		}
		seen[p.Handle] = true
		out = append(out, p.Handle)
	}
	return out
}
