package service

import (
	"sort"
	"strings"
	"sync"
	"time"

	"novelsync-be/internal/entity"
	"novelsync-be/pkg/mention"
)

// participantColors is the cursor/avatar palette. Colors are handed out in
// order, skipping those already in use in the project.
var participantColors = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#008080", "#9a6324",
}

type JoinInput struct {
	ProjectID    string
	SectionID    string
	ConnectionID string
	UserID       string
	UserName     string
	UserEmail    string
}

type IPresenceService interface {
	Join(input JoinInput) (entity.Participant, bool)
	Leave(projectID, connectionID string) (*entity.Participant, bool)
	ChangeSection(projectID, connectionID, sectionID string) (entity.Participant, string, bool)
	Lookup(projectID, connectionID string) (*entity.Participant, bool)
	Participants(projectID string) []entity.Participant
	Handles(projectID string) []string
	ByHandle(projectID, handle string) []entity.Participant
	ConnectionsOf(projectID, userID string) int
}

type presenceService struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*entity.Participant // projectID -> connectionID -> participant
	now   func() time.Time
}

func NewPresenceService() IPresenceService {
	return &presenceService{
		rooms: make(map[string]map[string]*entity.Participant),
		now:   time.Now,
	}
}

// Join registers the connection in the project roster. The second return
// value reports whether the joiner is the only viewer of its section, in
// which case its copy of the section may seed the relay.
func (s *presenceService) Join(input JoinInput) (entity.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[input.ProjectID]
	if !ok {
		room = make(map[string]*entity.Participant)
		s.rooms[input.ProjectID] = room
	}

	name := strings.TrimSpace(input.UserName)
	if name == "" {
		name = input.UserID
	}

	p := &entity.Participant{
		UserID:       input.UserID,
		DisplayName:  name,
		Email:        input.UserEmail,
		Handle:       mention.DeriveHandle(input.UserName, input.UserEmail),
		SectionID:    input.SectionID,
		ConnectionID: input.ConnectionID,
		JoinedAt:     s.now(),
	}
	p.Color = s.pickColor(room, input.UserID)

	alone := true
	for connID, other := range room {
		if connID != input.ConnectionID && other.SectionID == input.SectionID {
			alone = false
			break
		}
	}

	room[input.ConnectionID] = p
	return *p, alone
}

// pickColor reuses the color of another connection of the same user so
// their tabs render alike.
func (s *presenceService) pickColor(room map[string]*entity.Participant, userID string) string {
	used := make(map[string]bool, len(room))
	for _, p := range room {
		if p.UserID == userID {
			return p.Color
		}
		used[p.Color] = true
	}
	for _, c := range participantColors {
		if !used[c] {
			return c
		}
	}
	return participantColors[len(room)%len(participantColors)]
}

func (s *presenceService) Leave(projectID, connectionID string) (*entity.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[projectID]
	if !ok {
		return nil, false
	}
	p, ok := room[connectionID]
	if !ok {
		return nil, false
	}
	delete(room, connectionID)
	if len(room) == 0 {
		delete(s.rooms, projectID)
	}
	return p, true
}

// ChangeSection moves the participant and returns the section it left.
func (s *presenceService) ChangeSection(projectID, connectionID, sectionID string) (entity.Participant, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rooms[projectID][connectionID]
	if !ok {
		return entity.Participant{}, "", false
	}
	previous := p.SectionID
	p.SectionID = sectionID
	return *p, previous, true
}

func (s *presenceService) Lookup(projectID, connectionID string) (*entity.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.rooms[projectID][connectionID]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (s *presenceService) Participants(projectID string) []entity.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room := s.rooms[projectID]
	participants := make([]entity.Participant, 0, len(room))
	for _, p := range room {
		participants = append(participants, *p)
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].ConnectionID < participants[j].ConnectionID
		}
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return participants
}

func (s *presenceService) Handles(projectID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	handles := make([]string, 0, len(s.rooms[projectID]))
	for _, p := range s.rooms[projectID] {
		if !seen[p.Handle] {
			seen[p.Handle] = true
			handles = append(handles, p.Handle)
		}
	}
	sort.Strings(handles)
	return handles
}

// ByHandle returns one entry per user carrying the handle. Handles are not
// unique, so a mention may address several users.
func (s *presenceService) ByHandle(projectID, handle string) []entity.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle = mention.NormalizeHandle(handle)
	seen := make(map[string]bool)
	var matches []entity.Participant
	for _, p := range s.rooms[projectID] {
		if p.Handle == handle && !seen[p.UserID] {
			seen[p.UserID] = true
			matches = append(matches, *p)
		}
	}
	return matches
}

func (s *presenceService) ConnectionsOf(projectID, userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.rooms[projectID] {
		if p.UserID == userID {
			n++
		}
	}
	return n
}
