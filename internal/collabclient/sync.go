package collabclient

import (
	"context"

	"github.com/google/uuid"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
	"novelsync-be/pkg/patch"
)

// LocalEdit reports the buffer's new text after the user typed. It returns
// false when the edit was ignored: an echo of a remote update being applied,
// or no change at all.
func (s *Session) LocalEdit(content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateApplyingRemote {
		return false
	}
	if content == s.local {
		return false
	}
	s.local = content

	if s.conn != connOnline {
		return true
	}
	s.scheduler.Schedule(s.sectionID, s.base, content)
	return true
}

// flushUpdate is the scheduler's flush callback.
func (s *Session) flushUpdate(out patch.Outgoing) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if out.SectionID != s.sectionID || s.conn != connOnline || out.Patch == "" {
		s.mu.Unlock()
		return
	}
	if err := s.transition(stateIdle, stateBroadcastingLocal); err != nil {
		s.mu.Unlock()
		s.logger.Warn(module, "Skipping broadcast", map[string]interface{}{"error": err.Error()})
		return
	}
	// Peers will hold this text once the update lands.
	s.base = out.Content
	if _, content, ok := s.scheduler.Pending(out.SectionID); ok {
		s.scheduler.Rebase(out.SectionID, out.Content, content)
	}
	s.mu.Unlock()

	err := s.sendEvent(context.Background(), dto.EventContentUpdate, dto.ContentUpdatePayload{
		ProjectID: s.cfg.ProjectID,
		SectionID: out.SectionID,
		Patch:     out.Patch,
		Content:   out.Content,
		UserID:    s.self.UserID,
	})

	s.mu.Lock()
	s.transition(stateBroadcastingLocal, stateIdle)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn(module, "Failed to broadcast update", map[string]interface{}{
			"section_id": out.SectionID,
			"error":      err.Error(),
		})
	}
}

// remoteText reconstructs the text the sender now holds. fromBase reports
// whether the sender diverged from our base, which makes base a valid
// ancestor for a three-way merge.
func remoteText(p dto.ContentUpdatePayload, base string) (remote string, known, fromBase bool) {
	onBase, ok, err := patch.Apply(p.Patch, base)
	fits := p.Patch != "" && err == nil && ok
	switch {
	case p.Content != "":
		return p.Content, true, p.Patch == "" || (fits && onBase == p.Content)
	case fits:
		return onBase, true, true
	}
	return "", false, false
}

// applyRemoteUpdate folds a peer's update into the local buffer. Unsent
// local edits are merged three ways against the shared base; otherwise the
// patch is tried on the local text and the full content used when it does
// not apply.
func (s *Session) applyRemoteUpdate(p dto.ContentUpdatePayload) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if p.SectionID != s.sectionID {
		s.mu.Unlock()
		return
	}
	if err := s.transition(stateIdle, stateApplyingRemote); err != nil {
		s.mu.Unlock()
		s.logger.Warn(module, "Dropping remote update", map[string]interface{}{"error": err.Error()})
		return
	}

	base, local := s.base, s.local
	dirty := local != base
	remote, known, fromBase := remoteText(p, base)

	var next string
	var conflicts int
	switch {
	case known && remote == local:
		// The update carries text we already hold, e.g. a peer's copy of
		// the merge we made ourselves.
		next = local
	case known && dirty && fromBase:
		result := s.merger.Merge(base, local, remote)
		next = result.Merged
		conflicts = len(result.Conflicts)
	default:
		applied, ok, err := patch.Apply(p.Patch, local)
		switch {
		case p.Patch != "" && err == nil && ok:
			next = applied
		case p.Content != "" && dirty:
			result := s.merger.Merge(base, local, p.Content)
			next = result.Merged
			conflicts = len(result.Conflicts)
		case p.Content != "":
			next = p.Content
		default:
			s.state = stateIdle
			s.mu.Unlock()
			s.logger.Warn(module, "Remote update could not be applied", map[string]interface{}{
				"section_id": p.SectionID,
				"user_id":    p.UserID,
			})
			return
		}
	}

	// Without the sender's text the base stays put so unsent edits are
	// still covered by the pending patch.
	if known {
		s.base = remote
	}
	s.local = next
	switch _, _, pending := s.scheduler.Pending(p.SectionID); {
	case next == s.base:
		s.scheduler.Cancel(p.SectionID)
	case pending:
		s.scheduler.Rebase(p.SectionID, s.base, next)
	default:
		s.scheduler.Schedule(p.SectionID, s.base, next)
	}
	s.mu.Unlock()

	if next != s.buffer.Content() {
		s.buffer.SetContent(next)
	}

	s.mu.Lock()
	s.transition(stateApplyingRemote, stateIdle)
	s.mu.Unlock()

	if conflicts > 0 {
		s.recordMergeConflict(p, conflicts)
	}
}

func (s *Session) recordMergeConflict(p dto.ContentUpdatePayload, conflicts int) {
	s.logger.Info(module, "Merged concurrent edits with conflicts", map[string]interface{}{
		"section_id": p.SectionID,
		"conflicts":  conflicts,
	})
	s.notices.raise(Notice{
		Kind:    NoticeMergeConflict,
		Message: "Your edits overlapped with a collaborator's. Your version was kept where they clashed.",
	})
	s.Log(entity.ActivityMergeConflict, "Concurrent edits merged in section "+p.SectionID, p.SectionID)
}

// handleSectionChange only acts on the relay's correction of our own copy;
// peers moving around are reflected through the roster.
func (s *Session) handleSectionChange(p dto.SectionChangePayload) {
	if p.Content == "" {
		return
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if p.SectionID != s.sectionID || p.Content == s.local {
		s.mu.Unlock()
		return
	}
	s.scheduler.Cancel(p.SectionID)
	s.base = p.Content
	s.local = p.Content
	s.state = stateApplyingRemote
	s.mu.Unlock()

	s.buffer.SetContent(p.Content)

	s.mu.Lock()
	s.state = stateIdle
	s.mu.Unlock()
}

// SwitchSection moves the local view to sectionID whose text is content.
// Pending edits of the old section are sent first and held locks released.
func (s *Session) SwitchSection(ctx context.Context, sectionID, content string) error {
	s.mu.Lock()
	old := s.sectionID
	s.mu.Unlock()
	if old == sectionID {
		return nil
	}

	s.scheduler.Flush(old)
	s.scheduler.Cancel(old)
	s.locks.ReleaseAll(ctx)

	s.applyMu.Lock()
	s.mu.Lock()
	s.sectionID = sectionID
	s.base = content
	s.local = content
	s.mu.Unlock()
	s.applyMu.Unlock()

	if !s.online() {
		return nil
	}
	return s.sendEvent(ctx, dto.EventSectionChange, dto.SectionChangePayload{
		ProjectID: s.cfg.ProjectID,
		SectionID: sectionID,
		UserID:    s.self.UserID,
		Content:   content,
	})
}

// Select reports a selection change in the current section. Selecting
// inside a peer's lock is refused; a non-empty selection claims a lock and
// losing the selection gives it back.
func (s *Session) Select(ctx context.Context, rng entity.Range) bool {
	sectionID := s.SectionID()
	rng = rng.Normalize()

	if !s.locks.CanSelect(sectionID, rng) {
		return false
	}

	if rng.Empty() {
		s.locks.ReleaseAll(ctx)
	} else if err := s.locks.RequestLock(ctx, sectionID, rng); err != nil && err != ErrTransportUnavailable {
		return false
	}

	if s.online() {
		r := rng
		s.sendEvent(ctx, dto.EventCursor, dto.CursorPayload{
			ProjectID: s.cfg.ProjectID,
			UserID:    s.self.UserID,
			SectionID: sectionID,
			Range:     &r,
		})
	}
	return true
}

// ReplaceSelection overwrites the selected text unless a peer holds it.
func (s *Session) ReplaceSelection(text string) bool {
	rng, ok := s.buffer.SelectedRange()
	if !ok || !s.locks.CanSelect(s.SectionID(), rng) {
		return false
	}
	s.buffer.ReplaceSelectedText(text)
	s.LocalEdit(s.buffer.Content())
	return true
}

// InsertAtCursor types text at the caret unless a peer holds that spot.
func (s *Session) InsertAtCursor(text string) bool {
	if rng, ok := s.buffer.SelectedRange(); ok && !s.locks.CanSelect(s.SectionID(), rng) {
		return false
	}
	s.buffer.InsertTextAtCursor(text)
	s.LocalEdit(s.buffer.Content())
	return true
}

// Log appends a local activity entry and shares it. The relay echoes it
// back under the same ID, which the feed collapses.
func (s *Session) Log(activityType, text, sectionID string) entity.Activity {
	a := entity.Activity{
		ID:        uuid.NewString(),
		ProjectID: s.cfg.ProjectID,
		Type:      activityType,
		UserID:    s.self.UserID,
		UserName:  s.self.UserName,
		SectionID: sectionID,
		Text:      text,
		CreatedAt: s.now(),
	}
	s.activity.Append(a)

	s.queue(pendingWrite{activity: &a})
	s.flushOutbox(context.Background())
	return a
}

// Activities returns the local feed, most recent first.
func (s *Session) Activities() []entity.Activity {
	return s.activity.Entries()
}
