package collabclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
	"novelsync-be/pkg/mention"
)

// CommentDraft is what the user typed in the comment box. Naming a thread
// or a parent makes it a reply; otherwise the current selection anchors a
// new thread.
type CommentDraft struct {
	Text     string
	Format   string
	ThreadID string
	ParentID string
}

// pendingWrite is a write waiting for a way to the relay.
type pendingWrite struct {
	comment  *dto.CommentAddPayload
	status   *dto.CommentUpdatePayload
	activity *entity.Activity
}

// BeginComposition freezes the mention handles offered while the user
// writes a comment, so people leaving mid-sentence can still be mentioned.
func (s *Session) BeginComposition() {
	snap := mention.NewSnapshot(s.handles()...)
	s.mu.Lock()
	s.composing = &snap
	s.mu.Unlock()
}

func (s *Session) takeSnapshot() mention.Snapshot {
	s.mu.Lock()
	snap := s.composing
	s.composing = nil
	s.mu.Unlock()

	if snap != nil {
		return *snap
	}
	return mention.NewSnapshot(s.handles()...)
}

func (s *Session) selectionFor(rng entity.Range) entity.Selection {
	runes := []rune(s.buffer.Content())
	rng = rng.Normalize()
	if rng.End > len(runes) {
		rng.End = len(runes)
	}
	if rng.Start > rng.End {
		rng.Start = rng.End
	}
	return entity.Selection{
		Start:     rng.Start,
		End:       rng.End,
		Text:      string(runes[rng.Start:rng.End]),
		SectionID: s.SectionID(),
	}
}

// AddComment posts draft. Invalid drafts are refused locally with a notice
// and nothing is sent.
func (s *Session) AddComment(ctx context.Context, draft CommentDraft) (*entity.Comment, error) {
	text := strings.TrimSpace(draft.Text)
	if text == "" {
		s.notices.raise(Notice{Kind: NoticeError, Message: "Write something before posting a comment."})
		return nil, ErrEmptyComment
	}

	reply := draft.ThreadID != "" || draft.ParentID != ""

	var sel entity.Selection
	if rng, ok := s.buffer.SelectedRange(); ok && !rng.Empty() {
		sel = s.selectionFor(rng)
	}
	if !reply && sel.Empty() {
		s.notices.raise(Notice{Kind: NoticeError, Message: "Select the passage you want to comment on."})
		return nil, ErrSelectionRequired
	}

	format := draft.Format
	if format == "" {
		format = entity.CommentFormatPlain
	}

	comment := &entity.Comment{
		ID:        uuid.NewString(),
		ProjectID: s.cfg.ProjectID,
		UserID:    s.self.UserID,
		UserName:  s.self.UserName,
		Text:      text,
		Format:    format,
		Selection: sel,
		Mentions:  s.takeSnapshot().Extract(text),
		Status:    entity.CommentStatusOpen,
		CreatedAt: s.now(),
	}
	comment.ThreadID = comment.ID

	if reply {
		parentID := draft.ParentID
		if parentID == "" {
			parentID = draft.ThreadID
		}
		comment.ParentID = &parentID
		comment.ThreadID = draft.ThreadID
		if parent := s.comment(parentID); parent != nil {
			comment.ThreadID = parent.ThreadID
			comment.Selection = parent.Selection
		}
		if comment.ThreadID == "" {
			comment.ThreadID = parentID
		}
	}

	s.mu.Lock()
	s.mentioned[comment.ID] = true
	s.mu.Unlock()
	s.storeComment(comment)

	s.queue(pendingWrite{comment: &dto.CommentAddPayload{
		ProjectID: s.cfg.ProjectID,
		Text:      comment.Text,
		Format:    comment.Format,
		Selection: comment.Selection,
		UserID:    comment.UserID,
		UserName:  comment.UserName,
		Mentions:  comment.Mentions,
		ThreadID:  draft.ThreadID,
		ParentID:  draft.ParentID,
		ID:        comment.ID,
	}})
	s.flushOutbox(ctx)
	return comment, nil
}

// UpdateThreadStatus opens or resolves threadID.
func (s *Session) UpdateThreadStatus(ctx context.Context, threadID, status string) error {
	if status != entity.CommentStatusOpen && status != entity.CommentStatusResolved {
		return fmt.Errorf("invalid status %q", status)
	}
	root := s.threadRoot(threadID)
	if root == nil {
		return ErrThreadNotFound
	}

	updated := *root
	updated.Status = status
	s.storeComment(&updated)

	s.queue(pendingWrite{status: &dto.CommentUpdatePayload{
		ProjectID: s.cfg.ProjectID,
		CommentID: root.ID,
		Status:    status,
		UserID:    s.self.UserID,
	}})
	s.flushOutbox(ctx)
	return nil
}

// Threads returns the known comments grouped by thread.
func (s *Session) Threads() []entity.Thread {
	s.mu.Lock()
	comments := make([]*entity.Comment, 0, len(s.comments))
	for _, c := range s.comments {
		comments = append(comments, c)
	}
	s.mu.Unlock()
	return entity.GroupThreads(comments)
}

// FocusThread highlights the passage a thread is anchored to and returns
// where it sits in the viewport.
func (s *Session) FocusThread(threadID string) (x, y int, ok bool) {
	root := s.threadRoot(threadID)
	if root == nil || root.Selection.SectionID != s.SectionID() {
		return 0, 0, false
	}
	rng := root.Selection.Range()
	s.buffer.HighlightRange(rng)
	return s.buffer.ViewportPositionOf(rng)
}

func (s *Session) threadRoot(threadID string) *entity.Comment {
	for _, t := range s.Threads() {
		if t.ThreadID == threadID {
			return t.Root
		}
	}
	return nil
}

func (s *Session) comment(id string) *entity.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments[id]
}

func (s *Session) storeComment(c *entity.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ID] = c
}

func (s *Session) handleCommentAdded(c *entity.Comment) {
	s.storeComment(c)
	if c.UserID != s.self.UserID && c.MentionsHandle(s.Handle()) {
		s.raiseMention(c.ID, c.ThreadID, c.UserName)
	}
}

// raiseMention shows a mention once per comment, however many times it is
// announced.
func (s *Session) raiseMention(commentID, threadID, actor string) {
	s.mu.Lock()
	if s.mentioned[commentID] {
		s.mu.Unlock()
		return
	}
	s.mentioned[commentID] = true
	s.mu.Unlock()

	if actor == "" {
		actor = "Someone"
	}
	s.notices.raise(Notice{
		Kind:      NoticeMention,
		Message:   fmt.Sprintf("%s mentioned you in a comment", actor),
		CommentID: commentID,
		ThreadID:  threadID,
	})
}

func (s *Session) queue(w pendingWrite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, w)
}

// PendingWrites is the number of writes still waiting for the relay.
func (s *Session) PendingWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

// flushOutbox sends queued writes over the socket, or through the fallback
// while offline. Writes that fail stay queued in order.
func (s *Session) flushOutbox(ctx context.Context) {
	s.mu.Lock()
	pending := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	var failed []pendingWrite
	for i, w := range pending {
		if err := s.deliver(ctx, w); err != nil {
			failed = append(failed, pending[i:]...)
			s.logger.Warn(module, "Write kept for retry", map[string]interface{}{
				"pending": len(failed),
				"error":   err.Error(),
			})
			break
		}
	}

	if len(failed) > 0 {
		s.mu.Lock()
		s.outbox = append(failed, s.outbox...)
		s.mu.Unlock()
	}
}

func (s *Session) deliver(ctx context.Context, w pendingWrite) error {
	online := s.online()
	if !online && s.fallback == nil {
		return ErrTransportUnavailable
	}

	switch {
	case w.comment != nil:
		if online {
			return s.sendEvent(ctx, dto.EventCommentAdd, *w.comment)
		}
		c, err := s.fallback.AddComment(ctx, *w.comment)
		if err != nil {
			return err
		}
		if c != nil {
			s.storeComment(c)
		}
	case w.status != nil:
		if online {
			return s.sendEvent(ctx, dto.EventCommentUpdate, *w.status)
		}
		c, err := s.fallback.UpdateCommentStatus(ctx, w.status.ProjectID, w.status.CommentID, w.status.Status)
		if err != nil {
			return err
		}
		if c != nil {
			s.storeComment(c)
		}
	case w.activity != nil:
		if online {
			return s.sendEvent(ctx, dto.EventActivity, *w.activity)
		}
		a := w.activity
		return s.fallback.RecordActivity(ctx, a.ProjectID, dto.CreateActivityRequest{
			ID:        a.ID,
			Type:      a.Type,
			UserName:  a.UserName,
			ThreadID:  a.ThreadID,
			CommentID: a.CommentID,
			SectionID: a.SectionID,
			Text:      a.Text,
		})
	}
	return nil
}
