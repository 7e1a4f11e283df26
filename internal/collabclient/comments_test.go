package collabclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
)

func TestComments_RejectedLocally(t *testing.T) {
	s, tr, buf := connectedSession(t, "The cat sat.")
	ctx := context.Background()

	_, err := s.AddComment(ctx, CommentDraft{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyComment)

	_, err = s.AddComment(ctx, CommentDraft{Text: "Needs a hook"})
	assert.ErrorIs(t, err, ErrSelectionRequired)

	// A caret is not a selection.
	buf.selectRange(3, 3)
	_, err = s.AddComment(ctx, CommentDraft{Text: "Needs a hook"})
	assert.ErrorIs(t, err, ErrSelectionRequired)

	assert.Empty(t, tr.ofType(dto.EventCommentAdd))
	assert.Equal(t, []NoticeKind{NoticeError, NoticeError, NoticeError}, kinds(s.Notices()))
	assert.Empty(t, s.Threads())
}

func TestComments_RootUsesCompositionSnapshot(t *testing.T) {
	s, tr, buf := connectedSession(t, "The cat sat.")
	ctx := context.Background()
	buf.selectRange(4, 7)

	s.BeginComposition()
	// Bob leaves while Alice is still typing.
	s.handleFrame(mustFrame(t, dto.EventParticipants, dto.ParticipantsPayload{
		Participants: []entity.Participant{alice},
	}))

	comment, err := s.AddComment(ctx, CommentDraft{Text: "@bob @carol look at this"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, comment.Mentions)
	assert.Equal(t, comment.ID, comment.ThreadID)
	assert.True(t, comment.IsRoot())

	sent := tr.ofType(dto.EventCommentAdd)
	require.Len(t, sent, 1)
	var p dto.CommentAddPayload
	require.NoError(t, sent[0].Decode(&p))
	assert.Equal(t, comment.ID, p.ID)
	assert.Equal(t, "cat", p.Selection.Text)
	assert.Equal(t, "0", p.Selection.SectionID)
	assert.Equal(t, []string{"bob"}, p.Mentions)

	// Without a snapshot the current roster applies.
	buf.selectRange(0, 3)
	second, err := s.AddComment(ctx, CommentDraft{Text: "@bob again"})
	require.NoError(t, err)
	assert.Empty(t, second.Mentions)

	// The relay echo replaces the optimistic copy.
	echo := *comment
	echo.CreatedAt = comment.CreatedAt.Add(time.Millisecond)
	s.handleFrame(mustFrame(t, dto.EventCommentAdded, echo))
	assert.Len(t, s.Threads(), 2)
	assert.NotContains(t, kinds(s.Notices()), NoticeMention)
}

func TestComments_ReplyJoinsThread(t *testing.T) {
	s, tr, buf := connectedSession(t, "The cat sat.")
	ctx := context.Background()
	buf.selectRange(4, 7)

	root, err := s.AddComment(ctx, CommentDraft{Text: "Which cat?"})
	require.NoError(t, err)

	// Replies need no selection of their own.
	buf.selectRange(0, 0)
	reply, err := s.AddComment(ctx, CommentDraft{Text: "The black one", ThreadID: root.ThreadID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)
	assert.Equal(t, root.ThreadID, reply.ThreadID)
	assert.Equal(t, root.Selection, reply.Selection)

	sent := tr.ofType(dto.EventCommentAdd)
	require.Len(t, sent, 2)
	var p dto.CommentAddPayload
	require.NoError(t, sent[1].Decode(&p))
	assert.Equal(t, root.ThreadID, p.ThreadID)

	threads := s.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, root.ID, threads[0].Root.ID)
	require.Len(t, threads[0].Replies, 1)
}

func TestComments_MentionNoticeIsOneShot(t *testing.T) {
	s, _, _ := connectedSession(t, "The cat sat.")

	fromBob := entity.Comment{
		ID:        "c-1",
		ProjectID: "novel",
		ThreadID:  "c-1",
		UserID:    "user-b",
		UserName:  "Bob",
		Text:      "@alice what do you think?",
		Mentions:  []string{"alice"},
		Status:    entity.CommentStatusOpen,
		Selection: entity.Selection{Start: 4, End: 7, Text: "cat", SectionID: "0"},
		CreatedAt: time.Now(),
	}

	s.handleFrame(mustFrame(t, dto.EventCommentAdded, fromBob))
	s.handleFrame(mustFrame(t, dto.EventMention, dto.MentionPayload{
		ProjectID: "novel", CommentID: "c-1", ThreadID: "c-1", Handle: "alice", ActorName: "Bob",
	}))
	s.handleFrame(mustFrame(t, dto.EventCommentAdded, fromBob))

	notices := s.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeMention, notices[0].Kind)
	assert.Equal(t, "c-1", notices[0].CommentID)
	assert.Equal(t, "Bob mentioned you in a comment", notices[0].Message)

	assert.True(t, s.DismissNotice(notices[0].ID))
	assert.False(t, s.DismissNotice(notices[0].ID))
	s.handleFrame(mustFrame(t, dto.EventCommentAdded, fromBob))
	assert.Empty(t, s.Notices())

	// Not mentioned, or mentioning oneself: nothing.
	other := fromBob
	other.ID, other.ThreadID, other.Mentions = "c-2", "c-2", []string{"bob"}
	s.handleFrame(mustFrame(t, dto.EventCommentAdded, other))
	own := fromBob
	own.ID, own.ThreadID, own.UserID = "c-3", "c-3", "user-a"
	s.handleFrame(mustFrame(t, dto.EventCommentAdded, own))
	assert.Empty(t, s.Notices())
}

func TestComments_UpdateThreadStatus(t *testing.T) {
	s, tr, buf := connectedSession(t, "The cat sat.")
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdateThreadStatus(ctx, "missing", entity.CommentStatusResolved), ErrThreadNotFound)

	buf.selectRange(4, 7)
	root, err := s.AddComment(ctx, CommentDraft{Text: "Which cat?"})
	require.NoError(t, err)

	assert.Error(t, s.UpdateThreadStatus(ctx, root.ThreadID, "archived"))
	require.NoError(t, s.UpdateThreadStatus(ctx, root.ThreadID, entity.CommentStatusResolved))

	updates := tr.ofType(dto.EventCommentUpdate)
	require.Len(t, updates, 1)
	var p dto.CommentUpdatePayload
	require.NoError(t, updates[0].Decode(&p))
	assert.Equal(t, root.ID, p.CommentID)
	assert.Equal(t, entity.CommentStatusResolved, p.Status)

	threads := s.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, entity.CommentStatusResolved, threads[0].Status)
}

func TestComments_FocusThread(t *testing.T) {
	s, _, buf := connectedSession(t, "The cat sat.")
	ctx := context.Background()
	buf.selectRange(4, 7)

	root, err := s.AddComment(ctx, CommentDraft{Text: "Which cat?"})
	require.NoError(t, err)

	x, y, ok := s.FocusThread(root.ThreadID)
	require.True(t, ok)
	assert.Equal(t, 32, x)
	assert.Equal(t, 20, y)
	assert.Equal(t, []entity.Range{{Start: 4, End: 7}}, buf.highlights())

	require.NoError(t, s.SwitchSection(ctx, "1", "Chapter one."))
	_, _, ok = s.FocusThread(root.ThreadID)
	assert.False(t, ok)
}

func TestComments_OfflineWritesUseFallback(t *testing.T) {
	fb := &fakeFallback{}
	buf := newFakeBuffer("The cat sat.")
	s := NewSession(testConfig(), aliceIdentity, buf, nil, fb, nil)
	ctx := context.Background()
	s.Connect(ctx)
	require.True(t, s.Offline())

	buf.selectRange(4, 7)
	root, err := s.AddComment(ctx, CommentDraft{Text: "Which cat?"})
	require.NoError(t, err)
	require.Len(t, fb.comments, 1)
	assert.Equal(t, root.ID, fb.comments[0].ID)
	assert.Equal(t, 0, s.PendingWrites())

	fb.setErr(errors.New("relay down"))
	s.Log(entity.ActivitySectionChanged, "Moved to chapter zero", "0")
	require.NoError(t, s.UpdateThreadStatus(ctx, root.ThreadID, entity.CommentStatusResolved))
	assert.Equal(t, 2, s.PendingWrites())

	fb.setErr(nil)
	s.Log(entity.ActivitySectionChanged, "Back again", "0")
	assert.Equal(t, 0, s.PendingWrites())
	require.Len(t, fb.activities, 2)
	assert.Equal(t, "Moved to chapter zero", fb.activities[0].Text)
	assert.Equal(t, []string{root.ID + ":resolved"}, fb.statuses)
}

func TestComments_OfflineWithoutFallbackKeepsWrites(t *testing.T) {
	buf := newFakeBuffer("The cat sat.")
	s := NewSession(testConfig(), aliceIdentity, buf, nil, nil, nil)
	s.Connect(context.Background())

	buf.selectRange(4, 7)
	_, err := s.AddComment(context.Background(), CommentDraft{Text: "Which cat?"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.PendingWrites())
	assert.Len(t, s.Threads(), 1)
}
