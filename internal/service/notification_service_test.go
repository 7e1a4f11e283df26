package service

import (
	"context"
	"testing"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to, actor, projectID, excerpt string
}

type recordingMailer struct {
	sent []sentMail
}

func (m *recordingMailer) SendMentionNotice(toEmail, actorName, projectID, excerpt string) error {
	m.sent = append(m.sent, sentMail{toEmail, actorName, projectID, excerpt})
	return nil
}

func mentionEvent(handle, actorID string) events.CommentMention {
	return events.CommentMention{
		ProjectID: "novel",
		CommentID: "c-1",
		ThreadID:  "c-1",
		Handle:    handle,
		ActorID:   actorID,
		ActorName: "Alice",
		Excerpt:   "@bob look here",
	}
}

type fakeSubscriber struct {
	eventType, durable string
	handler            events.Handler
}

func (f *fakeSubscriber) Subscribe(_ context.Context, eventType, durable string, handler events.Handler) error {
	f.eventType, f.durable, f.handler = eventType, durable, handler
	return nil
}

func TestNotificationService_PushesAndMails(t *testing.T) {
	ctx := context.Background()
	delivery := &recordingDelivery{}
	mail := &recordingMailer{}
	presence := NewPresenceService()
	presence.Join(JoinInput{ProjectID: "novel", SectionID: "0", ConnectionID: "c1", UserID: "a", UserName: "Alice"})
	presence.Join(JoinInput{ProjectID: "novel", SectionID: "0", ConnectionID: "c2", UserID: "b", UserName: "Bob", UserEmail: "bob@example.com"})
	presence.Join(JoinInput{ProjectID: "novel", SectionID: "1", ConnectionID: "c3", UserID: "b", UserName: "Bob", UserEmail: "bob@example.com"})

	svc := NewNotificationService(nil, presence, delivery, mail, logger.NewNopLogger())
	require.False(t, svc.HasSubscriber())

	require.NoError(t, svc.Publish(ctx, mentionEvent("bob", "a")))

	pushed := delivery.ofType(dto.EventMention)
	require.Len(t, pushed, 1, "one push per user; the hub fans out to each device")
	assert.Equal(t, "user", pushed[0].Scope)
	assert.Equal(t, "b", pushed[0].Target)

	var notice dto.MentionPayload
	require.NoError(t, pushed[0].decode(&notice))
	assert.Equal(t, "Alice", notice.ActorName)
	assert.Equal(t, "c-1", notice.CommentID)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "bob@example.com", mail.sent[0].to)
}

func TestNotificationService_SkipsSelfAndOtherEvents(t *testing.T) {
	ctx := context.Background()
	delivery := &recordingDelivery{}
	presence := NewPresenceService()
	presence.Join(JoinInput{ProjectID: "novel", SectionID: "0", ConnectionID: "c1", UserID: "a", UserName: "Alice"})

	svc := NewNotificationService(nil, presence, delivery, nil, logger.NewNopLogger())

	require.NoError(t, svc.Publish(ctx, mentionEvent("alice", "a")))
	require.NoError(t, svc.Publish(ctx, mentionEvent("nobody", "a")))
	require.NoError(t, svc.HandleMessage(ctx, events.Message{Type: "SOMETHING_ELSE"}))
	require.NoError(t, svc.HandleMessage(ctx, events.Message{Type: events.TypeCommentMention, Body: []byte("{")}))

	assert.Empty(t, delivery.ofType(dto.EventMention))
}

func TestNotificationService_StartSubscribes(t *testing.T) {
	ctx := context.Background()
	delivery := &recordingDelivery{}
	presence := NewPresenceService()
	presence.Join(JoinInput{ProjectID: "novel", SectionID: "0", ConnectionID: "c2", UserID: "b", UserName: "Bob"})
	sub := &fakeSubscriber{}

	svc := NewNotificationService(sub, presence, delivery, nil, logger.NewNopLogger())
	require.True(t, svc.HasSubscriber())
	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, events.TypeCommentMention, sub.eventType)
	assert.Equal(t, "collab-mention-worker", sub.durable)

	msg, err := events.NewMessage(mentionEvent("bob", "a"))
	require.NoError(t, err)
	require.NoError(t, sub.handler(ctx, msg))
	assert.Len(t, delivery.ofType(dto.EventMention), 1)
}
