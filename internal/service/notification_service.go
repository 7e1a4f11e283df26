package service

import (
	"context"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/pkg/mailer"
	"novelsync-be/pkg/events"
)

const mentionDurable = "collab-mention-worker"

// EventSubscriber is the consuming side of the event bus.
type EventSubscriber interface {
	Subscribe(ctx context.Context, eventType, durable string, handler events.Handler) error
}

// NotificationService turns mention events into a push to the mentioned
// collaborators and, when they have an e-mail address, a mail.
type NotificationService struct {
	subscriber EventSubscriber
	presence   IPresenceService
	delivery   CollabDelivery
	mailer     mailer.IEmailService
	logger     logger.ILogger
}

func NewNotificationService(sub EventSubscriber, presence IPresenceService, delivery CollabDelivery, mail mailer.IEmailService, log logger.ILogger) *NotificationService {
	return &NotificationService{
		subscriber: sub,
		presence:   presence,
		delivery:   delivery,
		mailer:     mail,
		logger:     log,
	}
}

func (s *NotificationService) HasSubscriber() bool {
	return s.subscriber != nil
}

// Start attaches the worker to the bus. Delivery stops with ctx.
func (s *NotificationService) Start(ctx context.Context) error {
	if err := s.subscriber.Subscribe(ctx, events.TypeCommentMention, mentionDurable, s.HandleMessage); err != nil {
		s.logger.Error("NotificationService", "Failed to start mention worker", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("NotificationService", "Mention worker started", map[string]interface{}{"durable": mentionDurable})
	return nil
}

// Publish lets the service stand in for the bus when NATS is unavailable:
// events are handled synchronously.
func (s *NotificationService) Publish(ctx context.Context, event events.Event) error {
	msg, err := events.NewMessage(event)
	if err != nil {
		return err
	}
	return s.HandleMessage(ctx, msg)
}

func (s *NotificationService) HandleMessage(ctx context.Context, msg events.Message) error {
	if msg.Type != events.TypeCommentMention {
		s.logger.Debug("NotificationService", "Ignoring event", map[string]interface{}{"type": msg.Type})
		return nil
	}

	var evt events.CommentMention
	if err := msg.Decode(&evt); err != nil {
		// Redelivering a malformed body cannot help.
		s.logger.Warn("NotificationService", "Dropping malformed mention", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if evt.ProjectID == "" || evt.Handle == "" {
		s.logger.Warn("NotificationService", "Mention event without project or handle", map[string]interface{}{"comment_id": evt.CommentID})
		return nil
	}

	s.notify(evt)
	return nil
}

func (s *NotificationService) notify(evt events.CommentMention) {
	notice := dto.MentionPayload{
		ProjectID: evt.ProjectID,
		CommentID: evt.CommentID,
		ThreadID:  evt.ThreadID,
		SectionID: evt.SectionID,
		Handle:    evt.Handle,
		ActorID:   evt.ActorID,
		ActorName: evt.ActorName,
		Text:      evt.Excerpt,
	}

	recipients := s.presence.ByHandle(evt.ProjectID, evt.Handle)
	s.logger.Info("NotificationService", "Recipients resolved", map[string]interface{}{
		"count":  len(recipients),
		"handle": evt.Handle,
	})

	for _, p := range recipients {
		if p.UserID == evt.ActorID {
			continue
		}

		emitUser(s.delivery, p.UserID, dto.EventMention, notice)

		if s.mailer == nil || p.Email == "" {
			continue
		}
		if err := s.mailer.SendMentionNotice(p.Email, evt.ActorName, evt.ProjectID, evt.Excerpt); err != nil {
			s.logger.Warn("NotificationService", "Failed to mail mention notice", map[string]interface{}{
				"user_id": p.UserID,
				"error":   err.Error(),
			})
		}
	}
}
