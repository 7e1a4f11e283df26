package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/repository/contract"
	"novelsync-be/pkg/activity"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IActivityService interface {
	// Record appends a new activity, fans it out and queues it for
	// persistence. It reports false for a replayed ID.
	Record(ctx context.Context, a entity.Activity) (entity.Activity, bool)
	// Remember appends an activity that is already persisted.
	Remember(a entity.Activity) bool
	Recent(ctx context.Context, projectID string, limit int) []entity.Activity
	Consume(ctx context.Context) error
}

type activityService struct {
	mu       sync.Mutex
	feeds    map[string]*activity.Log[entity.Activity]
	capacity int

	repo      contract.ActivityRepository
	pubSub    *gochannel.GoChannel
	topicName string
	delivery  CollabDelivery
	logger    logger.ILogger
	now       func() time.Time
}

func NewActivityService(
	repo contract.ActivityRepository,
	pubSub *gochannel.GoChannel,
	topicName string,
	capacity int,
	delivery CollabDelivery,
	log logger.ILogger,
) IActivityService {
	if capacity <= 0 {
		capacity = activity.DefaultCapacity
	}
	return &activityService{
		feeds:     make(map[string]*activity.Log[entity.Activity]),
		capacity:  capacity,
		repo:      repo,
		pubSub:    pubSub,
		topicName: topicName,
		delivery:  delivery,
		logger:    log,
		now:       time.Now,
	}
}

func (s *activityService) feed(ctx context.Context, projectID string) *activity.Log[entity.Activity] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.feeds[projectID]; ok {
		return f
	}

	f := activity.New(s.capacity, entity.ActivityKey)
	// Warm the feed from storage, oldest first so the feed keeps its order.
	if s.repo != nil {
		stored, err := s.repo.FindRecent(ctx, projectID, s.capacity)
		if err != nil {
			s.logger.Warn("ActivityService", "Failed to warm activity feed", map[string]interface{}{
				"project_id": projectID,
				"error":      err.Error(),
			})
		}
		for i := len(stored) - 1; i >= 0; i-- {
			f.Append(stored[i])
		}
	}
	s.feeds[projectID] = f
	return f
}

func (s *activityService) normalize(a entity.Activity) entity.Activity {
	if _, err := uuid.Parse(a.ID); err != nil {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	return a
}

func (s *activityService) Record(ctx context.Context, a entity.Activity) (entity.Activity, bool) {
	a = s.normalize(a)
	if !s.Remember(a) {
		return a, false
	}

	if s.pubSub != nil {
		payload, err := json.Marshal(a)
		if err == nil {
			err = s.pubSub.Publish(s.topicName, message.NewMessage(watermill.NewUUID(), payload))
		}
		if err != nil {
			s.logger.Error("ActivityService", "Failed to queue activity", map[string]interface{}{
				"activity_id": a.ID,
				"error":       err.Error(),
			})
		}
	}
	return a, true
}

func (s *activityService) Remember(a entity.Activity) bool {
	a = s.normalize(a)
	if !s.feed(context.Background(), a.ProjectID).Append(a) {
		return false
	}
	emitProject(s.delivery, a.ProjectID, "", dto.EventActivity, a)
	return true
}

func (s *activityService) Recent(ctx context.Context, projectID string, limit int) []entity.Activity {
	f := s.feed(ctx, projectID)
	if limit <= 0 {
		return f.Entries()
	}
	return f.Recent(limit)
}

// Consume persists queued activities until ctx is cancelled.
func (s *activityService) Consume(ctx context.Context) error {
	messages, err := s.pubSub.Subscribe(ctx, s.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (s *activityService) processMessage(ctx context.Context, msg *message.Message) {
	var a entity.Activity
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		s.logger.Error("ActivityService", "Failed to unmarshal activity", map[string]interface{}{"error": err.Error()})
		msg.Ack() // never retry a poison message
		return
	}

	if err := s.repo.Create(ctx, a); err != nil {
		s.logger.Error("ActivityService", "Failed to persist activity", map[string]interface{}{
			"activity_id": a.ID,
			"error":       err.Error(),
		})
		msg.Nack()
		return
	}
	msg.Ack()
}
