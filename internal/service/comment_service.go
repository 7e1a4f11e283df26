package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/pkg/serverutils"
	"novelsync-be/internal/repository/unitofwork"
	"novelsync-be/pkg/events"
	"novelsync-be/pkg/mention"

	"github.com/google/uuid"
)

// EventPublisher ships domain events to the notification worker.
// Implemented by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type AddCommentInput struct {
	ProjectID string           `validate:"required"`
	UserID    string           `validate:"required"`
	UserName  string           `validate:"max=255"`
	Text      string           `validate:"required,max=10000"`
	Format    string           `validate:"omitempty,oneof=plain rich"`
	Selection entity.Selection `validate:"-"`
	Mentions  []string
	ThreadID  string
	ParentID  string
	ID        string
}

type ICommentService interface {
	Add(ctx context.Context, input AddCommentInput) (*entity.Comment, error)
	UpdateStatus(ctx context.Context, projectID, commentID, status, userID, userName string) (*entity.Comment, error)
	List(ctx context.Context, projectID string) ([]*entity.Comment, error)
	Threads(ctx context.Context, projectID string) ([]entity.Thread, error)
}

type commentService struct {
	uowFactory unitofwork.RepositoryFactory
	presence   IPresenceService
	activities IActivityService
	publisher  EventPublisher
	delivery   CollabDelivery
	logger     logger.ILogger
	now        func() time.Time
}

func NewCommentService(
	uowFactory unitofwork.RepositoryFactory,
	presence IPresenceService,
	activities IActivityService,
	publisher EventPublisher,
	delivery CollabDelivery,
	log logger.ILogger,
) ICommentService {
	return &commentService{
		uowFactory: uowFactory,
		presence:   presence,
		activities: activities,
		publisher:  publisher,
		delivery:   delivery,
		logger:     log,
		now:        time.Now,
	}
}

func (s *commentService) Add(ctx context.Context, input AddCommentInput) (*entity.Comment, error) {
	input.Text = strings.TrimSpace(input.Text)
	if input.Text == "" {
		return nil, ErrEmptyComment
	}
	if err := serverutils.ValidateRequest(input); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	threadID := ""
	var parentID *string
	selection := input.Selection

	// A thread ID without a parent is a reply to the thread root.
	parentRef := input.ParentID
	if parentRef == "" && input.ThreadID != "" {
		parentRef = input.ThreadID
	}

	if parentRef != "" {
		parent, err := uow.CommentRepository().FindByID(ctx, input.ProjectID, parentRef)
		if err != nil {
			return nil, fmt.Errorf("load parent comment: %w", err)
		}
		if parent == nil {
			return nil, ErrParentNotFound
		}
		threadID = parent.ThreadID
		pid := parent.ID
		parentID = &pid
		if selection.Empty() {
			selection = parent.Selection
		}
	} else if selection.Empty() {
		return nil, ErrSelectionRequired
	}

	id := uuid.NewString()
	if proposed, err := uuid.Parse(input.ID); err == nil {
		existing, err := uow.CommentRepository().FindByID(ctx, input.ProjectID, proposed.String())
		if err != nil {
			return nil, fmt.Errorf("check comment id: %w", err)
		}
		if existing == nil {
			id = proposed.String()
		}
	}
	if threadID == "" {
		threadID = id
	}

	format := input.Format
	if format == "" {
		format = entity.CommentFormatPlain
	}

	handles := mention.NewSnapshot(s.presence.Handles(input.ProjectID)...)
	mentions := handles.Filter(input.Mentions)
	if len(input.Mentions) == 0 {
		mentions = handles.Extract(input.Text)
	}

	comment := &entity.Comment{
		ID:        id,
		ProjectID: input.ProjectID,
		ThreadID:  threadID,
		ParentID:  parentID,
		UserID:    input.UserID,
		UserName:  input.UserName,
		Text:      input.Text,
		Format:    format,
		Selection: selection,
		Mentions:  mentions,
		Status:    entity.CommentStatusOpen,
		CreatedAt: s.now(),
	}

	activityType := entity.ActivityCommentAdded
	if !comment.IsRoot() {
		activityType = entity.ActivityCommentReplied
	}
	act := entity.Activity{
		ID:        uuid.NewString(),
		ProjectID: comment.ProjectID,
		Type:      activityType,
		UserID:    comment.UserID,
		UserName:  comment.UserName,
		ThreadID:  comment.ThreadID,
		CommentID: comment.ID,
		SectionID: comment.Selection.SectionID,
		Text:      excerpt(comment.Text, 120),
		CreatedAt: comment.CreatedAt,
	}

	err := unitofwork.Transact(ctx, uow, func(tx unitofwork.UnitOfWork) error {
		if err := tx.CommentRepository().Create(ctx, comment); err != nil {
			return fmt.Errorf("save comment: %w", err)
		}
		if err := tx.ActivityRepository().Create(ctx, act); err != nil {
			return fmt.Errorf("save activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	emitProject(s.delivery, comment.ProjectID, "", dto.EventCommentAdded, comment)
	s.activities.Remember(act)
	s.publishMentions(ctx, comment)

	return comment, nil
}

func (s *commentService) publishMentions(ctx context.Context, comment *entity.Comment) {
	if s.publisher == nil {
		return
	}
	for _, handle := range comment.Mentions {
		evt := events.CommentMention{
			ProjectID:  comment.ProjectID,
			CommentID:  comment.ID,
			ThreadID:   comment.ThreadID,
			SectionID:  comment.Selection.SectionID,
			Handle:     handle,
			ActorID:    comment.UserID,
			ActorName:  comment.UserName,
			Excerpt:    excerpt(comment.Text, 280),
			OccurredAt: comment.CreatedAt,
		}
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn("CommentService", "Failed to publish mention", map[string]interface{}{
				"comment_id": comment.ID,
				"handle":     handle,
				"error":      err.Error(),
			})
		}
	}
}

// UpdateStatus moves the thread containing commentID between open and
// resolved. An activity is only written on an actual transition.
func (s *commentService) UpdateStatus(ctx context.Context, projectID, commentID, status, userID, userName string) (*entity.Comment, error) {
	if status != entity.CommentStatusOpen && status != entity.CommentStatusResolved {
		return nil, ErrInvalidStatus
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	comment, err := uow.CommentRepository().FindByID(ctx, projectID, commentID)
	if err != nil {
		return nil, fmt.Errorf("load comment: %w", err)
	}
	if comment == nil {
		return nil, ErrCommentNotFound
	}

	root := comment
	if !comment.IsRoot() {
		members, err := uow.CommentRepository().FindByThread(ctx, projectID, comment.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("load thread: %w", err)
		}
		if threads := entity.GroupThreads(members); len(threads) > 0 {
			root = threads[0].Root
		}
	}

	if root.Status == status {
		emitProject(s.delivery, projectID, "", dto.EventCommentUpdated, root)
		return root, nil
	}

	activityType := entity.ActivityCommentResolved
	if status == entity.CommentStatusOpen {
		activityType = entity.ActivityCommentReopened
	}
	act := entity.Activity{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      activityType,
		UserID:    userID,
		UserName:  userName,
		ThreadID:  root.ThreadID,
		CommentID: root.ID,
		SectionID: root.Selection.SectionID,
		Text:      excerpt(root.Text, 120),
		CreatedAt: s.now(),
	}

	err = unitofwork.Transact(ctx, uow, func(tx unitofwork.UnitOfWork) error {
		if err := tx.CommentRepository().UpdateStatus(ctx, projectID, root.ID, status); err != nil {
			return fmt.Errorf("update comment status: %w", err)
		}
		if err := tx.ActivityRepository().Create(ctx, act); err != nil {
			return fmt.Errorf("save activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	root.Status = status
	emitProject(s.delivery, projectID, "", dto.EventCommentUpdated, root)
	s.activities.Remember(act)

	return root, nil
}

func (s *commentService) List(ctx context.Context, projectID string) ([]*entity.Comment, error) {
	return s.uowFactory.NewUnitOfWork(ctx).CommentRepository().FindByProject(ctx, projectID)
}

func (s *commentService) Threads(ctx context.Context, projectID string) ([]entity.Thread, error) {
	comments, err := s.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return entity.GroupThreads(comments), nil
}

func excerpt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
