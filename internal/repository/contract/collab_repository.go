package contract

import (
	"context"

	"novelsync-be/internal/entity"
)

type CommentRepository interface {
	Create(ctx context.Context, comment *entity.Comment) error
	FindByID(ctx context.Context, projectID, id string) (*entity.Comment, error)
	FindByThread(ctx context.Context, projectID, threadID string) ([]*entity.Comment, error)
	FindByProject(ctx context.Context, projectID string) ([]*entity.Comment, error)
	UpdateStatus(ctx context.Context, projectID, id, status string) error
}

type ActivityRepository interface {
	Create(ctx context.Context, activity entity.Activity) error
	FindRecent(ctx context.Context, projectID string, limit int) ([]entity.Activity, error)
}

// LockStore holds section locks. Implementations expire entries on their
// own once ExpiresAt passes.
type LockStore interface {
	Put(ctx context.Context, lock entity.SectionLock) error
	Get(ctx context.Context, projectID, lockID string) (*entity.SectionLock, error)
	Delete(ctx context.Context, projectID, lockID string) error
	ListBySection(ctx context.Context, projectID, sectionID string) ([]entity.SectionLock, error)
	ListByProject(ctx context.Context, projectID string) ([]entity.SectionLock, error)
}

type SectionStore interface {
	Get(ctx context.Context, projectID, sectionID string) (*entity.Section, error)
	Save(ctx context.Context, section entity.Section) error
}
