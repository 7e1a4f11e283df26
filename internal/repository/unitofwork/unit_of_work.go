package unitofwork

import (
	"context"

	"novelsync-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	CommentRepository() contract.CommentRepository
	ActivityRepository() contract.ActivityRepository
}
