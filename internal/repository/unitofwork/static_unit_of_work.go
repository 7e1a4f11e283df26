package unitofwork

import (
	"context"

	"novelsync-be/internal/repository/contract"
)

// staticUnitOfWork hands out fixed repositories and has no transaction
// boundary. It backs the in-memory mode used without a database.
type staticUnitOfWork struct {
	comments   contract.CommentRepository
	activities contract.ActivityRepository
}

func (u *staticUnitOfWork) Begin(ctx context.Context) error { return nil }
func (u *staticUnitOfWork) Commit() error                   { return nil }
func (u *staticUnitOfWork) Rollback() error                 { return nil }

func (u *staticUnitOfWork) CommentRepository() contract.CommentRepository {
	return u.comments
}

func (u *staticUnitOfWork) ActivityRepository() contract.ActivityRepository {
	return u.activities
}

type staticRepositoryFactory struct {
	uow *staticUnitOfWork
}

func NewStaticRepositoryFactory(comments contract.CommentRepository, activities contract.ActivityRepository) RepositoryFactory {
	return &staticRepositoryFactory{
		uow: &staticUnitOfWork{comments: comments, activities: activities},
	}
}

func (f *staticRepositoryFactory) NewUnitOfWork(ctx context.Context) UnitOfWork {
	return f.uow
}
