package memory

import (
	"context"
	"errors"
	"sort"
	"strings"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// CommentRepository is the database-less fallback used when no DSN is
// configured. Comments live for the lifetime of the process.
type CommentRepository struct {
	cache *cache.Cache
}

func NewCommentRepository() contract.CommentRepository {
	return &CommentRepository{cache: cache.New(cache.NoExpiration, 0)}
}

func copyComment(c *entity.Comment) *entity.Comment {
	cp := *c
	cp.Mentions = append([]string{}, c.Mentions...)
	if c.ParentID != nil {
		p := *c.ParentID
		cp.ParentID = &p
	}
	return &cp
}

func (r *CommentRepository) Create(_ context.Context, comment *entity.Comment) error {
	key := comment.ProjectID + ":" + comment.ID
	if err := r.cache.Add(key, copyComment(comment), cache.NoExpiration); err != nil {
		return errors.New("comment already exists")
	}
	return nil
}

func (r *CommentRepository) FindByID(_ context.Context, projectID, id string) (*entity.Comment, error) {
	if x, found := r.cache.Get(projectID + ":" + id); found {
		return copyComment(x.(*entity.Comment)), nil
	}
	return nil, nil
}

func (r *CommentRepository) FindByThread(ctx context.Context, projectID, threadID string) ([]*entity.Comment, error) {
	all, err := r.FindByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	comments := make([]*entity.Comment, 0)
	for _, c := range all {
		if c.ThreadID == threadID {
			comments = append(comments, c)
		}
	}
	return comments, nil
}

func (r *CommentRepository) FindByProject(_ context.Context, projectID string) ([]*entity.Comment, error) {
	prefix := projectID + ":"
	comments := make([]*entity.Comment, 0)
	for key, item := range r.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			comments = append(comments, copyComment(item.Object.(*entity.Comment)))
		}
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

func (r *CommentRepository) UpdateStatus(_ context.Context, projectID, id, status string) error {
	key := projectID + ":" + id
	x, found := r.cache.Get(key)
	if !found {
		return errors.New("comment not found")
	}
	updated := copyComment(x.(*entity.Comment))
	updated.Status = status
	r.cache.Set(key, updated, cache.NoExpiration)
	return nil
}
