package implementation

import (
	"context"
	"errors"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/mapper"
	"novelsync-be/internal/model"
	"novelsync-be/internal/repository/contract"
	"novelsync-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommentRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CommentMapper
}

func NewCommentRepository(db *gorm.DB) contract.CommentRepository {
	return &CommentRepositoryImpl{
		db:     db,
		mapper: mapper.NewCommentMapper(),
	}
}

func (r *CommentRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *CommentRepositoryImpl) Create(ctx context.Context, comment *entity.Comment) error {
	m := r.mapper.ToModel(comment)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*comment = *r.mapper.ToEntity(m)
	return nil
}

func (r *CommentRepositoryImpl) FindByID(ctx context.Context, projectID, id string) (*entity.Comment, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}

	var m model.Comment
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByID{ID: parsed},
		specification.ByProjectID{ProjectID: projectID},
	)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *CommentRepositoryImpl) FindByThread(ctx context.Context, projectID, threadID string) ([]*entity.Comment, error) {
	parsed, err := uuid.Parse(threadID)
	if err != nil {
		return []*entity.Comment{}, nil
	}

	var models []*model.Comment
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByProjectID{ProjectID: projectID},
		specification.ByThreadID{ThreadID: parsed},
		specification.OrderBy{Field: "created_at"},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *CommentRepositoryImpl) FindByProject(ctx context.Context, projectID string) ([]*entity.Comment, error) {
	var models []*model.Comment
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByProjectID{ProjectID: projectID},
		specification.OrderBy{Field: "created_at"},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *CommentRepositoryImpl) UpdateStatus(ctx context.Context, projectID, id, status string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return errors.New("comment not found")
	}

	result := r.db.WithContext(ctx).
		Model(&model.Comment{}).
		Where("id = ? AND project_id = ?", parsed, projectID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("comment not found")
	}
	return nil
}
