package implementation

import (
	"context"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/mapper"
	"novelsync-be/internal/model"
	"novelsync-be/internal/repository/contract"
	"novelsync-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActivityRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ActivityMapper
}

func NewActivityRepository(db *gorm.DB) contract.ActivityRepository {
	return &ActivityRepositoryImpl{
		db:     db,
		mapper: mapper.NewActivityMapper(),
	}
}

// Create ignores replays of an already stored activity.
func (r *ActivityRepositoryImpl) Create(ctx context.Context, activity entity.Activity) error {
	m := r.mapper.ToModel(activity)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m).Error
}

func (r *ActivityRepositoryImpl) FindRecent(ctx context.Context, projectID string, limit int) ([]entity.Activity, error) {
	var models []*model.Activity
	query := r.db.WithContext(ctx)
	for _, spec := range []specification.Specification{
		specification.ByProjectID{ProjectID: projectID},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit},
	} {
		query = spec.Apply(query)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}
