package memory

import (
	"context"
	"sort"
	"strings"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type ActivityRepository struct {
	cache *cache.Cache
}

func NewActivityRepository() contract.ActivityRepository {
	return &ActivityRepository{cache: cache.New(cache.NoExpiration, 0)}
}

// Create is idempotent on activity ID.
func (r *ActivityRepository) Create(_ context.Context, activity entity.Activity) error {
	_ = r.cache.Add(activity.ProjectID+":"+activity.ID, activity, cache.NoExpiration)
	return nil
}

func (r *ActivityRepository) FindRecent(_ context.Context, projectID string, limit int) ([]entity.Activity, error) {
	prefix := projectID + ":"
	activities := make([]entity.Activity, 0)
	for key, item := range r.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			activities = append(activities, item.Object.(entity.Activity))
		}
	}
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].CreatedAt.After(activities[j].CreatedAt)
	})
	if limit > 0 && len(activities) > limit {
		activities = activities[:limit]
	}
	return activities, nil
}
