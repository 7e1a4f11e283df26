package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type LockStore struct {
	cache *cache.Cache
}

func NewLockStore() contract.LockStore {
	// Entries carry their own TTL; the janitor sweeps every minute.
	return &LockStore{cache: cache.New(cache.NoExpiration, time.Minute)}
}

func lockKey(projectID, lockID string) string {
	return projectID + ":" + lockID
}

func (s *LockStore) Put(_ context.Context, lock entity.SectionLock) error {
	ttl := time.Until(lock.ExpiresAt)
	if ttl <= 0 {
		s.cache.Delete(lockKey(lock.ProjectID, lock.ID))
		return nil
	}
	s.cache.Set(lockKey(lock.ProjectID, lock.ID), lock, ttl)
	return nil
}

func (s *LockStore) Get(_ context.Context, projectID, lockID string) (*entity.SectionLock, error) {
	if x, found := s.cache.Get(lockKey(projectID, lockID)); found {
		lock := x.(entity.SectionLock)
		return &lock, nil
	}
	return nil, nil
}

func (s *LockStore) Delete(_ context.Context, projectID, lockID string) error {
	s.cache.Delete(lockKey(projectID, lockID))
	return nil
}

func (s *LockStore) ListBySection(ctx context.Context, projectID, sectionID string) ([]entity.SectionLock, error) {
	all, err := s.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	locks := make([]entity.SectionLock, 0, len(all))
	for _, l := range all {
		if l.SectionID == sectionID {
			locks = append(locks, l)
		}
	}
	return locks, nil
}

func (s *LockStore) ListByProject(_ context.Context, projectID string) ([]entity.SectionLock, error) {
	prefix := projectID + ":"
	locks := []entity.SectionLock{}
	for key, item := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			locks = append(locks, item.Object.(entity.SectionLock))
		}
	}
	sort.Slice(locks, func(i, j int) bool {
		return locks[i].CreatedAt.Before(locks[j].CreatedAt)
	})
	return locks, nil
}
