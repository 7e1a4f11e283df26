// Package redisstore keeps section locks in Redis so that every relay
// instance sees the same lock table.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "collab:lock:"

// LockStore stores one key per lock, expiring with the lock itself.
type LockStore struct {
	client *redis.Client
	prefix string
}

func NewLockStore(client *redis.Client) contract.LockStore {
	return &LockStore{client: client, prefix: defaultPrefix}
}

func (s *LockStore) key(projectID, lockID string) string {
	return s.prefix + projectID + ":" + lockID
}

func (s *LockStore) Put(ctx context.Context, lock entity.SectionLock) error {
	ttl := time.Until(lock.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, lock.ProjectID, lock.ID)
	}

	data, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	if err := s.client.Set(ctx, s.key(lock.ProjectID, lock.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save lock: %w", err)
	}
	return nil
}

func (s *LockStore) Get(ctx context.Context, projectID, lockID string) (*entity.SectionLock, error) {
	data, err := s.client.Get(ctx, s.key(projectID, lockID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}

	var lock entity.SectionLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("unmarshal lock: %w", err)
	}
	return &lock, nil
}

func (s *LockStore) Delete(ctx context.Context, projectID, lockID string) error {
	if err := s.client.Del(ctx, s.key(projectID, lockID)).Err(); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
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

func (s *LockStore) ListByProject(ctx context.Context, projectID string) ([]entity.SectionLock, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+projectID+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan locks: %w", err)
	}

	locks := []entity.SectionLock{}
	if len(keys) == 0 {
		return locks, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load locks: %w", err)
	}
	for _, v := range values {
		// Keys can expire between SCAN and MGET.
		str, ok := v.(string)
		if !ok {
			continue
		}
		var lock entity.SectionLock
		if err := json.Unmarshal([]byte(str), &lock); err != nil {
			continue
		}
		locks = append(locks, lock)
	}

	sort.Slice(locks, func(i, j int) bool {
		return locks[i].CreatedAt.Before(locks[j].CreatedAt)
	})
	return locks, nil
}
