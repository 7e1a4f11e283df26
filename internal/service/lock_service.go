package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/repository/contract"

	"github.com/google/uuid"
)

type LockRequest struct {
	ProjectID string
	SectionID string
	Range     entity.Range
	UserID    string
	UserName  string
}

type LockResult struct {
	Granted  bool
	Lock     *entity.SectionLock
	Conflict *entity.SectionLock
	Reason   string
}

type ILockService interface {
	Request(ctx context.Context, req LockRequest) (LockResult, error)
	Renew(ctx context.Context, projectID, lockID, userID string) (*entity.SectionLock, error)
	Release(ctx context.Context, projectID, lockID, userID string) (*entity.SectionLock, error)
	ReleaseInSection(ctx context.Context, projectID, sectionID, userID string) ([]entity.SectionLock, error)
	ReleaseAllForUser(ctx context.Context, projectID, userID string) ([]entity.SectionLock, error)
	Active(ctx context.Context, projectID string) ([]entity.SectionLock, error)
	TTL() time.Duration
}

type lockService struct {
	store  contract.LockStore
	ttl    time.Duration
	logger logger.ILogger
	now    func() time.Time

	mu       sync.Mutex
	projects map[string]*sync.Mutex
}

func NewLockService(store contract.LockStore, ttl time.Duration, log logger.ILogger) ILockService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &lockService{
		store:    store,
		ttl:      ttl,
		logger:   log,
		now:      time.Now,
		projects: make(map[string]*sync.Mutex),
	}
}

func (s *lockService) TTL() time.Duration {
	return s.ttl
}

// projectMutex serializes check-then-grant per project so two overlapping
// requests cannot both pass the overlap check.
func (s *lockService) projectMutex(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.projects[projectID]
	if !ok {
		m = &sync.Mutex{}
		s.projects[projectID] = m
	}
	return m
}

func (s *lockService) activeIn(ctx context.Context, projectID, sectionID string) ([]entity.SectionLock, error) {
	locks, err := s.store.ListBySection(ctx, projectID, sectionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	active := make([]entity.SectionLock, 0, len(locks))
	for _, l := range locks {
		if l.Active(now) {
			active = append(active, l)
		}
	}
	// Earliest grant wins a tie.
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

func holderName(l entity.SectionLock) string {
	if l.UserName != "" {
		return l.UserName
	}
	return l.UserID
}

func (s *lockService) Request(ctx context.Context, req LockRequest) (LockResult, error) {
	m := s.projectMutex(req.ProjectID)
	m.Lock()
	defer m.Unlock()

	rng := req.Range.Normalize()
	active, err := s.activeIn(ctx, req.ProjectID, req.SectionID)
	if err != nil {
		return LockResult{}, fmt.Errorf("list locks: %w", err)
	}

	var own *entity.SectionLock
	for i := range active {
		l := active[i]
		if !l.Range.Overlaps(rng) {
			continue
		}
		if l.UserID != req.UserID {
			s.logger.Info("LockService", "Lock rejected", map[string]interface{}{
				"project_id": req.ProjectID,
				"section_id": req.SectionID,
				"user_id":    req.UserID,
				"holder_id":  l.UserID,
			})
			return LockResult{
				Conflict: &l,
				Reason:   fmt.Sprintf("%s is editing this passage", holderName(l)),
			}, nil
		}
		if own == nil {
			own = &l
		}
	}

	now := s.now()
	if own != nil {
		own.ExpiresAt = now.Add(s.ttl)
		if err := s.store.Put(ctx, *own); err != nil {
			return LockResult{}, fmt.Errorf("renew lock: %w", err)
		}
		return LockResult{Granted: true, Lock: own}, nil
	}

	lock := entity.SectionLock{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		SectionID: req.SectionID,
		Range:     rng,
		UserID:    req.UserID,
		UserName:  req.UserName,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Put(ctx, lock); err != nil {
		return LockResult{}, fmt.Errorf("save lock: %w", err)
	}

	s.logger.Info("LockService", "Lock granted", map[string]interface{}{
		"project_id": req.ProjectID,
		"section_id": req.SectionID,
		"lock_id":    lock.ID,
		"user_id":    req.UserID,
	})
	return LockResult{Granted: true, Lock: &lock}, nil
}

func (s *lockService) ownedLock(ctx context.Context, projectID, lockID, userID string) (*entity.SectionLock, error) {
	lock, err := s.store.Get(ctx, projectID, lockID)
	if err != nil {
		return nil, fmt.Errorf("load lock: %w", err)
	}
	if lock == nil || !lock.Active(s.now()) {
		return nil, ErrLockNotFound
	}
	if lock.UserID != userID {
		return nil, ErrLockNotOwned
	}
	return lock, nil
}

func (s *lockService) Renew(ctx context.Context, projectID, lockID, userID string) (*entity.SectionLock, error) {
	m := s.projectMutex(projectID)
	m.Lock()
	defer m.Unlock()

	lock, err := s.ownedLock(ctx, projectID, lockID, userID)
	if err != nil {
		return nil, err
	}
	lock.ExpiresAt = s.now().Add(s.ttl)
	if err := s.store.Put(ctx, *lock); err != nil {
		return nil, fmt.Errorf("renew lock: %w", err)
	}
	return lock, nil
}

func (s *lockService) Release(ctx context.Context, projectID, lockID, userID string) (*entity.SectionLock, error) {
	m := s.projectMutex(projectID)
	m.Lock()
	defer m.Unlock()

	lock, err := s.ownedLock(ctx, projectID, lockID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, projectID, lockID); err != nil {
		return nil, fmt.Errorf("release lock: %w", err)
	}
	s.logger.Info("LockService", "Lock released", map[string]interface{}{
		"project_id": projectID,
		"lock_id":    lockID,
		"user_id":    userID,
	})
	return lock, nil
}

// ReleaseInSection drops the user's locks in one section, or in every
// section when sectionID is empty.
func (s *lockService) ReleaseInSection(ctx context.Context, projectID, sectionID, userID string) ([]entity.SectionLock, error) {
	m := s.projectMutex(projectID)
	m.Lock()
	defer m.Unlock()

	var (
		locks []entity.SectionLock
		err   error
	)
	if sectionID == "" {
		locks, err = s.store.ListByProject(ctx, projectID)
	} else {
		locks, err = s.store.ListBySection(ctx, projectID, sectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}

	released := []entity.SectionLock{}
	for _, l := range locks {
		if l.UserID != userID {
			continue
		}
		if err := s.store.Delete(ctx, projectID, l.ID); err != nil {
			return released, fmt.Errorf("release lock: %w", err)
		}
		released = append(released, l)
	}
	return released, nil
}

func (s *lockService) ReleaseAllForUser(ctx context.Context, projectID, userID string) ([]entity.SectionLock, error) {
	return s.ReleaseInSection(ctx, projectID, "", userID)
}

func (s *lockService) Active(ctx context.Context, projectID string) ([]entity.SectionLock, error) {
	locks, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	now := s.now()
	active := make([]entity.SectionLock, 0, len(locks))
	for _, l := range locks {
		if l.Active(now) {
			active = append(active, l)
		}
	}
	return active, nil
}
