package collabclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
)

type sendFunc func(ctx context.Context, eventType string, data interface{}) error

// LockManager mirrors the relay's section locks and keeps the ones held by
// the local user alive.
type LockManager struct {
	projectID  string
	self       Identity
	renewEvery time.Duration
	send       sendFunc
	notify     func(Notice) Notice
	now        func() time.Time

	mu     sync.Mutex
	locks  map[string]entity.SectionLock
	ticker *time.Ticker
	quit   chan struct{}
}

func newLockManager(projectID string, self Identity, renewEvery time.Duration, send sendFunc, notify func(Notice) Notice) *LockManager {
	return &LockManager{
		projectID:  projectID,
		self:       self,
		renewEvery: renewEvery,
		send:       send,
		notify:     notify,
		now:        time.Now,
		locks:      make(map[string]entity.SectionLock),
	}
}

// blocking returns a peer's active lock overlapping rng, if any. Callers
// hold m.mu.
func (m *LockManager) blocking(sectionID string, rng entity.Range) (entity.SectionLock, bool) {
	now := m.now()
	for _, l := range m.locks {
		if l.SectionID != sectionID || l.UserID == m.self.UserID || !l.Active(now) {
			continue
		}
		if l.Range.Overlaps(rng) {
			return l, true
		}
	}
	return entity.SectionLock{}, false
}

// CanSelect reports whether the local user may select rng. A refusal raises
// a notice naming the holder.
func (m *LockManager) CanSelect(sectionID string, rng entity.Range) bool {
	m.mu.Lock()
	held, blocked := m.blocking(sectionID, rng)
	m.mu.Unlock()

	if blocked {
		m.notify(Notice{
			Kind:    NoticeLockConflict,
			Message: fmt.Sprintf("%s is editing this passage", holderName(held)),
			Lock:    &held,
		})
		return false
	}
	return true
}

func holderName(l entity.SectionLock) string {
	if l.UserName != "" {
		return l.UserName
	}
	return "Another collaborator"
}

// RequestLock asks the relay for rng. Locks held elsewhere are given back
// first since the selection moved. Offline there is nobody to contend with
// and the call succeeds without a lock.
func (m *LockManager) RequestLock(ctx context.Context, sectionID string, rng entity.Range) error {
	m.mu.Lock()
	if _, blocked := m.blocking(sectionID, rng); blocked {
		m.mu.Unlock()
		return ErrLockConflict
	}

	now := m.now()
	var stale []string
	covered := false
	for id, l := range m.locks {
		if l.UserID != m.self.UserID || !l.Active(now) {
			continue
		}
		if l.SectionID == sectionID && l.Range.Contains(rng) {
			covered = true
			continue
		}
		stale = append(stale, id)
	}
	m.mu.Unlock()

	if covered && len(stale) == 0 {
		return nil
	}
	for _, id := range stale {
		m.release(ctx, id)
	}
	if covered {
		return nil
	}

	return m.send(ctx, dto.EventLockRequest, dto.LockRequestPayload{
		ProjectID: m.projectID,
		SectionID: sectionID,
		Range:     rng,
		UserID:    m.self.UserID,
		UserName:  m.self.UserName,
	})
}

func (m *LockManager) release(ctx context.Context, lockID string) {
	m.mu.Lock()
	delete(m.locks, lockID)
	m.stopIfIdleLocked()
	m.mu.Unlock()

	m.send(ctx, dto.EventLockRelease, dto.LockReleasePayload{ProjectID: m.projectID, LockID: lockID})
}

// ReleaseAll gives back every lock the local user holds.
func (m *LockManager) ReleaseAll(ctx context.Context) {
	for _, l := range m.Held() {
		m.release(ctx, l.ID)
	}
}

// Held returns the local user's locks.
func (m *LockManager) Held() []entity.SectionLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.SectionLock
	for _, l := range m.locks {
		if l.UserID == m.self.UserID {
			out = append(out, l)
		}
	}
	return out
}

// Locks returns every known lock that is still active.
func (m *LockManager) Locks() []entity.SectionLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]entity.SectionLock, 0, len(m.locks))
	for _, l := range m.locks {
		if l.Active(now) {
			out = append(out, l)
		}
	}
	return out
}

func (m *LockManager) granted(lock entity.SectionLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[lock.ID] = lock
	if lock.UserID == m.self.UserID {
		m.startLocked()
	}
}

func (m *LockManager) rejected(p dto.LockRejectedPayload) {
	if p.Conflict != nil {
		m.mu.Lock()
		m.locks[p.Conflict.ID] = *p.Conflict
		m.mu.Unlock()
	}
	reason := p.Reason
	if reason == "" {
		reason = "This passage is being edited"
	}
	m.notify(Notice{Kind: NoticeLockConflict, Message: reason, Lock: p.Conflict})
}

func (m *LockManager) released(lockID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, lockID)
	m.stopIfIdleLocked()
}

// reset replaces the known locks, as after a fresh sync.
func (m *LockManager) reset(locks []entity.SectionLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = make(map[string]entity.SectionLock, len(locks))
	for _, l := range locks {
		m.locks[l.ID] = l
	}
	m.stopIfIdleLocked()
	for _, l := range m.locks {
		if l.UserID == m.self.UserID {
			m.startLocked()
			break
		}
	}
}

func (m *LockManager) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *LockManager) startLocked() {
	if m.ticker != nil {
		return
	}
	m.ticker = time.NewTicker(m.renewEvery)
	m.quit = make(chan struct{})
	go m.renewLoop(m.ticker, m.quit)
}

func (m *LockManager) stopLocked() {
	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.quit)
	m.ticker = nil
	m.quit = nil
}

func (m *LockManager) stopIfIdleLocked() {
	for _, l := range m.locks {
		if l.UserID == m.self.UserID {
			return
		}
	}
	m.stopLocked()
}

func (m *LockManager) renewLoop(ticker *time.Ticker, quit chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			for _, l := range m.Held() {
				m.send(context.Background(), dto.EventLockRenew, dto.LockRenewPayload{ProjectID: m.projectID, LockID: l.ID})
			}
		}
	}
}
