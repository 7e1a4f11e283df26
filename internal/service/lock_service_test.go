package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"novelsync-be/internal/entity"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLockService(t *testing.T) (*lockService, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Now()}
	svc := NewLockService(memory.NewLockStore(), 30*time.Second, logger.NewNopLogger()).(*lockService)
	svc.now = clock.Now
	return svc, clock
}

func lockReq(userID, userName string, start, end int) LockRequest {
	return LockRequest{
		ProjectID: "novel-1",
		SectionID: "0",
		Range:     entity.Range{Start: start, End: end},
		UserID:    userID,
		UserName:  userName,
	}
}

func TestLockService_OverlapScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLockService(t)

	a, err := svc.Request(ctx, lockReq("user-a", "Alice", 0, 4))
	require.NoError(t, err)
	require.True(t, a.Granted)

	b, err := svc.Request(ctx, lockReq("user-b", "Bob", 2, 6))
	require.NoError(t, err)
	assert.False(t, b.Granted)
	assert.Equal(t, "Alice is editing this passage", b.Reason)
	require.NotNil(t, b.Conflict)
	assert.Equal(t, a.Lock.ID, b.Conflict.ID)

	_, err = svc.Release(ctx, "novel-1", a.Lock.ID, "user-a")
	require.NoError(t, err)

	b, err = svc.Request(ctx, lockReq("user-b", "Bob", 2, 6))
	require.NoError(t, err)
	assert.True(t, b.Granted)
	assert.Equal(t, entity.Range{Start: 2, End: 6}, b.Lock.Range)
}

func TestLockService_AdjacentRangesDoNotConflict(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLockService(t)

	a, err := svc.Request(ctx, lockReq("user-a", "Alice", 0, 4))
	require.NoError(t, err)
	require.True(t, a.Granted)

	b, err := svc.Request(ctx, lockReq("user-b", "Bob", 4, 8))
	require.NoError(t, err)
	assert.True(t, b.Granted)

	other := lockReq("user-b", "Bob", 0, 4)
	other.SectionID = "1"
	c, err := svc.Request(ctx, other)
	require.NoError(t, err)
	assert.True(t, c.Granted, "locks in another section are independent")

	active, err := svc.Active(ctx, "novel-1")
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestLockService_RequestIsIdempotentForHolder(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestLockService(t)

	first, err := svc.Request(ctx, lockReq("user-a", "Alice", 0, 10))
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	again, err := svc.Request(ctx, lockReq("user-a", "Alice", 2, 5))
	require.NoError(t, err)
	require.True(t, again.Granted)
	assert.Equal(t, first.Lock.ID, again.Lock.ID)
	assert.WithinDuration(t, clock.Now().Add(30*time.Second), again.Lock.ExpiresAt, time.Millisecond)

	active, err := svc.Active(ctx, "novel-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestLockService_Expiry(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestLockService(t)

	a, err := svc.Request(ctx, lockReq("user-a", "Alice", 0, 4))
	require.NoError(t, err)

	clock.Advance(31 * time.Second)

	active, err := svc.Active(ctx, "novel-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	b, err := svc.Request(ctx, lockReq("user-b", "Bob", 0, 4))
	require.NoError(t, err)
	assert.True(t, b.Granted, "an expired lock no longer blocks")

	_, err = svc.Renew(ctx, "novel-1", a.Lock.ID, "user-a")
	assert.ErrorIs(t, err, ErrLockNotFound)
}

func TestLockService_RenewAndRelease(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestLockService(t)

	a, err := svc.Request(ctx, lockReq("user-a", "Alice", 0, 4))
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	renewed, err := svc.Renew(ctx, "novel-1", a.Lock.ID, "user-a")
	require.NoError(t, err)
	assert.WithinDuration(t, clock.Now().Add(30*time.Second), renewed.ExpiresAt, time.Millisecond)

	// The renewal keeps it alive past the original expiry.
	clock.Advance(20 * time.Second)
	active, err := svc.Active(ctx, "novel-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = svc.Renew(ctx, "novel-1", a.Lock.ID, "user-b")
	assert.ErrorIs(t, err, ErrLockNotOwned)

	_, err = svc.Release(ctx, "novel-1", a.Lock.ID, "user-b")
	assert.ErrorIs(t, err, ErrLockNotOwned)

	_, err = svc.Renew(ctx, "novel-1", "missing", "user-a")
	assert.ErrorIs(t, err, ErrLockNotFound)

	released, err := svc.Release(ctx, "novel-1", a.Lock.ID, "user-a")
	require.NoError(t, err)
	assert.Equal(t, a.Lock.ID, released.ID)

	_, err = svc.Release(ctx, "novel-1", a.Lock.ID, "user-a")
	assert.ErrorIs(t, err, ErrLockNotFound)
}

func TestLockService_ReleaseInSection(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLockService(t)

	for _, section := range []string{"0", "1"} {
		req := lockReq("user-a", "Alice", 0, 4)
		req.SectionID = section
		_, err := svc.Request(ctx, req)
		require.NoError(t, err)
	}
	_, err := svc.Request(ctx, lockReq("user-b", "Bob", 10, 14))
	require.NoError(t, err)

	released, err := svc.ReleaseInSection(ctx, "novel-1", "0", "user-a")
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, "0", released[0].SectionID)

	released, err = svc.ReleaseAllForUser(ctx, "novel-1", "user-a")
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, "1", released[0].SectionID)

	active, err := svc.Active(ctx, "novel-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "user-b", active[0].UserID)
}

func TestLockService_ConcurrentRequestsGrantOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLockService(t)

	var (
		wg      sync.WaitGroup
		granted int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Request(ctx, lockReq(fmt.Sprintf("user-%d", i), "", 0, 20))
			if err == nil && res.Granted {
				atomic.AddInt32(&granted, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted)
}
