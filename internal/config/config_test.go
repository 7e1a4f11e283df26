package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadCollabDefaults(t *testing.T) {
	cfg := loadCollab()

	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 15*time.Second, cfg.LockRenew)
	assert.Equal(t, 350*time.Millisecond, cfg.PatchDebounce)
	assert.Equal(t, 200, cfg.ActivityCapacity)
	assert.Equal(t, "memory", cfg.LockBackend)
}

func TestLoadCollabRenewMustBeBelowTTL(t *testing.T) {
	tests := []struct {
		name      string
		ttl       string
		renew     string
		wantRenew time.Duration
	}{
		{name: "valid", ttl: "40", renew: "10", wantRenew: 10 * time.Second},
		{name: "equal falls back", ttl: "20", renew: "20", wantRenew: 10 * time.Second},
		{name: "greater falls back", ttl: "10", renew: "60", wantRenew: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COLLAB_LOCK_TTL_SECONDS", tt.ttl)
			t.Setenv("COLLAB_LOCK_RENEW_SECONDS", tt.renew)

			cfg := loadCollab()
			assert.Equal(t, tt.wantRenew, cfg.LockRenew)
			assert.Less(t, cfg.LockRenew, cfg.LockTTL)
		})
	}
}
