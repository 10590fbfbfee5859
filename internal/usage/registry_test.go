package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkspot-backend/internal/auth"
	"parkspot-backend/internal/model"
)

// get acquires and immediately releases, for tests that only need the
// tracker.
func get(r *Registry, id auth.Identity) *Tracker {
	t, release := r.Acquire(id)
	release()
	return t
}

func TestRegistry_AcquireIsPerIdentity(t *testing.T) {
	r := NewRegistry(&mockBackend{}, time.Second, nil, zap.NewNop())

	a := get(r, auth.Identity{UserID: "u-1", Token: "t1"})
	assert.Same(t, a, get(r, auth.Identity{UserID: "u-1", Token: "t1"}))
	assert.NotSame(t, a, get(r, auth.Identity{UserID: "u-2"}))
	assert.Equal(t, 2, r.Len())

	get(r, auth.Identity{UserID: "u-1", Token: "t2"})
	assert.Equal(t, "t2", a.Identity().Token, "a refreshed token replaces the old one")
	assert.Len(t, r.Trackers(), 2)
}

func TestRegistry_Prune(t *testing.T) {
	b := &mockBackend{StartF: startOK}
	r := NewRegistry(b, time.Second, func() time.Time { return sessionStart }, zap.NewNop())

	active := get(r, auth.Identity{UserID: "active"})
	_, err := active.Start(context.Background(), 7, "沪A12345", model.SpotAvailable)
	require.NoError(t, err)

	observed := get(r, auth.Identity{UserID: "observed"})
	_, unsubscribe := observed.Subscribe()
	defer unsubscribe()

	get(r, auth.Identity{UserID: "idle"})

	assert.Equal(t, 1, r.Prune())
	assert.Equal(t, 2, r.Len())
	assert.Same(t, active, get(r, auth.Identity{UserID: "active"}))
}

func TestRegistry_PruneSkipsAcquiredTracker(t *testing.T) {
	b := &mockBackend{StartF: startOK}
	r := NewRegistry(b, time.Second, func() time.Time { return sessionStart }, zap.NewNop())
	id := auth.Identity{UserID: "u-1"}

	held, release := r.Acquire(id)
	assert.False(t, held.Idle())
	assert.Equal(t, 0, r.Prune(), "a tracker handed out but not yet started is kept")

	_, err := held.Start(context.Background(), 7, "沪A12345", model.SpotAvailable)
	require.NoError(t, err)
	release()
	release()

	assert.Equal(t, 0, r.Prune())
	assert.Same(t, held, get(r, id), "the session stays on the tracker it was started on")
}
