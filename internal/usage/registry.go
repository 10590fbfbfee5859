package usage

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"parkspot-backend/internal/auth"
)

// Registry maps each authenticated identity to its tracker. There is one
// tracker per user id for the life of the process unless pruned.
type Registry struct {
	backend Backend
	tick    time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu       sync.Mutex
	trackers map[string]*Tracker
}

// NewRegistry creates an empty registry. tick is the projection period for
// new trackers and now their clock (nil means time.Now).
func NewRegistry(b Backend, tick time.Duration, now func() time.Time, logger *zap.Logger) *Registry {
	return &Registry{
		backend:  b,
		tick:     tick,
		now:      now,
		log:      logger,
		trackers: make(map[string]*Tracker),
	}
}

// Acquire returns id's tracker, creating it on first use. The tracker is
// held against Prune until the returned release func is called, so a
// command about to run on it cannot land on a tracker that has already
// been dropped. A changed token is recorded so later backend calls use the
// newest one.
func (r *Registry) Acquire(id auth.Identity) (*Tracker, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.trackers[id.UserID]
	if ok {
		if id.Token != "" && t.Identity().Token != id.Token {
			t.SetToken(id.Token)
		}
	} else {
		t = NewTracker(id, r.backend, r.tick, r.now, r.log)
		r.trackers[id.UserID] = t
	}
	t.retain()

	var once sync.Once
	return t, func() { once.Do(t.release) }
}

// Trackers returns every tracker currently held.
func (r *Registry) Trackers() []*Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		out = append(out, t)
	}
	return out
}

// Len is the number of trackers held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

// Prune drops trackers with no active session, no pending command, no
// subscriber and no outstanding Acquire. It returns how many were dropped.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for userID, t := range r.trackers {
		if t.Idle() {
			delete(r.trackers, userID)
			pruned++
		}
	}
	if pruned > 0 {
		r.log.Info("pruned idle usage trackers", zap.Int("count", pruned), zap.Int("remaining", len(r.trackers)))
	}
	return pruned
}
