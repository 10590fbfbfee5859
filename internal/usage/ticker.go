package usage

import (
	"context"
	"sync"
	"time"
)

// Ticker is a restartable fixed-period timer. At most one timer goroutine is
// outstanding at any time; Start on a running Ticker is a no-op.
type Ticker struct {
	period time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewTicker returns a stopped ticker. A non-positive period means one second.
func NewTicker(period time.Duration) *Ticker {
	if period <= 0 {
		period = time.Second
	}
	return &Ticker{period: period}
}

// Start runs fn once per period until Stop. It reports whether a new timer
// was started.
func (t *Ticker) Start(fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go func() {
		tk := time.NewTicker(t.period)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				fn()
			case <-ctx.Done():
				return
			}
		}
	}()
	return true
}

// Stop cancels the running timer, if any. It does not wait for an fn call
// already in progress, so fn must tolerate one late invocation.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Running reports whether a timer is outstanding.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
