package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/auth"
	"parkspot-backend/internal/backend"
	"parkspot-backend/internal/billing"
	"parkspot-backend/internal/model"
)

// Backend is the part of the parking backend a tracker drives.
type Backend interface {
	GetCurrentUsage(ctx context.Context) (*model.UsageSession, error)
	StartParking(ctx context.Context, spotID int64, plate string) (*model.UsageSession, error)
	EndParking(ctx context.Context, spotID int64) (*backend.EndResult, error)
}

// State is the lifecycle of a tracker's current session.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateCompleted State = "completed"
)

// Projection is the elapsed-time and cost view of an active session at a
// given instant. A projection with State completed is the last one a
// subscriber receives for that session.
type Projection struct {
	SessionID  int64     `json:"session_id"`
	SpotID     int64     `json:"spot_id"`
	StartTime  time.Time `json:"start_time"`
	HourlyRate float64   `json:"hourly_rate"`
	At         time.Time `json:"at"`
	State      State     `json:"state"`
	model.BillingResult
}

// Settlement is the outcome of a successful End. TotalAmount is the
// backend's figure and is null when the backend had already closed the
// session; Estimate is the local projection at the time of the end.
type Settlement struct {
	Session     model.UsageSession  `json:"session"`
	EndedAt     time.Time           `json:"ended_at"`
	Estimate    model.BillingResult `json:"estimate"`
	TotalAmount null.Float          `json:"total_amount"`
}

// Tracker owns one identity's usage session. State only moves after the
// backend has answered a command; a failed or timed-out command leaves it
// where it was.
type Tracker struct {
	backend Backend
	now     func() time.Time
	log     *zap.Logger
	ticker  *Ticker

	mu       sync.Mutex
	identity auth.Identity
	state    State
	session  *model.UsageSession
	busy     bool
	gen      uint64
	startKey string
	startFor string
	endKey   string
	subs     map[int]chan Projection
	nextSub  int
	leases   int
}

// NewTracker returns an idle tracker for id. now is the clock used for
// projections; nil means time.Now.
func NewTracker(id auth.Identity, b Backend, tick time.Duration, now func() time.Time, logger *zap.Logger) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		backend:  b,
		now:      now,
		log:      logger.With(zap.String("user_id", id.UserID)),
		ticker:   NewTicker(tick),
		identity: id,
		state:    StateIdle,
		subs:     make(map[int]chan Projection),
	}
}

// Identity returns the identity commands are sent as.
func (t *Tracker) Identity() auth.Identity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.identity
}

// SetToken replaces the bearer token used for backend calls.
func (t *Tracker) SetToken(token string) {
	t.mu.Lock()
	t.identity.Token = token
	t.mu.Unlock()
}

// Snapshot returns the state and a copy of the current session, if any.
func (t *Tracker) Snapshot() (State, *model.UsageSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return t.state, nil
	}
	s := *t.session
	return t.state, &s
}

// Start opens a session on spotID. reconciled is the spot's current derived
// status; only an available spot may be started.
func (t *Tracker) Start(ctx context.Context, spotID int64, plate string, reconciled model.SpotStatus) (*model.UsageSession, error) {
	plate = strings.TrimSpace(plate)
	if plate == "" {
		return nil, apperr.ErrEmptyPlate
	}

	t.mu.Lock()
	switch {
	case t.busy:
		t.mu.Unlock()
		return nil, apperr.ErrCommandInFlight
	case t.state == StateActive:
		t.mu.Unlock()
		return nil, apperr.ErrAlreadyActiveElsewhere
	case reconciled != model.SpotAvailable:
		t.mu.Unlock()
		return nil, apperr.ErrSpotUnavailable
	}
	// A retry of a start that failed transiently reuses its key so the
	// backend can tell it apart from a second session.
	target := startTarget(spotID, plate)
	if t.startKey == "" || t.startFor != target {
		t.startKey, t.startFor = uuid.NewString(), target
	}
	t.busy = true
	key := t.startKey
	ctx = auth.WithIdentity(ctx, t.identity)
	t.mu.Unlock()

	session, err := t.backend.StartParking(backend.WithIdempotencyKey(ctx, key), spotID, plate)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false
	if err != nil {
		if !apperr.Retryable(err) {
			t.startKey, t.startFor = "", ""
		}
		t.log.Info("start parking failed", zap.Int64("spot_id", spotID), zap.Error(err))
		return nil, err
	}

	session.Status = model.UsageActive
	session.StartTime = session.StartTime.UTC()
	t.activateLocked(session)
	t.startKey, t.startFor = "", ""
	t.log.Info("parking session started",
		zap.Int64("session_id", session.ID), zap.Int64("spot_id", session.SpotID), zap.Time("start_time", session.StartTime))

	s := *session
	return &s, nil
}

// End closes the active session. On error the session stays active and a
// retry is sent with the same idempotency key, so the backend never bills
// the session twice.
func (t *Tracker) End(ctx context.Context) (Settlement, error) {
	t.mu.Lock()
	switch {
	case t.busy:
		t.mu.Unlock()
		return Settlement{}, apperr.ErrCommandInFlight
	case t.state != StateActive:
		t.mu.Unlock()
		return Settlement{}, apperr.ErrNoActiveSession
	}
	if t.endKey == "" {
		t.endKey = uuid.NewString()
	}
	t.busy = true
	session := *t.session
	key := t.endKey
	ctx = auth.WithIdentity(ctx, t.identity)
	t.mu.Unlock()

	res, err := t.backend.EndParking(backend.WithIdempotencyKey(ctx, key), session.SpotID)
	endedAt := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false

	var total null.Float
	switch {
	case err == nil:
		total = null.FloatFrom(res.TotalAmount)
	case errors.Is(err, apperr.ErrNoActiveSession):
		t.log.Warn("backend reports no active session on end, completing locally",
			zap.Int64("session_id", session.ID))
	default:
		t.log.Info("end parking failed", zap.Int64("session_id", session.ID), zap.Error(err))
		return Settlement{}, err
	}

	elapsed, ok := billing.ElapsedMinutes(session.StartTime, endedAt)
	if !ok {
		elapsed = 0
	}
	session.Status = model.UsageCompleted
	t.completeLocked(endedAt)
	t.log.Info("parking session ended",
		zap.Int64("session_id", session.ID), zap.Int("elapsed_minutes", elapsed), zap.Bool("settled", total.Valid))

	return Settlement{
		Session:     session,
		EndedAt:     endedAt,
		Estimate:    billing.Bill(elapsed, session.HourlyRate),
		TotalAmount: total,
	}, nil
}

// Refresh reconciles local state with the backend's current usage. A
// session the backend no longer reports is completed; a session the backend
// reports is adopted. The answer is dropped if a command finished while it
// was in flight.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.busy {
		t.mu.Unlock()
		return nil
	}
	gen := t.gen
	ctx = auth.WithIdentity(ctx, t.identity)
	t.mu.Unlock()

	current, err := t.backend.GetCurrentUsage(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.busy || t.gen != gen {
		return nil
	}

	switch {
	case current == nil || !current.IsActive():
		if t.state == StateActive {
			t.log.Info("session closed by backend", zap.Int64("session_id", t.session.ID))
			t.completeLocked(t.now())
		}
	case t.state != StateActive || t.session.ID != current.ID:
		s := *current
		s.StartTime = s.StartTime.UTC()
		t.activateLocked(&s)
		t.log.Info("adopted active session from backend", zap.Int64("session_id", s.ID), zap.Int64("spot_id", s.SpotID))
	}
	return nil
}

// Tick projects the active session at now. ok is false when there is no
// active session or now is before the session start.
func (t *Tracker) Tick(now time.Time) (Projection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.projectLocked(now)
}

// Subscribe returns a feed of projections, one per tick while the session
// is active. The returned func unsubscribes and closes the channel. The
// timer only runs while the session is active and someone is subscribed.
func (t *Tracker) Subscribe() (<-chan Projection, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	ch := make(chan Projection, 1)
	t.subs[id] = ch
	if t.state == StateActive {
		t.startTickerLocked()
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			close(ch)
			if len(t.subs) == 0 {
				t.ticker.Stop()
			}
		})
	}
}

// Ticking reports whether the projection timer is running.
func (t *Tracker) Ticking() bool {
	return t.ticker.Running()
}

// Idle reports whether the tracker holds nothing worth keeping: no active
// session, no command in flight, no subscriber and no caller holding it.
func (t *Tracker) Idle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != StateActive && !t.busy && len(t.subs) == 0 && t.leases == 0
}

func (t *Tracker) retain() {
	t.mu.Lock()
	t.leases++
	t.mu.Unlock()
}

func (t *Tracker) release() {
	t.mu.Lock()
	if t.leases > 0 {
		t.leases--
	}
	t.mu.Unlock()
}

func (t *Tracker) projectLocked(now time.Time) (Projection, bool) {
	if t.state != StateActive || t.session == nil {
		return Projection{}, false
	}
	elapsed, ok := billing.ElapsedMinutes(t.session.StartTime, now)
	if !ok {
		return Projection{}, false
	}
	return Projection{
		SessionID:     t.session.ID,
		SpotID:        t.session.SpotID,
		StartTime:     t.session.StartTime,
		HourlyRate:    t.session.HourlyRate,
		At:            now,
		State:         StateActive,
		BillingResult: billing.Bill(elapsed, t.session.HourlyRate),
	}, true
}

func (t *Tracker) activateLocked(s *model.UsageSession) {
	if t.session == nil || t.session.ID != s.ID {
		t.endKey = ""
	}
	t.session = s
	t.state = StateActive
	t.gen++
	if len(t.subs) > 0 {
		t.startTickerLocked()
	}
}

func (t *Tracker) completeLocked(at time.Time) {
	t.state = StateCompleted
	t.endKey = ""
	t.gen++
	t.ticker.Stop()

	final := Projection{At: at, State: StateCompleted}
	if t.session != nil {
		t.session.Status = model.UsageCompleted
		final.SessionID = t.session.ID
		final.SpotID = t.session.SpotID
		final.StartTime = t.session.StartTime
		final.HourlyRate = t.session.HourlyRate
		if elapsed, ok := billing.ElapsedMinutes(t.session.StartTime, at); ok {
			final.BillingResult = billing.Bill(elapsed, t.session.HourlyRate)
		}
	}
	t.publishLocked(final)
}

func (t *Tracker) startTickerLocked() {
	if t.ticker.Start(t.onTick) {
		t.log.Debug("projection ticker started")
	}
}

func (t *Tracker) onTick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.projectLocked(t.now()); ok {
		t.publishLocked(p)
	}
}

// publishLocked delivers p to every subscriber, replacing a projection the
// subscriber has not read yet.
func (t *Tracker) publishLocked(p Projection) {
	for _, ch := range t.subs {
		select {
		case ch <- p:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}

func startTarget(spotID int64, plate string) string {
	return fmt.Sprintf("%d/%s", spotID, strings.ToUpper(plate))
}
