package parking

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/auth"
	"parkspot-backend/internal/model"
	"parkspot-backend/internal/notification"
	"parkspot-backend/internal/spotstatus"
	"parkspot-backend/internal/store"
	"parkspot-backend/internal/usage"
)

// UsageView is the caller's session state with a projection at the time
// of the call.
type UsageView struct {
	State      usage.State         `json:"state"`
	Session    *model.UsageSession `json:"session,omitempty"`
	Projection *usage.Projection   `json:"projection,omitempty"`
	Stale      bool                `json:"stale,omitempty"`
}

// CurrentUsage refreshes the caller's tracker from the backend and returns
// its state. When the backend is unreachable the last known state is
// returned marked stale.
func (s *Service) CurrentUsage(ctx context.Context) (*UsageView, error) {
	t, release, err := s.tracker(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	stale := false
	if err := t.Refresh(ctx); err != nil {
		if !apperr.Retryable(err) {
			return nil, err
		}
		s.log.Warn("usage refresh failed, serving last known state", zap.Error(err))
		stale = true
	}

	view := s.view(t)
	view.Stale = stale
	return view, nil
}

// StartParking reconciles the spot's status and starts a session on it.
func (s *Service) StartParking(ctx context.Context, spotID int64, plate string) (*UsageView, error) {
	if strings.TrimSpace(plate) == "" {
		return nil, apperr.ErrEmptyPlate
	}
	t, release, err := s.tracker(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock()
	spot, idx, err := s.spotAndIndex(ctx, spotID, now)
	if err != nil {
		return nil, err
	}
	var active []model.UsageSession
	if state, session := t.Snapshot(); state == usage.StateActive && session != nil {
		active = append(active, *session)
	}
	status := spotstatus.ReconcileIndexed(*spot, s.opening(spot), active, idx, now)

	if _, err := t.Start(ctx, spotID, plate, status); err != nil {
		return nil, err
	}
	return s.view(t), nil
}

// EndParking ends the caller's session, records a receipt and sends a
// settlement notice. A ledger failure is logged; the backend's settlement
// stands regardless.
func (s *Service) EndParking(ctx context.Context) (*usage.Settlement, error) {
	t, release, err := s.tracker(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	settlement, err := t.End(ctx)
	if err != nil {
		return nil, err
	}
	id := t.Identity()

	receipt := receiptFor(id.Username, settlement)
	if err := s.store.SaveReceipt(ctx, receipt); err != nil {
		s.log.Error("failed to record receipt", zap.Int64("session_id", receipt.SessionID), zap.Error(err))
	}
	s.invalidateReceipts(id.UserID)
	if receipt.SettledAmount.Valid && math.Abs(receipt.Discrepancy()) >= 0.005 {
		s.log.Warn("settled amount differs from estimate",
			zap.Int64("session_id", receipt.SessionID),
			zap.Float64("estimated", receipt.EstimatedAmount),
			zap.Float64("settled", receipt.SettledAmount.Float64))
	}

	body := fmt.Sprintf("停车 %d 分钟", settlement.Estimate.ElapsedMinutes)
	if settlement.TotalAmount.Valid {
		body += fmt.Sprintf("，费用 ¥%.2f", settlement.TotalAmount.Float64)
	}
	s.notifier.Dispatch(notification.Notice{
		Username: id.Username,
		Title:    "停车已结束",
		Body:     body,
		Tag:      "session-settled",
	})
	return &settlement, nil
}

// Receipts lists the caller's recorded settlements, newest first.
func (s *Service) Receipts(ctx context.Context, since time.Time, limit int) ([]model.UsageReceipt, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperr.ErrUnauthorized
	}
	return s.store.ListReceipts(ctx, store.ReceiptQuery{Username: id.Username, Since: since, Limit: limit})
}

// Tracker returns the caller's usage tracker. The tracker is not pruned
// until the returned func is called.
func (s *Service) Tracker(ctx context.Context) (*usage.Tracker, func(), error) {
	return s.tracker(ctx)
}

// Run refreshes every active tracker until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("starting usage refresh loop", zap.Duration("interval", s.refresh))

	timer := time.NewTimer(s.refresh)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("usage refresh loop shutting down")
			return
		case <-timer.C:
			s.RefreshOnce(ctx)
			timer.Reset(s.refresh)
		}
	}
}

// RefreshOnce reconciles each active tracker with the backend so sessions
// ended elsewhere stop ticking.
func (s *Service) RefreshOnce(ctx context.Context) {
	for _, t := range s.registry.Trackers() {
		if state, _ := t.Snapshot(); state != usage.StateActive {
			continue
		}
		s.refreshTracker(ctx, t.Identity())
	}
}

// Schedule registers the midnight purge and an hourly tracker prune on c.
// c decides the time zone the schedule is read in.
func (s *Service) Schedule(c *cron.Cron) error {
	if _, err := c.AddFunc("0 0 * * *", s.Purge); err != nil {
		return fmt.Errorf("failed to schedule daily purge: %w", err)
	}
	if _, err := c.AddFunc("@hourly", func() { s.registry.Prune() }); err != nil {
		return fmt.Errorf("failed to schedule tracker prune: %w", err)
	}
	return nil
}

func (s *Service) refreshTracker(ctx context.Context, id auth.Identity) {
	t, release := s.registry.Acquire(id)
	defer release()
	if err := t.Refresh(ctx); err != nil {
		s.log.Warn("usage refresh failed", zap.String("user_id", id.UserID), zap.Error(err))
	}
}

func (s *Service) tracker(ctx context.Context) (*usage.Tracker, func(), error) {
	id, ok := auth.FromContext(ctx)
	if !ok || id.UserID == "" {
		return nil, nil, apperr.ErrUnauthorized
	}
	t, release := s.registry.Acquire(id)
	return t, release, nil
}

func (s *Service) view(t *usage.Tracker) *UsageView {
	state, session := t.Snapshot()
	view := &UsageView{State: state, Session: session}
	if p, ok := t.Tick(s.now()); ok {
		view.Projection = &p
	}
	return view
}

func receiptFor(username string, st usage.Settlement) *model.UsageReceipt {
	return &model.UsageReceipt{
		SessionID:       st.Session.ID,
		Username:        username,
		SpotID:          st.Session.SpotID,
		VehiclePlate:    st.Session.VehiclePlate,
		HourlyRate:      st.Session.HourlyRate,
		StartTime:       st.Session.StartTime,
		EndedAt:         null.TimeFrom(st.EndedAt),
		ElapsedMinutes:  st.Estimate.ElapsedMinutes,
		EstimatedAmount: st.Estimate.Amount,
		SettledAmount:   st.TotalAmount,
	}
}

func usernameOf(ctx context.Context) string {
	id, _ := auth.FromContext(ctx)
	return id.Username
}
