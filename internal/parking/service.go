// Package parking composes the backend client, the pure timeline and
// billing functions and the per-user usage trackers into the operations
// the local API serves.
package parking

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/auth"
	"parkspot-backend/internal/backend"
	"parkspot-backend/internal/hours"
	"parkspot-backend/internal/model"
	"parkspot-backend/internal/notification"
	"parkspot-backend/internal/reservation"
	"parkspot-backend/internal/spotstatus"
	"parkspot-backend/internal/store"
	"parkspot-backend/internal/timeline"
	"parkspot-backend/internal/usage"
)

const dateLayout = "2006-01-02"

// receiptsPath is the API path of the receipt listing, whose cached
// responses are dropped when a session settles.
const receiptsPath = "/api/usage/receipts"

// Options tunes a Service. Zero values mean UTC, a one minute refresh and
// time.Now.
type Options struct {
	Location        *time.Location
	RefreshInterval time.Duration
	Now             func() time.Time
}

// Service is the parking application layer.
type Service struct {
	backend  backend.Service
	registry *usage.Registry
	store    store.Store
	notifier notification.Dispatcher
	cache    *cache.Cache
	loc      *time.Location
	refresh  time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewService wires a Service. notifier may be nil when push is disabled;
// responses is the HTTP response cache, from which a user's receipt
// listings are dropped when one of their sessions settles.
func NewService(b backend.Service, registry *usage.Registry, st store.Store, notifier notification.Dispatcher, responses *cache.Cache, opts Options, logger *zap.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &Service{
		backend:  b,
		registry: registry,
		store:    st,
		notifier: notifier,
		cache:    responses,
		loc:      opts.Location,
		refresh:  opts.RefreshInterval,
		now:      opts.Now,
		log:      logger,
	}
}

// SpotView is a spot with its reconciled status and today's timeline.
type SpotView struct {
	Spot    model.ParkingSpot  `json:"spot"`
	Status  model.SpotStatus   `json:"status"`
	Opening model.TimeInterval `json:"opening"`
	AllDay  bool               `json:"all_day"`
	Date    string             `json:"date"`
	Slots   []model.Slot       `json:"slots"`
}

// TimelineView is the hourly timeline of one spot on one date.
type TimelineView struct {
	SpotID  int64              `json:"spot_id"`
	Date    string             `json:"date"`
	Opening model.TimeInterval `json:"opening"`
	AllDay  bool               `json:"all_day"`
	Slots   []model.Slot       `json:"slots"`
}

// Spot fetches a spot, its reservations and the caller's session and
// derives the status shown to the user. Nothing here is cached: the status
// is recomputed from the backend's answers on every call.
func (s *Service) Spot(ctx context.Context, spotID int64) (*SpotView, error) {
	now := s.clock()
	spot, idx, err := s.spotAndIndex(ctx, spotID, now)
	if err != nil {
		return nil, err
	}

	active, release := s.activeSessions(ctx)
	defer release()

	opening := s.opening(spot)
	return &SpotView{
		Spot:    *spot,
		Status:  spotstatus.ReconcileIndexed(*spot, opening, active, idx, now),
		Opening: opening,
		AllDay:  opening == hours.AllDay,
		Date:    now.Format(dateLayout),
		Slots:   timeline.BuildIndexed(opening, idx, now, now),
	}, nil
}

// Timeline builds the slots of spotID for date (YYYY-MM-DD, empty for
// today in the facility time zone). Only today's timeline has a current
// slot.
func (s *Service) Timeline(ctx context.Context, spotID int64, date string) (*TimelineView, error) {
	now := s.clock()
	day, err := s.parseDate(date, now)
	if err != nil {
		return nil, err
	}

	spot, idx, err := s.spotAndIndex(ctx, spotID, day)
	if err != nil {
		return nil, err
	}

	opening := s.opening(spot)
	return &TimelineView{
		SpotID:  spotID,
		Date:    day.Format(dateLayout),
		Opening: opening,
		AllDay:  opening == hours.AllDay,
		Slots:   timeline.BuildIndexed(opening, idx, day, now),
	}, nil
}

// Purge flushes cached responses and drops idle trackers.
func (s *Service) Purge() {
	if s.cache != nil {
		s.cache.Flush()
	}
	pruned := s.registry.Prune()
	s.log.Info("daily purge complete", zap.Int("pruned_trackers", pruned))
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// spotAndIndex fetches a spot and the index of its reservations on day.
func (s *Service) spotAndIndex(ctx context.Context, spotID int64, day time.Time) (*model.ParkingSpot, *reservation.Index, error) {
	spot, err := s.backend.GetParkingSpot(ctx, spotID)
	if err != nil {
		return nil, nil, err
	}
	all, err := s.backend.GetReservations(ctx, spotID)
	if err != nil {
		return nil, nil, err
	}
	return spot, s.index(onDate(all, day.Format(dateLayout))), nil
}

// index normalises reservations, logging the ones it had to drop.
func (s *Service) index(reservations []model.Reservation) *reservation.Index {
	idx := reservation.NewIndex(reservations)
	for _, sk := range idx.Skipped() {
		s.log.Warn("ignoring malformed reservation",
			zap.Int64("reservation_id", sk.Reservation.ID), zap.Error(sk.Reason))
	}
	return idx
}

// opening parses the spot's hours, logging when the default is used.
func (s *Service) opening(spot *model.ParkingSpot) model.TimeInterval {
	iv, err := hours.TryParse(spot.OpeningHours)
	if err != nil {
		s.log.Warn("using default opening hours", zap.Int64("spot_id", spot.ID), zap.Error(err))
		return hours.Default
	}
	return iv
}

// activeSessions is the caller's active session, if the caller is known
// and has one. The returned func releases the caller's tracker.
func (s *Service) activeSessions(ctx context.Context) ([]model.UsageSession, func()) {
	id, ok := auth.FromContext(ctx)
	if !ok || id.UserID == "" {
		return nil, func() {}
	}
	t, release := s.registry.Acquire(id)
	state, session := t.Snapshot()
	if state != usage.StateActive || session == nil {
		return nil, release
	}
	return []model.UsageSession{*session}, release
}

func (s *Service) parseDate(date string, now time.Time) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, s.loc), nil
	}
	day, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, apperr.ErrInvalidDate
	}
	return day, nil
}

// invalidateReceipts drops the cached receipt listings of userID.
func (s *Service) invalidateReceipts(userID string) {
	if s.cache == nil {
		return
	}
	prefix := userID + "|" + receiptsPath
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}

// onDate keeps the reservations on date. The backend may send a full
// timestamp in the date field; only its date part is compared. A
// reservation without a date is taken to be on the requested day, since
// the backend's list is already scoped to the spot's schedule.
func onDate(all []model.Reservation, date string) []model.Reservation {
	out := make([]model.Reservation, 0, len(all))
	for _, r := range all {
		d := r.Date
		if len(d) > len(dateLayout) {
			d = d[:len(dateLayout)]
		}
		if d == "" || d == date {
			out = append(out, r)
		}
	}
	return out
}
