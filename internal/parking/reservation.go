package parking

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/billing"
	"parkspot-backend/internal/hours"
	"parkspot-backend/internal/model"
	"parkspot-backend/internal/notification"
	"parkspot-backend/internal/reservation"
)

// Preview prices a prospective reservation and lists the reservations it
// would collide with. Conflicts are advisory; the backend decides.
type Preview struct {
	SpotID        int64               `json:"spot_id"`
	Date          string              `json:"date"`
	StartTime     string              `json:"start_time"`
	EndTime       string              `json:"end_time"`
	Hours         float64             `json:"hours"`
	HourlyRate    float64             `json:"hourly_rate"`
	Cost          float64             `json:"cost"`
	WithinOpening bool                `json:"within_opening"`
	Conflicts     []model.Reservation `json:"conflicts"`
}

type validRange struct {
	date       string
	start, end float64
}

// validateRange checks a reservation request locally: a well-formed date
// that is not in the past, well-formed times and end after start.
func (s *Service) validateRange(date, start, end string) (validRange, error) {
	now := s.clock()
	if strings.TrimSpace(date) == "" {
		return validRange{}, apperr.ErrInvalidDate
	}
	day, err := s.parseDate(date, now)
	if err != nil {
		return validRange{}, err
	}
	today, _ := s.parseDate("", now)
	if day.Before(today) {
		return validRange{}, apperr.ErrPastDate
	}

	startH, err := reservation.ParseClock(strings.TrimSpace(start))
	if err != nil {
		return validRange{}, apperr.ErrInvalidTime.Wrap(err)
	}
	endH, err := reservation.ParseClock(strings.TrimSpace(end))
	if err != nil {
		return validRange{}, apperr.ErrInvalidTime.Wrap(err)
	}
	if endH <= startH {
		return validRange{}, apperr.ErrInvalidTimeRange
	}
	return validRange{date: day.Format(dateLayout), start: startH, end: endH}, nil
}

// PreviewReservation validates the range, prices it with PreviewCost and
// reports overlapping reservations.
func (s *Service) PreviewReservation(ctx context.Context, spotID int64, date, start, end string) (*Preview, error) {
	r, err := s.validateRange(date, start, end)
	if err != nil {
		return nil, err
	}

	spot, err := s.backend.GetParkingSpot(ctx, spotID)
	if err != nil {
		return nil, err
	}
	all, err := s.backend.GetReservations(ctx, spotID)
	if err != nil {
		return nil, err
	}

	idx := s.index(onDate(all, r.date))
	conflicts := make([]model.Reservation, 0)
	for _, e := range idx.Conflicts(r.start, r.end) {
		conflicts = append(conflicts, e.Reservation)
	}

	opening := s.opening(spot)
	span := r.end - r.start
	return &Preview{
		SpotID:        spotID,
		Date:          r.date,
		StartTime:     hours.Format(r.start),
		EndTime:       hours.Format(r.end),
		Hours:         span,
		HourlyRate:    spot.HourlyRate,
		Cost:          billing.PreviewCost(span, spot.HourlyRate),
		WithinOpening: r.start >= opening.StartHour && r.end <= opening.EndHour,
		Conflicts:     conflicts,
	}, nil
}

// CreateReservation validates req locally and then books it. Local checks
// only catch malformed input; overlap is left to the backend.
func (s *Service) CreateReservation(ctx context.Context, req model.ReservationRequest) (*model.Reservation, error) {
	r, err := s.validateRange(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	req.Date = r.date
	req.StartTime = hours.Format(r.start) + ":00"
	req.EndTime = hours.Format(r.end) + ":00"
	req.Notes = strings.TrimSpace(req.Notes)

	created, err := s.backend.CreateReservation(ctx, req)
	if err != nil {
		s.log.Info("reservation rejected", zap.Int64("spot_id", req.SpotID), zap.String("date", req.Date), zap.Error(err))
		return nil, err
	}
	s.log.Info("reservation created", zap.Int64("reservation_id", created.ID), zap.Int64("spot_id", req.SpotID))

	if username := usernameOf(ctx); username != "" {
		s.notifier.Dispatch(notification.Notice{
			Username: username,
			Title:    "预约成功",
			Body:     req.Date + " " + hours.Format(r.start) + "-" + hours.Format(r.end),
			Tag:      "reservation-created",
		})
	}
	return created, nil
}
