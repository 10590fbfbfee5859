package backend

import (
	"context"
	"encoding/json"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/model"
)

// Service is the authoritative parking backend as seen by the core.
type Service interface {
	GetCurrentUsage(ctx context.Context) (*model.UsageSession, error)
	StartParking(ctx context.Context, spotID int64, plate string) (*model.UsageSession, error)
	EndParking(ctx context.Context, spotID int64) (*EndResult, error)
	GetReservations(ctx context.Context, spotID int64) ([]model.Reservation, error)
	CreateReservation(ctx context.Context, req model.ReservationRequest) (*model.Reservation, error)
	GetParkingSpot(ctx context.Context, spotID int64) (*model.ParkingSpot, error)
	Registrar
}

// Registrar is the account-creation part of the backend used by the signup
// wizard.
type Registrar interface {
	RequestCode(ctx context.Context, phone string) error
	VerifyCode(ctx context.Context, phone, code string) (string, error)
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
}

// EndResult is the backend's settlement of an ended session.
type EndResult struct {
	TotalAmount float64 `json:"total_amount"`
}

// RegisterRequest completes an account once the phone is verified.
type RegisterRequest struct {
	VerificationToken string `json:"verification_token"`
	Phone             string `json:"phone"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	VehiclePlate      string `json:"vehicle_plate,omitempty"`
}

// RegisterResult carries the new account's access token.
type RegisterResult struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
}

// Envelope models the top-level structure of every backend response.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Application codes carried in Envelope.Code.
const (
	CodeOK                     = 0
	CodeSpotUnavailable        = 1001
	CodeAlreadyActiveElsewhere = 1002
	CodeTimeConflict           = 1003
	CodePastDate               = 1004
	CodeNoActiveSession        = 1005
	CodeInvalidCode            = 1006
	CodeUnauthorized           = 1401
	CodeNotFound               = 1404
)

// codeError turns a non-zero application code into the matching error,
// keeping the backend's message for display.
func codeError(code int, message string) error {
	var base *apperr.Error
	switch code {
	case CodeSpotUnavailable:
		base = apperr.ErrSpotUnavailable
	case CodeAlreadyActiveElsewhere:
		base = apperr.ErrAlreadyActiveElsewhere
	case CodeTimeConflict:
		base = apperr.ErrTimeConflict
	case CodePastDate:
		base = apperr.ErrPastDate
	case CodeNoActiveSession:
		base = apperr.ErrNoActiveSession
	case CodeInvalidCode:
		base = apperr.ErrInvalidCode
	case CodeUnauthorized:
		base = apperr.ErrUnauthorized
	case CodeNotFound:
		base = apperr.ErrNotFound
	default:
		base = apperr.ErrRejected
	}
	return base.WithMessage(message)
}
