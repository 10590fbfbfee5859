package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure by how the caller should react to it.
type Kind int

const (
	// KindValidation is bad input caught before any backend call.
	KindValidation Kind = iota + 1
	// KindConflict is a state clash reported by the backend (or the local
	// session guard). Retrying the same parameters will not help.
	KindConflict
	// KindTransient is a network failure or timeout. The user may retry.
	KindTransient
	KindNotFound
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// Error is an operation-scoped failure with a stable code for clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped copies of a sentinel compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind
}

// Wrap returns a copy of the sentinel carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// WithMessage returns a copy of the sentinel with a backend-supplied message.
func (e *Error) WithMessage(msg string) *Error {
	if msg == "" {
		return e
	}
	return &Error{Kind: e.Kind, Code: e.Code, Message: msg, Err: e.Err}
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrEmptyPlate       = newErr(KindValidation, "empty_plate", "vehicle plate is required")
	ErrInvalidTimeRange = newErr(KindValidation, "invalid_time_range", "end time must be after start time")
	ErrInvalidTime      = newErr(KindValidation, "invalid_time", "time must be HH:MM or HH:MM:SS")
	ErrInvalidDate      = newErr(KindValidation, "invalid_date", "date must be YYYY-MM-DD")
	ErrPastDate         = newErr(KindValidation, "past_date", "reservation date is in the past")
	ErrInvalidPhone     = newErr(KindValidation, "invalid_phone", "phone number is not valid")
	ErrInvalidCode      = newErr(KindValidation, "invalid_code", "verification code is not valid")
	ErrInvalidProfile   = newErr(KindValidation, "invalid_profile", "profile details are incomplete")

	ErrSpotUnavailable        = newErr(KindConflict, "spot_unavailable", "parking spot is not available")
	ErrAlreadyActiveElsewhere = newErr(KindConflict, "already_active", "an active parking session already exists")
	ErrTimeConflict           = newErr(KindConflict, "time_conflict", "requested time overlaps an existing reservation")
	ErrNoActiveSession        = newErr(KindConflict, "no_active_session", "there is no active parking session")
	ErrCommandInFlight        = newErr(KindConflict, "command_in_flight", "another parking command is still pending")
	ErrWrongStep              = newErr(KindConflict, "wrong_step", "action is not allowed at this step")
	ErrRejected               = newErr(KindConflict, "rejected", "request was rejected by the parking service")

	ErrBackendUnavailable = newErr(KindTransient, "backend_unavailable", "parking service is unreachable, please retry")

	ErrNotFound     = newErr(KindNotFound, "not_found", "resource not found")
	ErrUnauthorized = newErr(KindUnauthorized, "unauthorized", "sign-in required")
)

// KindOf returns the kind of err, treating unknown errors as transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// Retryable reports whether the user may retry the same operation.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Code returns the stable client code of err.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrBackendUnavailable.Code
}

// HTTPStatus maps err onto the status the local API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusServiceUnavailable
}
