package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	wrapped := fmt.Errorf("start parking: %w", ErrSpotUnavailable.WithMessage("车位已被占用"))

	assert.True(t, errors.Is(wrapped, ErrSpotUnavailable))
	assert.False(t, errors.Is(wrapped, ErrTimeConflict))
	assert.Equal(t, "spot_unavailable", Code(wrapped))
	assert.Contains(t, wrapped.Error(), "车位已被占用")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := ErrBackendUnavailable.Wrap(cause)

	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
}

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
		retry    bool
	}{
		{ErrEmptyPlate, http.StatusUnprocessableEntity, false},
		{ErrAlreadyActiveElsewhere, http.StatusConflict, false},
		{ErrBackendUnavailable, http.StatusServiceUnavailable, true},
		{ErrNotFound, http.StatusNotFound, false},
		{ErrUnauthorized, http.StatusUnauthorized, false},
		{errors.New("boom"), http.StatusServiceUnavailable, true},
	}

	for _, tc := range testCases {
		t.Run(Code(tc.err), func(t *testing.T) {
			assert.Equal(t, tc.expected, HTTPStatus(tc.err))
			assert.Equal(t, tc.retry, Retryable(tc.err))
		})
	}
}
