package signup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/backend"
)

// mockRegistrar is a mock implementation of backend.Registrar.
type mockRegistrar struct {
	RequestCodeF func(ctx context.Context, phone string) error
	VerifyCodeF  func(ctx context.Context, phone, code string) (string, error)
	RegisterF    func(ctx context.Context, req backend.RegisterRequest) (*backend.RegisterResult, error)
}

func (m *mockRegistrar) RequestCode(ctx context.Context, phone string) error {
	if m.RequestCodeF == nil {
		return nil
	}
	return m.RequestCodeF(ctx, phone)
}

func (m *mockRegistrar) VerifyCode(ctx context.Context, phone, code string) (string, error) {
	if m.VerifyCodeF == nil {
		return "vt-" + code, nil
	}
	return m.VerifyCodeF(ctx, phone, code)
}

func (m *mockRegistrar) Register(ctx context.Context, req backend.RegisterRequest) (*backend.RegisterResult, error) {
	if m.RegisterF == nil {
		return &backend.RegisterResult{AccessToken: "at", Username: req.Username}, nil
	}
	return m.RegisterF(ctx, req)
}

func TestStore_HappyPath(t *testing.T) {
	var registered backend.RegisterRequest
	reg := &mockRegistrar{
		RequestCodeF: func(_ context.Context, phone string) error {
			assert.Equal(t, "13800138000", phone)
			return nil
		},
		RegisterF: func(_ context.Context, req backend.RegisterRequest) (*backend.RegisterResult, error) {
			registered = req
			return &backend.RegisterResult{AccessToken: "at-1", Username: req.Username}, nil
		},
	}
	s := NewStore(reg, time.Minute, zap.NewNop())
	ctx := context.Background()

	w := s.Begin()
	assert.Equal(t, StepPhoneEntry, w.Step)

	w, err := s.SubmitPhone(ctx, w.ID, "+86 138-0013-8000")
	require.NoError(t, err)
	assert.Equal(t, StepCodeVerification, w.Step)
	assert.Equal(t, "13800138000", w.Phone)

	w, err = s.SubmitCode(ctx, w.ID, " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, StepProfileDetails, w.Step)

	w, err = s.SubmitProfile(ctx, w.ID, Profile{Username: " lin ", Password: "secret1", VehiclePlate: "沪a12345"})
	require.NoError(t, err)
	assert.Equal(t, StepCompleted, w.Step)
	assert.Equal(t, "at-1", w.Account.AccessToken)
	assert.Empty(t, w.VerificationToken)

	assert.Equal(t, backend.RegisterRequest{
		VerificationToken: "vt-123456",
		Phone:             "13800138000",
		Username:          "lin",
		Password:          "secret1",
		VehiclePlate:      "沪A12345",
	}, registered)
}

func TestStore_GuardedTransitions(t *testing.T) {
	s := NewStore(&mockRegistrar{}, time.Minute, zap.NewNop())
	ctx := context.Background()
	w := s.Begin()

	_, err := s.SubmitCode(ctx, w.ID, "123456")
	assert.ErrorIs(t, err, apperr.ErrWrongStep)
	_, err = s.SubmitProfile(ctx, w.ID, Profile{Username: "lin", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrWrongStep)
	_, err = s.Back(w.ID)
	assert.ErrorIs(t, err, apperr.ErrWrongStep, "nothing before the first step")

	w, err = s.SubmitPhone(ctx, w.ID, "13800138000")
	require.NoError(t, err)
	_, err = s.SubmitPhone(ctx, w.ID, "13800138000")
	assert.ErrorIs(t, err, apperr.ErrWrongStep)
}

func TestStore_ValidationKeepsStep(t *testing.T) {
	calls := 0
	reg := &mockRegistrar{RequestCodeF: func(context.Context, string) error {
		calls++
		return nil
	}}
	s := NewStore(reg, time.Minute, zap.NewNop())
	ctx := context.Background()
	w := s.Begin()

	_, err := s.SubmitPhone(ctx, w.ID, "12345")
	assert.ErrorIs(t, err, apperr.ErrInvalidPhone)
	assert.Zero(t, calls, "invalid input never reaches the backend")

	w, err = s.SubmitPhone(ctx, w.ID, "13800138000")
	require.NoError(t, err)
	_, err = s.SubmitCode(ctx, w.ID, "12ab")
	assert.ErrorIs(t, err, apperr.ErrInvalidCode)

	w, err = s.SubmitCode(ctx, w.ID, "1234")
	require.NoError(t, err)
	_, err = s.SubmitProfile(ctx, w.ID, Profile{Username: "l", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidProfile)
	_, err = s.SubmitProfile(ctx, w.ID, Profile{Username: "lin", Password: "123"})
	assert.ErrorIs(t, err, apperr.ErrInvalidProfile)

	w, err = s.Get(w.ID)
	require.NoError(t, err)
	assert.Equal(t, StepProfileDetails, w.Step)
}

func TestStore_BackendFailureKeepsStep(t *testing.T) {
	reg := &mockRegistrar{VerifyCodeF: func(context.Context, string, string) (string, error) {
		return "", apperr.ErrInvalidCode.WithMessage("验证码错误")
	}}
	s := NewStore(reg, time.Minute, zap.NewNop())
	ctx := context.Background()
	w := s.Begin()
	w, err := s.SubmitPhone(ctx, w.ID, "13800138000")
	require.NoError(t, err)

	_, err = s.SubmitCode(ctx, w.ID, "000000")
	assert.ErrorIs(t, err, apperr.ErrInvalidCode)
	assert.ErrorContains(t, err, "验证码错误")

	w, err = s.Get(w.ID)
	require.NoError(t, err)
	assert.Equal(t, StepCodeVerification, w.Step)
}

func TestStore_Back(t *testing.T) {
	s := NewStore(&mockRegistrar{}, time.Minute, zap.NewNop())
	ctx := context.Background()
	w := s.Begin()
	w, _ = s.SubmitPhone(ctx, w.ID, "13800138000")
	w, _ = s.SubmitCode(ctx, w.ID, "123456")
	require.Equal(t, StepProfileDetails, w.Step)

	w, err := s.Back(w.ID)
	require.NoError(t, err)
	assert.Equal(t, StepCodeVerification, w.Step)
	assert.Empty(t, w.VerificationToken, "going back discards the verification")

	w, err = s.Back(w.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPhoneEntry, w.Step)

	w, _ = s.SubmitPhone(ctx, w.ID, "13900139000")
	w, _ = s.SubmitCode(ctx, w.ID, "123456")
	w, err = s.SubmitProfile(ctx, w.ID, Profile{Username: "lin", Password: "secret1"})
	require.NoError(t, err)
	_, err = s.Back(w.ID)
	assert.ErrorIs(t, err, apperr.ErrWrongStep, "a completed wizard is final")
}

func TestStore_UnknownAndExpired(t *testing.T) {
	s := NewStore(&mockRegistrar{}, 20*time.Millisecond, zap.NewNop())

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	w := s.Begin()
	time.Sleep(40 * time.Millisecond)
	_, err = s.SubmitPhone(context.Background(), w.ID, "13800138000")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
		valid    bool
	}{
		{"13800138000", "13800138000", true},
		{"+8613800138000", "13800138000", true},
		{" 138 0013 8000 ", "13800138000", true},
		{"12800138000", "", false},
		{"1380013800", "", false},
		{"", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizePhone(tc.in)
			if !tc.valid {
				assert.ErrorIs(t, err, apperr.ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
