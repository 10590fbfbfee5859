package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"parkspot-backend/config"
	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/auth"
	"parkspot-backend/internal/model"
)

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

var _ Service = (*Client)(nil)

// NewClient creates a backend client from the backend config section.
func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid proxy URL, backend client will not use a proxy",
				zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	limit := rate.Limit(cfg.RateLimitPerSec)
	if cfg.RateLimitPerSec <= 0 {
		limit = rate.Inf
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, max(cfg.RateBurst, 1)),
		log:     logger,
	}
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches the key sent with state-changing requests so
// the backend can recognise a retried command.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey.
func IdempotencyKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey{}).(string)
	return key, ok && key != ""
}

// GetCurrentUsage returns the caller's active session or nil.
func (c *Client) GetCurrentUsage(ctx context.Context) (*model.UsageSession, error) {
	var session *model.UsageSession
	if err := c.do(ctx, http.MethodGet, "/usage/current", nil, &session); err != nil {
		return nil, err
	}
	if session != nil && session.Status == "" {
		session.Status = model.UsageActive
	}
	return session, nil
}

// StartParking opens a session on spotID.
func (c *Client) StartParking(ctx context.Context, spotID int64, plate string) (*model.UsageSession, error) {
	body := map[string]any{"spot_id": spotID, "vehicle_plate": plate}
	var session model.UsageSession
	if err := c.do(ctx, http.MethodPost, "/usage/start", body, &session); err != nil {
		return nil, err
	}
	if session.Status == "" {
		session.Status = model.UsageActive
	}
	session.StartTime = session.StartTime.UTC()
	return &session, nil
}

// EndParking closes the session on spotID. The backend answers a repeated
// end for the same session with the original settlement.
func (c *Client) EndParking(ctx context.Context, spotID int64) (*EndResult, error) {
	body := map[string]any{"spot_id": spotID}
	var res EndResult
	if err := c.do(ctx, http.MethodPost, "/usage/end", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetReservations lists every reservation of spotID.
func (c *Client) GetReservations(ctx context.Context, spotID int64) ([]model.Reservation, error) {
	var reservations []model.Reservation
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/spots/%d/reservations", spotID), nil, &reservations); err != nil {
		return nil, err
	}
	return reservations, nil
}

// CreateReservation books a time range on a spot.
func (c *Client) CreateReservation(ctx context.Context, req model.ReservationRequest) (*model.Reservation, error) {
	var created model.Reservation
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/spots/%d/reservations", req.SpotID), req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetParkingSpot fetches rate, opening hours and raw status of a spot.
func (c *Client) GetParkingSpot(ctx context.Context, spotID int64) (*model.ParkingSpot, error) {
	var spot model.ParkingSpot
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/spots/%d", spotID), nil, &spot); err != nil {
		return nil, err
	}
	if spot.ID == 0 {
		spot.ID = spotID
	}
	return &spot, nil
}

// RequestCode asks the backend to text a verification code to phone.
func (c *Client) RequestCode(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodPost, "/auth/code", map[string]string{"phone": phone}, nil)
}

// VerifyCode exchanges a code for a verification token.
func (c *Client) VerifyCode(ctx context.Context, phone, code string) (string, error) {
	var res struct {
		VerificationToken string `json:"verification_token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/verify", map[string]string{"phone": phone, "code": code}, &res); err != nil {
		return "", err
	}
	return res.VerificationToken, nil
}

// Register creates the account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	var res RegisterResult
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do performs one request. Nothing is retried: a failure of any kind is
// returned to the caller, and silence (timeout) is never read as success.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.ErrBackendUnavailable.Wrap(fmt.Errorf("rate limiter: %w", err))
	}

	var body io.Reader
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id, ok := auth.FromContext(ctx); ok && id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}
	if key, ok := IdempotencyKey(ctx); ok {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("backend request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return apperr.ErrBackendUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.ErrBackendUnavailable.Wrap(fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	case resp.StatusCode >= 500:
		return apperr.ErrBackendUnavailable.Wrap(fmt.Errorf("received status code %d", resp.StatusCode))
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return apperr.ErrNotFound
		}
		return apperr.ErrBackendUnavailable.Wrap(fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err))
	}
	if env.Code != CodeOK {
		c.log.Debug("backend rejected request",
			zap.String("path", path), zap.Int("code", env.Code), zap.String("message", env.Message))
		return codeError(env.Code, env.Message)
	}
	if resp.StatusCode >= 400 {
		return apperr.ErrRejected.Wrap(fmt.Errorf("received status code %d", resp.StatusCode))
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.ErrBackendUnavailable.Wrap(fmt.Errorf("failed to unmarshal response data: %w", err))
	}
	return nil
}
