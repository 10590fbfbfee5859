package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkspot-backend/config"
	"parkspot-backend/internal/api"
	"parkspot-backend/internal/auth"
	"parkspot-backend/internal/backend"
	"parkspot-backend/internal/db"
	"parkspot-backend/internal/model"
	"parkspot-backend/internal/parking"
	"parkspot-backend/internal/signup"
	"parkspot-backend/internal/store"
	"parkspot-backend/internal/usage"
)

// fakeBackend serves the parking backend's envelope API for one spot.
type fakeBackend struct {
	mu       sync.Mutex
	session  *model.UsageSession
	keys     []string
	requests int
}

func (f *fakeBackend) write(w http.ResponseWriter, code int, data any) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(backend.Envelope{Code: code, Data: raw})
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	switch r.Method + " " + r.URL.Path {
	case "GET /spots/7":
		status := model.SpotAvailable
		if f.session != nil {
			status = model.SpotOccupied
		}
		f.write(w, backend.CodeOK, model.ParkingSpot{ID: 7, Name: "B-07", HourlyRate: 10, OpeningHours: "24小时", Status: status})
	case "GET /spots/7/reservations":
		f.write(w, backend.CodeOK, []model.Reservation{})
	case "GET /usage/current":
		f.write(w, backend.CodeOK, f.session)
	case "POST /usage/start":
		f.keys = append(f.keys, r.Header.Get("Idempotency-Key"))
		if f.session != nil {
			f.write(w, backend.CodeAlreadyActiveElsewhere, nil)
			return
		}
		f.session = &model.UsageSession{
			ID:           41,
			SpotID:       7,
			StartTime:    time.Now().Add(-90 * time.Minute).UTC(),
			VehiclePlate: "沪A12345",
			HourlyRate:   10,
			Status:       model.UsageActive,
		}
		f.write(w, backend.CodeOK, f.session)
	case "POST /usage/end":
		if f.session == nil {
			f.write(w, backend.CodeNoActiveSession, nil)
			return
		}
		f.session = nil
		f.write(w, backend.CodeOK, backend.EndResult{TotalAmount: 20})
	default:
		http.NotFound(w, r)
	}
}

const backendSecret = "backend-secret"

func bearer(t *testing.T, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Username:         "lin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
	}).SignedString([]byte(key))
	require.NoError(t, err)
	return "Bearer " + s
}

// TestParkingSessionLifecycle drives one session from start to settlement
// through the HTTP surface, against a fake backend and an in-memory ledger.
func TestParkingSessionLifecycle(t *testing.T) {
	// --- Test Setup ---
	logger := zap.NewNop()

	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:lifecycle?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	appStore := store.NewGormStore(gormDB)

	fake := &fakeBackend{}
	upstream := httptest.NewServer(fake)
	defer upstream.Close()

	client := backend.NewClient(config.BackendConfig{BaseURL: upstream.URL, Timeout: 2 * time.Second}, logger)
	registry := usage.NewRegistry(client, 50*time.Millisecond, nil, logger)
	responses := cache.New(time.Minute, time.Minute)
	svc := parking.NewService(client, registry, appStore, nil, responses, parking.Options{Location: time.UTC}, logger)

	verifier, err := auth.NewVerifier(backendSecret, nil, "")
	require.NoError(t, err)

	router := api.NewRouter(api.Deps{
		Parking:   svc,
		Signup:    signup.NewStore(client, signup.DefaultTTL, logger),
		Store:     appStore,
		Verifier:  verifier,
		Responses: responses,
		Server:    config.ServerConfig{RateLimitPerSec: 1000, RateBurst: 1000, CacheTTL: time.Minute},
		Log:       logger,
	})

	token := bearer(t, backendSecret)
	call := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body != "" {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		req.Header.Set("Authorization", token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// --- Step 1: the spot is free and open all day ---
	w := call(http.MethodGet, "/api/spots/7", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var spot parking.SpotView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spot))
	assert.Equal(t, model.SpotAvailable, spot.Status)
	assert.True(t, spot.AllDay)
	assert.Len(t, spot.Slots, 24)

	// An empty receipt listing is cached for the caller.
	call(http.MethodGet, "/api/usage/receipts", "")
	w = call(http.MethodGet, "/api/usage/receipts", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	// --- Step 2: start parking ---
	w = call(http.MethodPost, "/api/usage/start", `{"spot_id":7,"plate":"沪A12345"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var started parking.UsageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, usage.StateActive, started.State)
	require.NotNil(t, started.Projection)
	assert.Equal(t, 2, started.Projection.BilledHours)
	assert.Equal(t, 20.0, started.Projection.Amount)
	require.Len(t, fake.keys, 1)
	assert.NotEmpty(t, fake.keys[0])

	// The spot view is rebuilt on every request.
	w = call(http.MethodGet, "/api/spots/7", "")
	assert.Empty(t, w.Header().Get("X-Cache"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spot))
	assert.Equal(t, model.SpotOccupied, spot.Status)

	// A second start is refused locally without reaching the backend.
	w = call(http.MethodPost, "/api/usage/start", `{"spot_id":7,"plate":"沪A12345"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, fake.keys, 1)

	// --- Step 3: current usage reflects the backend ---
	w = call(http.MethodGet, "/api/usage/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"active"`)

	// --- Step 4: end and settle ---
	w = call(http.MethodPost, "/api/usage/end", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var settled usage.Settlement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settled))
	assert.True(t, settled.TotalAmount.Valid)
	assert.Equal(t, 20.0, settled.TotalAmount.Float64)
	assert.Equal(t, int64(41), settled.Session.ID)

	// --- Step 5: the receipt is in the ledger, not the stale cache ---
	w = call(http.MethodGet, "/api/usage/receipts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
	var body struct {
		Receipts []model.UsageReceipt `json:"receipts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Receipts, 1)
	receipt := body.Receipts[0]
	assert.Equal(t, "lin", receipt.Username)
	assert.Equal(t, "沪A12345", receipt.VehiclePlate)
	assert.Equal(t, 20.0, receipt.EstimatedAmount)
	assert.Equal(t, 0.0, receipt.Discrepancy())

	var rows int64
	require.NoError(t, gormDB.Model(&model.UsageReceipt{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	// --- Step 6: ending again is a conflict ---
	w = call(http.MethodPost, "/api/usage/end", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"no_active_session"`)

	// The tracker is no longer worth keeping.
	assert.Equal(t, 1, registry.Prune())

	// A token the backend did not sign is refused.
	req := httptest.NewRequest(http.MethodGet, "/api/usage/receipts", nil)
	req.Header.Set("Authorization", bearer(t, "someone-else"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
