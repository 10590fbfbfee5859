package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/model"
	"parkspot-backend/internal/parking"
	"parkspot-backend/internal/signup"
	"parkspot-backend/internal/store"
	"parkspot-backend/internal/usage"
)

// Parking is the part of parking.Service the handlers call.
type Parking interface {
	Spot(ctx context.Context, spotID int64) (*parking.SpotView, error)
	Timeline(ctx context.Context, spotID int64, date string) (*parking.TimelineView, error)
	PreviewReservation(ctx context.Context, spotID int64, date, start, end string) (*parking.Preview, error)
	CreateReservation(ctx context.Context, req model.ReservationRequest) (*model.Reservation, error)
	CurrentUsage(ctx context.Context) (*parking.UsageView, error)
	StartParking(ctx context.Context, spotID int64, plate string) (*parking.UsageView, error)
	EndParking(ctx context.Context) (*usage.Settlement, error)
	Receipts(ctx context.Context, since time.Time, limit int) ([]model.UsageReceipt, error)
	Tracker(ctx context.Context) (*usage.Tracker, func(), error)
}

// Signup is the part of signup.Store the handlers call.
type Signup interface {
	Begin() signup.Wizard
	Get(id string) (signup.Wizard, error)
	SubmitPhone(ctx context.Context, id, phone string) (signup.Wizard, error)
	SubmitCode(ctx context.Context, id, code string) (signup.Wizard, error)
	SubmitProfile(ctx context.Context, id string, p signup.Profile) (signup.Wizard, error)
	Back(id string) (signup.Wizard, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	parking  Parking
	signup   Signup
	store    store.Store
	webpush  *webpush.Options
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler creates a new API handler. allowedOrigins restricts websocket
// handshakes; an empty list or "*" accepts any origin.
func NewHandler(p Parking, su Signup, s store.Store, webpushOptions *webpush.Options, allowedOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		parking: p,
		signup:  su,
		store:   s,
		webpush: webpushOptions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: logger.Named("api"),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// respondError writes err in the shape every endpoint shares.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":     err.Error(),
		"code":      apperr.Code(err),
		"retryable": apperr.Retryable(err),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":     err.Error(),
		"code":      "bad_request",
		"retryable": false,
	})
}

func spotID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("spot_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.ErrNotFound.WithMessage("unknown parking spot")
	}
	return id, nil
}
