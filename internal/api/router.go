package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"parkspot-backend/config"
	"parkspot-backend/internal/mw"
	"parkspot-backend/internal/store"
)

// Deps is what the router wires into its handlers. Limiter and Responses
// are created from Server when nil.
type Deps struct {
	Parking   Parking
	Signup    Signup
	Store     store.Store
	WebPush   *webpush.Options
	Verifier  mw.TokenVerifier
	Limiter   *mw.KeyedRateLimiter
	Responses *cache.Cache
	Server    config.ServerConfig
	Log       *zap.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	origins := d.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "X-Cache"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	handler := NewHandler(d.Parking, d.Signup, d.Store, d.WebPush, origins, d.Log)

	limiter := d.Limiter
	if limiter == nil {
		limiter = NewLimiter(d.Server)
	}
	rateLimiter := mw.RateLimiter(limiter)

	ttl := d.Server.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	responses := d.Responses
	if responses == nil {
		responses = cache.New(ttl, 2*ttl)
	}
	caching := mw.Cache(responses, ttl)

	api := r.Group("/api")
	api.Use(mw.Identity(d.Verifier), rateLimiter)
	{
		// Spot status and the current slot are live; they are never cached.
		api.GET("/spots/:spot_id", handler.GetSpot)
		api.GET("/spots/:spot_id/timeline", handler.GetTimeline)
		api.GET("/spots/:spot_id/reservations/preview", handler.GetReservationPreview)
		api.POST("/spots/:spot_id/reservations", mw.RequireIdentity(), handler.PostReservation)

		signup := api.Group("/signup")
		signup.POST("", handler.PostSignup)
		signup.GET("/:id", handler.GetSignup)
		signup.POST("/:id/phone", handler.PostSignupPhone)
		signup.POST("/:id/code", handler.PostSignupCode)
		signup.POST("/:id/profile", handler.PostSignupProfile)
		signup.POST("/:id/back", handler.PostSignupBack)

		api.GET("/vapid_public_key", caching, handler.GetVAPIDPublicKey)
	}

	private := api.Group("", mw.RequireIdentity())
	{
		private.GET("/usage/current", handler.GetCurrentUsage)
		private.POST("/usage/start", handler.PostStartParking)
		private.POST("/usage/end", handler.PostEndParking)
		private.GET("/usage/live", handler.GetLiveUsage)
		private.GET("/usage/receipts", caching, handler.GetReceipts)

		private.GET("/subscriptions", handler.GetSubscription)
		private.PUT("/subscriptions", handler.PutSubscription)
		private.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	return r
}

// NewLimiter builds the per-caller rate limiter from cfg, defaulting to
// 10 requests per second with a burst of 5.
func NewLimiter(cfg config.ServerConfig) *mw.KeyedRateLimiter {
	limit, burst := cfg.RateLimitPerSec, cfg.RateBurst
	if limit <= 0 {
		limit = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return mw.NewKeyedRateLimiter(rate.Limit(limit), burst)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
