package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"parkspot-backend/config"
	"parkspot-backend/internal/api"
	"parkspot-backend/internal/auth"
	"parkspot-backend/internal/backend"
	"parkspot-backend/internal/db"
	"parkspot-backend/internal/logging"
	"parkspot-backend/internal/notification"
	"parkspot-backend/internal/parking"
	"parkspot-backend/internal/signup"
	"parkspot-backend/internal/store"
	"parkspot-backend/internal/usage"
)

func main() {
	// A missing .env is fine; the environment may already carry the secrets.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("configuration loaded", zap.String("path", configPath))

	publicKey, err := cfg.Auth.PublicKey()
	if err != nil {
		logger.Fatal("failed to read token public key", zap.Error(err))
	}
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, publicKey, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal("failed to configure token verification", zap.Error(err))
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var webpushOptions *webpush.Options
	var notifier notification.Dispatcher = notification.Nop{}
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatal("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger)
		pool.Start(ctx)
		notifier = pool
	}

	client := backend.NewClient(cfg.Backend, logger)
	registry := usage.NewRegistry(client, cfg.Session.TickPeriod, nil, logger)
	responses := cache.New(cfg.Server.CacheTTL, 2*cfg.Server.CacheTTL)

	svc := parking.NewService(client, registry, appStore, notifier, responses, parking.Options{
		Location:        cfg.Location(),
		RefreshInterval: cfg.Session.RefreshInterval,
	}, logger)
	go svc.Run(ctx)

	limiter := api.NewLimiter(cfg.Server)

	scheduler := cron.New(cron.WithLocation(cfg.Location()))
	if err := svc.Schedule(scheduler); err != nil {
		logger.Fatal("failed to schedule maintenance jobs", zap.Error(err))
	}
	if _, err := scheduler.AddFunc("@hourly", func() {
		logger.Debug("pruned idle rate limiters", zap.Int("count", limiter.Prune()))
	}); err != nil {
		logger.Fatal("failed to schedule rate limiter prune", zap.Error(err))
	}
	scheduler.Start()

	wizards := signup.NewStore(client, signup.DefaultTTL, logger)

	router := api.NewRouter(api.Deps{
		Parking:   svc,
		Signup:    wizards,
		Store:     appStore,
		WebPush:   webpushOptions,
		Verifier:  verifier,
		Limiter:   limiter,
		Responses: responses,
		Server:    cfg.Server,
		Log:       logger,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")

	cancel()
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
		return
	}

	logger.Info("server gracefully stopped")
}
