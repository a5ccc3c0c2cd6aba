package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NomadCrew/dojo-portal/config"
	"github.com/NomadCrew/dojo-portal/handlers"
	"github.com/NomadCrew/dojo-portal/internal/events"
	"github.com/NomadCrew/dojo-portal/internal/inbox"
	"github.com/NomadCrew/dojo-portal/internal/portal"
	"github.com/NomadCrew/dojo-portal/internal/profile"
	"github.com/NomadCrew/dojo-portal/internal/verification"
	"github.com/NomadCrew/dojo-portal/internal/websocket"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/pkg/valueobjects"
	"github.com/NomadCrew/dojo-portal/router"
	"github.com/NomadCrew/dojo-portal/services"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger.InitLogger()
	log := logger.GetLogger()
	defer func() { _ = logger.Close() }()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional. Without it broadcasts stay in process and codes live in memory.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = newRedisClient(cfg)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warnw("Redis unreachable at startup, continuing degraded", "address", cfg.Redis.Address, "error", err)
		}
		cancel()
	}

	store := portal.NewClient(cfg.Portal.BaseURL, cfg.Portal.APIKey, portal.WithTimeout(cfg.Portal.Timeout()))

	var publisher types.EventPublisher
	var shutdownPublisher func(context.Context) error
	if redisClient != nil {
		redisPublisher := events.NewRedisPublisher(redisClient, events.Config{
			PublishTimeout:   time.Duration(cfg.EventService.PublishTimeoutSeconds) * time.Second,
			SubscribeTimeout: time.Duration(cfg.EventService.SubscribeTimeoutSeconds) * time.Second,
			EventBufferSize:  cfg.EventService.EventBufferSize,
		})
		publisher = redisPublisher
		shutdownPublisher = redisPublisher.Shutdown
	} else {
		bus := events.NewBus(cfg.EventService.EventBufferSize)
		publisher = bus
		shutdownPublisher = func(context.Context) error {
			bus.Close()
			return nil
		}
	}

	workerPool := services.NewWorkerPool(cfg.WorkerPool)
	workerPool.Start()

	broadcaster := inbox.NewBroadcaster(publisher, workerPool, cfg.Inbox.ConfirmDelay())
	registry := inbox.NewRegistry(store, cfg.Inbox, broadcaster)
	go registry.Run(ctx, time.Minute)

	var limiter services.RateLimiterInterface
	var codeStore verification.CodeStore
	if redisClient != nil {
		limiter = services.NewRateLimitService(redisClient)
		codeStore = verification.NewRedisStore(redisClient)
	} else {
		limiter = services.NewLocalRateLimiter()
		memoryStore := verification.NewMemoryStore()
		go memoryStore.Run(ctx, cfg.Verification.SweepInterval())
		codeStore = memoryStore
	}
	verifier := verification.NewService(codeStore, limiter, verification.NewLogSender(), cfg.Verification, cfg.RateLimit)

	hub := websocket.NewHub(publisher)
	healthService := services.NewHealthService(store, redisClient, cfg.Server.Version)
	healthService.SetActiveConnectionsGetter(hub.GetConnectionCount)

	r := router.SetupRouter(router.Dependencies{
		Config:              cfg,
		HealthHandler:       handlers.NewHealthHandler(healthService),
		InboxHandler:        handlers.NewInboxHandler(registry),
		ProfileHandler:      handlers.NewProfileHandler(profile.NewAggregator(store, valueobjects.DefaultCurrency)),
		VerificationHandler: handlers.NewVerificationHandler(verifier),
		WSHandler:           websocket.NewHandler(hub, &cfg.Server, registry),
		CodeLimiter:         limiter,
		Logger:              log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("Starting server", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.WorkerPool.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warnw("WebSocket hub shutdown incomplete", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown failed", "error", err)
	}
	registry.Close()
	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Worker pool shutdown incomplete", "error", err)
	}
	if err := shutdownPublisher(shutdownCtx); err != nil {
		log.Warnw("Event publisher shutdown incomplete", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warnw("Failed to close Redis client", "error", err)
		}
	}

	log.Info("Server stopped")
}

func newRedisClient(cfg *config.Config) *redis.Client {
	options := &redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}
	if cfg.Redis.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName: hostOnly(cfg.Redis.Address),
			MinVersion: tls.VersionTLS12,
		}
	}
	return redis.NewClient(options)
}

func hostOnly(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}
