package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/dhernos/dynpages/internal/auth"
	"github.com/dhernos/dynpages/internal/config"
	"github.com/dhernos/dynpages/internal/database"
	"github.com/dhernos/dynpages/internal/housekeeping"
	"github.com/dhernos/dynpages/internal/linkpreview"
	"github.com/dhernos/dynpages/internal/logging"
	"github.com/dhernos/dynpages/internal/pages"
	"github.com/dhernos/dynpages/internal/ratelimit"
	redisx "github.com/dhernos/dynpages/internal/redis"
	"github.com/dhernos/dynpages/internal/server"
	"github.com/dhernos/dynpages/internal/uploads"
	"github.com/dhernos/dynpages/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, closer, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("log setup error: %v", err)
	}
	defer closer.Close()
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, database.Up); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	memWebhook := ratelimit.NewMemory(cfg.Webhook.RateLimit, cfg.Webhook.RateWindow, clock)
	memAuth := ratelimit.NewMemory(cfg.Limits.AuthRateLimit, time.Minute, clock)
	var webhookLimiter, authLimiter ratelimit.Limiter = memWebhook, memAuth
	audit := &auth.AuditLogger{Logger: logger.Named("audit"), MaxLen: 1000, Clock: clock}

	if cfg.RedisURL != "" {
		redisClient, err := redisx.New(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		webhookLimiter = ratelimit.NewRedis(redisClient, "ratelimit:webhook:", cfg.Webhook.RateLimit, cfg.Webhook.RateWindow, clock)
		authLimiter = ratelimit.NewRedis(redisClient, "ratelimit:auth:", cfg.Limits.AuthRateLimit, time.Minute, clock)
		audit.Redis = redisClient
		logger.Info("using shared rate limiter")
	}

	pageRepo := pages.NewRepository(db)
	tokens := pages.NewAccessTokenService(pageRepo, clock)

	api := server.NewServer(cfg, logger, server.Deps{
		Clock:     clock,
		Users:     auth.NewUserRepository(db),
		Hasher:    auth.NewBcryptHasher(),
		Sessions:  auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL, clock),
		Pages:     pages.NewService(pageRepo, cfg.Limits.MaxPagesPerUser, cfg.Limits.SlugAttempts, nil),
		Tokens:    tokens,
		Endpoints: webhook.NewEndpoints(webhook.NewRepository(db)),
		Relay: webhook.NewRelay(webhook.RelayOptions{
			Timeout:          cfg.Webhook.Timeout,
			MaxResponseBytes: cfg.Webhook.MaxResponseBytes,
			BlockPrivate:     cfg.Webhook.BlockPrivate,
		}),
		Uploads:        uploads.NewService(uploads.NewRepository(db), cfg.UploadDir, cfg.MaxUploadBytes),
		Previews:       linkpreview.NewFetcher(5*time.Second, cfg.Webhook.BlockPrivate),
		WebhookLimiter: webhookLimiter,
		AuthLimiter:    authLimiter,
		Audit:          audit,
		DB:             db,
	})

	keeper := &housekeeping.Runner{
		Logger:    logger.Named("housekeeping"),
		Clock:     clock,
		Interval:  cfg.HousekeepingInterval,
		DB:        db,
		Sweepers:  []housekeeping.Sweeper{memWebhook, memAuth},
		Tokens:    tokens,
		Retention: cfg.AccessTokenRetention,
	}
	go keeper.Run(ctx)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
