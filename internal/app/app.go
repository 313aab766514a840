// Package app wires configuration, infrastructure and domain services into a
// runnable unit. Transport layers (HTTP, gRPC) attach to the exported
// services; this package itself only runs the background worker and the
// metrics endpoint.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/config"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/service"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/events/kafka"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/infrastructure/database"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/infrastructure/database/postgres"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/infrastructure/notification"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/infrastructure/security"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/rate"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/migrations"
)

// App holds the wired service graph.
type App struct {
	Setup     *service.MFASetupService
	Challenge *service.MFAChallengeService
	Push      *service.MFAPushService
	Cleanup   *service.MFACleanupService

	cfg      *config.Config
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *kafka.Producer
}

// New builds the application: migrations, connection pools, repositories and
// services.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.Database.MigrationsUp {
		dbURL := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.Database.User, cfg.Database.Password, cfg.Database.Host,
			cfg.Database.Port, cfg.Database.DBName, cfg.Database.SSLMode)
		if err := migrations.Up(dbURL); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		log.Info("migrations applied")
	}

	pool, err := postgres.NewDBPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The limiter fails open, so a broken redis degrades to no limits.
		log.Warn("redis unavailable, rate limiting degraded", zap.Error(err))
	}
	limiter := rate.NewLimiter(redisClient, log)

	var producer *kafka.Producer
	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, "/mfa-service", log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("kafka producer failed: %w", err)
		}
		publisher = producer
	}

	methodRepo := database.NewPgxMFAMethodRepository(pool)
	recoveryRepo := database.NewPgxMFARecoveryCodeRepository(pool)
	challengeRepo := database.NewPgxMFAChallengeRepository(pool)
	webauthnRepo := database.NewPgxWebAuthnCredentialRepository(pool)
	pushDeviceRepo := database.NewPgxPushDeviceRepository(pool)
	pushChallengeRepo := database.NewPgxPushChallengeRepository(pool)

	hasher, err := security.NewArgon2idCodeHasher(security.DefaultArgon2idParams())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("hasher initialization failed: %w", err)
	}
	totpSvc := security.NewTOTPService(security.TOTPParams{
		Issuer:       cfg.MFA.Issuer,
		Digits:       cfg.MFA.TOTPDigits,
		Period:       cfg.MFA.TOTPPeriodSeconds,
		Window:       cfg.MFA.TOTPWindow,
		SecretLength: cfg.MFA.TOTPSecretLength,
	})

	emailSender := notification.NewLogEmailSender(log)
	pushSender := notification.NewLogPushSender(log)

	sendRule := rate.Rule{
		Enabled: cfg.RateLimit.Send.Enabled,
		Limit:   cfg.RateLimit.Send.Limit,
		Window:  cfg.RateLimit.Send.Window,
	}

	app := &App{
		cfg:      cfg,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}

	app.Setup = service.NewMFASetupService(
		methodRepo, recoveryRepo, webauthnRepo, pushDeviceRepo, pushChallengeRepo,
		totpSvc, hasher, emailSender, pushSender, limiter, publisher, log,
		service.SetupConfig{
			IssuerName:        cfg.MFA.Issuer,
			RecoveryCodeCount: cfg.MFA.RecoveryCodeCount,
			SetupCodeLength:   cfg.MFA.SetupCodeLength,
			SetupCodeTTL:      cfg.MFA.SetupCodeTTL,
			PushSetupTTL:      cfg.MFA.PushSetupTTL,
			SendRule:          sendRule,
		})
	app.Challenge = service.NewMFAChallengeService(
		challengeRepo, methodRepo, recoveryRepo, webauthnRepo, pushChallengeRepo,
		totpSvc, hasher, emailSender, limiter, publisher, log,
		service.ChallengeConfig{
			IssuerName: cfg.MFA.Issuer,
			Policy: entity.ChallengePolicy{
				MaxAttempts: cfg.MFA.ChallengeMaxAttempts,
				TTL:         cfg.MFA.ChallengeTTL,
			},
			EmailCodeLength: cfg.MFA.EmailCodeLength,
			CreateRule: rate.Rule{
				Enabled: cfg.RateLimit.ChallengeCreate.Enabled,
				Limit:   cfg.RateLimit.ChallengeCreate.Limit,
				Window:  cfg.RateLimit.ChallengeCreate.Window,
			},
			SendRule: sendRule,
		})
	app.Push = service.NewMFAPushService(
		pushChallengeRepo, pushDeviceRepo, pushSender, limiter, publisher, log,
		service.PushConfig{
			ChallengeTTL: cfg.MFA.PushChallengeTTL,
			SendRule:     sendRule,
		})
	app.Cleanup = service.NewMFACleanupService(
		challengeRepo, pushChallengeRepo, methodRepo, log,
		service.CleanupConfig{
			Interval:                  cfg.Cleanup.Interval,
			ChallengeRetention:        cfg.Cleanup.ChallengeRetention,
			PushChallengeRetention:    cfg.Cleanup.PushChallengeRetention,
			UnverifiedMethodRetention: cfg.Cleanup.UnverifiedMethodRetention,
		})

	return app, nil
}

// Run starts the cleanup worker and the metrics endpoint and blocks until
// the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.Cleanup.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: a.cfg.App.MetricsAddr, Handler: mux}
	go func() {
		a.logger.Info("metrics server listening", zap.String("addr", a.cfg.App.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	a.logger.Info("mfa service started", zap.String("environment", a.cfg.App.Environment))
	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("metrics server shutdown failed", zap.Error(err))
	}
	return nil
}

// Close releases the connection pools and the event producer.
func (a *App) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("failed to close redis client", zap.Error(err))
	}
	a.pool.Close()
}
