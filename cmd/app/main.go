// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"school-payments/internal/config"
	"school-payments/internal/domain/ports/adapter"
	"school-payments/internal/domain/ports/repository"
	payAdapters "school-payments/internal/infra/adapters/payment"
	tele "school-payments/internal/infra/adapters/telegram"
	"school-payments/internal/infra/api"
	pg "school-payments/internal/infra/db/postgres"
	"school-payments/internal/infra/logging"
	"school-payments/internal/infra/metrics"
	red "school-payments/internal/infra/redis"
	"school-payments/internal/infra/sched"
	"school-payments/internal/infra/security"
	"school-payments/internal/infra/worker"
	"school-payments/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// .env is optional; real deployments inject the environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis (optional) ----
	var (
		redisClient *red.Client
		locker      red.Locker = red.LocalLocker{}
		limiter     api.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
		limiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis not configured: no rate limiting, no price cache, process-local locks")
	}

	// ---- Secure config ----
	var wrapper security.KeyWrapper
	if cfg.Security.KMSKeyID != "" {
		kw, err := security.NewKMSKeyWrapperFromEnv(ctx, cfg.Security.KMSRegion, cfg.Security.KMSKeyID)
		if err != nil {
			logger.Fatal().Err(err).Msg("kms")
		}
		wrapper = kw
	}
	masterKey, err := security.NewMasterKeyLoader(cfg.Security, wrapper, logger).Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("master key")
	}
	enc, err := security.NewEncryptionService(masterKey)
	for i := range masterKey {
		masterKey[i] = 0
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	activityRepo := pg.NewActivityRepo(pool)
	configRepo := pg.NewConfigRepo(pool)
	store := security.NewSecureConfig(configRepo, enc, cfg.Security.CacheTTL, nil, logger).WithAudit(activityRepo)
	defer store.Dispose()

	// ---- Gateways ----
	httpClient := payAdapters.NewHTTPClient(cfg.Payment.HTTP)
	gateways := []adapter.PaymentGateway{
		payAdapters.NewPaystackGateway(store, cfg.Payment.Paystack.BaseURL, httpClient, logger),
		payAdapters.NewExpressPayGateway(store, cfg.Payment.ExpressPay.BaseURL, httpClient, logger),
	}
	if cfg.Payment.EnableNoop {
		logger.Warn().Msg("noop gateway enabled: payments complete without charging")
		gateways = append(gateways, payAdapters.NewNoopPaymentGateway())
	}
	store.RequireGateways(gateways...)
	gatewaySet := adapter.NewGatewaySet(gateways...)
	if err := store.ValidateConfig(ctx); err != nil {
		// Not fatal: admins fix keys at runtime and payments answer 503 until then.
		logger.Warn().Err(err).Msg("payment configuration incomplete")
	}

	// ---- Repositories ----
	var pricingRepo repository.ServicePricingRepository = pg.NewServicePricingRepo(pool)
	if redisClient != nil {
		pricingRepo = pg.NewPricingRepoCacheDecorator(pricingRepo, redisClient, cfg.Redis.TTL, logger)
	}
	txnRepo := pg.NewPaymentTransactionRepo(pool)
	grantRepo := pg.NewPaidServiceRepo(pool)
	accountRepo := pg.NewAccountRepo(pool)
	enrollmentRepo := pg.NewEnrollmentRepo(pool)
	webhookRepo := pg.NewWebhookLogRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Alerts ----
	var alerts adapter.AlertNotifier = tele.NewLogNotifier(logger)
	if cfg.Alerts.TelegramToken != "" {
		tn, err := tele.NewAlertNotifier(cfg.Alerts, logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram alerts disabled")
		} else {
			alerts = tn
		}
	}

	// ---- Use cases ----
	settings := usecase.NewSettings(store)
	audit := usecase.NewAuditor(activityRepo, logger)
	paymentUC := usecase.NewPaymentUseCase(txnRepo, grantRepo, pricingRepo, accountRepo, enrollmentRepo, gatewaySet, settings, tm, audit, alerts, logger)
	services := api.Services{
		Payments:      paymentUC,
		Webhooks:      usecase.NewWebhookUseCase(gatewaySet, paymentUC, webhookRepo, audit, alerts, logger),
		PasswordReset: usecase.NewPasswordResetUseCase(paymentUC, accountRepo, tm, settings, audit, logger),
		Review:        usecase.NewReviewUseCase(paymentUC, audit, logger),
		Retake:        usecase.NewRetakeUseCase(enrollmentRepo, grantRepo, paymentUC, settings, tm, audit, logger),
		Stats:         usecase.NewStatsUseCase(txnRepo, logger),
		Pricing:       usecase.NewPricingUseCase(pricingRepo, settings, audit, logger),
		Config:        usecase.NewConfigUseCase(store, configRepo, audit, logger),
	}

	// ---- Background jobs ----
	workers := worker.NewPool(cfg.Reconcile.Workers, logger)
	workers.Start(ctx)
	defer workers.Stop()

	cleanup := sched.NewCleanupWorker(cfg.Sweeper.Interval, paymentUC, locker, logger)
	go func() {
		if err := cleanup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("cleanup worker stopped")
		}
	}()
	reconciler := sched.NewPaymentReconciler(paymentUC, workers, locker, alerts, sched.ReconcilerOptions{
		Interval:   cfg.Reconcile.Interval,
		OlderThan:  cfg.Reconcile.OlderThan,
		BatchSize:  cfg.Reconcile.BatchSize,
		AlertAfter: cfg.Reconcile.AlertAfter,
	}, logger)
	go func() {
		if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("payment reconciler stopped")
		}
	}()

	// ---- HTTP ----
	auth := api.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	srv := api.NewServer(cfg.HTTP, services, auth, limiter, api.RateLimit{
		Requests: cfg.Payment.RateLimit.Requests,
		Window:   cfg.Payment.RateLimit.Window,
	}, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
