package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"school-payments/internal/config"
	"school-payments/internal/infra/metrics"
	"school-payments/internal/usecase"
)

// RateLimiter counts attempts per key within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Services are the use cases the HTTP layer exposes.
type Services struct {
	Payments      usecase.PaymentUseCase
	Webhooks      usecase.WebhookUseCase
	PasswordReset usecase.PasswordResetUseCase
	Review        usecase.ReviewUseCase
	Retake        usecase.RetakeUseCase
	Stats         usecase.StatsUseCase
	Pricing       usecase.PricingUseCase
	Config        usecase.ConfigUseCase
}

type RateLimit struct {
	Requests int
	Window   time.Duration
}

type Server struct {
	cfg       config.HTTPConfig
	svc       Services
	auth      *Authenticator
	limiter   RateLimiter
	limit     RateLimit
	validator *validator.Validate
	log       *zerolog.Logger
	server    *http.Server
}

// NewServer: a nil limiter disables rate limiting.
func NewServer(cfg config.HTTPConfig, svc Services, auth *Authenticator, limiter RateLimiter, limit RateLimit, logger *zerolog.Logger) *Server {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 45 * time.Second
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{cfg: cfg, svc: svc, auth: auth, limiter: limiter, limit: limit, validator: v, log: &l}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.cfg.RequestTimeout))

		// Gateway-facing: authenticated by signature or by re-verification.
		r.Post("/webhooks/{gateway}", s.handleWebhook)
		r.Get("/payments/callback", s.handleCallback)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireUser)

			r.Post("/payments", s.handlePaymentAction)
			r.Get("/payments/history", s.handleHistory)

			r.Get("/services/prices", s.handlePrices)
			r.Get("/services/password-reset", s.handlePasswordResetStatus)
			r.Post("/services/password-reset", s.handlePasswordReset)
			r.Get("/services/review/{assessmentID}", s.handleReviewStatus)
			r.Post("/services/review/{assessmentID}", s.handleReviewGrant)
			r.Post("/services/review/{assessmentID}/open", s.handleReviewOpen)
			r.Get("/services/retake/{assessmentID}", s.handleRetakeStatus)
			r.Post("/services/retake/{assessmentID}", s.handleRetake)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/payments/stats", s.handleStats)
				r.Post("/payments/sweep", s.handleSweep)
				r.Post("/payments/{reference}/reconcile", s.handleReconcile)
				r.Get("/pricing", s.handlePricingList)
				r.Put("/pricing/{serviceType}", s.handlePricingSet)
				r.Get("/config", s.handleConfigKeys)
				r.Put("/config/{key}", s.handleConfigSet)
				r.Get("/config/validate", s.handleConfigValidate)
				r.Get("/webhooks", s.handleWebhookLog)
			})
		})
	})
	return r
}

// Start blocks serving until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
