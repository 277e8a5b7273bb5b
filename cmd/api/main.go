// Package main is the entrypoint for the Pulseboard API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/cache"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/handler"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/middleware"
	"github.com/pulseboard/pulseboard/internal/repository"
	"github.com/pulseboard/pulseboard/internal/server"
	"github.com/pulseboard/pulseboard/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Initialize services
	recorder := metrics.NewInMemory()
	tokens := auth.NewTokenSource(cfg.JWTSecret, cfg.JWTTTL)
	authService := service.NewAuthService(repo, tokens, service.AuthConfig{
		PasswordMinLength: cfg.PasswordMinLength,
		PasswordHashCost:  cfg.PasswordHashCost,
	}, logger, recorder)
	analyticsService := service.NewAnalyticsService(
		repository.NewMetricRepository(repo),
		repository.NewUsageRepository(repo),
		cacheClient,
		logger,
		recorder,
	)

	// Initialize handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	authHandler := handler.NewAuthHandler(authService, logger)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, logger)
	metricsHandler := handler.NewMetricsHandler(recorder)

	// Setup router
	r := setupRouter(h, healthHandler, authHandler, analyticsHandler, metricsHandler, authService, cacheClient, cfg, logger)

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	authHandler *handler.AuthHandler,
	analyticsHandler *handler.AnalyticsHandler,
	metricsHandler *handler.MetricsHandler,
	authService *service.AuthService,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      cfg.IsDevelopment(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	// Root info endpoint
	r.Get("/", h.Hello)

	authCfg := middleware.AuthConfig{
		Logger:   logger,
		Verifier: authService,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:       logger,
		Limiter:      cacheClient,
		LoginEnabled: cfg.RateLimitLoginEnabled,
		LoginRPS:     cfg.RateLimitLoginRPS,
		LoginBurst:   cfg.RateLimitLoginBurst,
	}

	r.Route("/auth", func(r chi.Router) {
		// Credential endpoints are rate limited per IP
		r.With(middleware.RateLimitLogin(rateLimitCfg)).Post("/register", authHandler.Register)
		r.With(middleware.RateLimitLogin(rateLimitCfg)).Post("/login", authHandler.Login)

		// Everything else requires a bearer token
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Get("/verify", authHandler.Verify)
			r.Get("/profile", authHandler.Profile)
			r.Put("/profile", authHandler.UpdateProfile)
			r.Delete("/users/{id}", authHandler.Deactivate)
		})
	})

	r.Route("/analytics", func(r chi.Router) {
		// Ingest and read paths are open: events arrive from services
		// that hold no user token.
		r.Post("/events", analyticsHandler.TrackEvent)
		r.Get("/events/recent", analyticsHandler.GetRecentEvents)
		r.Post("/metrics", analyticsHandler.CreateMetric)
		r.Post("/metrics/batch", analyticsHandler.CreateMetricBatch)
		r.Get("/metrics", analyticsHandler.GetMetrics)
		r.Get("/usage/{user_id}", analyticsHandler.GetUserStats)
		r.Get("/usage-records/{user_id}", analyticsHandler.ListUsageRecords)
		r.Post("/usage", analyticsHandler.UpsertUsage)
		r.Get("/stats", analyticsHandler.GetSystemStats)
		r.Get("/reports/daily", analyticsHandler.GetDailyReport)
		r.Get("/costs", analyticsHandler.GetCosts)
		r.Get("/dashboard", analyticsHandler.GetDashboard)

		// Purge is destructive and stays behind auth
		r.With(middleware.Auth(authCfg)).Delete("/users/{user_id}/metrics", analyticsHandler.PurgeUserMetrics)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
