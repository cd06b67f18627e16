package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carelink/internal/core/services"
	httphandlers "carelink/internal/handlers/http"
	"carelink/internal/infrastructure/middleware"
	"carelink/internal/infrastructure/monitoring"
	"carelink/internal/infrastructure/registry"
	"carelink/internal/infrastructure/repositories"
	signalhub "carelink/internal/infrastructure/signal"
	"carelink/pkg/config"
	"carelink/pkg/logger"
	"carelink/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/carelink/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	if cfg.Tracing.Enabled {
		tracingCfg := tracing.DefaultConfig()
		tracingCfg.Enabled = true
		tracingCfg.JaegerURL = cfg.Tracing.JaegerURL
		tracingCfg.Environment = cfg.Tracing.Environment
		tracingCfg.SampleRate = cfg.Tracing.SampleRate

		tracerProvider, err := tracing.Init(tracingCfg)
		if err != nil {
			log.Warnw("failed to initialize tracing", "error", err)
		} else {
			defer tracerProvider.Shutdown(context.Background())
			log.Info("tracing enabled")
		}
	}

	// Initialize repositories
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	userRepo := repoFactory.CreateUserRepository()
	relationshipRepo := repoFactory.CreateRelationshipRepository()

	// Initialize registries
	presence := registry.NewPresenceRegistry(relationshipRepo, log)
	calls := registry.NewCallSessionStore()

	// Initialize services
	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	tokenCache := repoFactory.CreateTokenCache()
	if !cfg.RTC.CacheTokens {
		tokenCache = nil
	}
	rtcTokenService := services.NewRTCTokenService(
		cfg.RTC.AppID,
		cfg.RTC.AppCertificate,
		cfg.RTC.TokenTTL,
		tokenCache,
		log,
	)

	// Initialize monitoring
	var prometheusCollector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		prometheusCollector = monitoring.NewPrometheusCollector()
	}

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("repositories", func(ctx context.Context) (bool, error) {
		if err := repoFactory.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, 2*time.Second)

	// Initialize the signaling hub
	hub := signalhub.NewHub(cfg, presence, calls, relationshipRepo, userRepo, authService, prometheusCollector, log)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	hub.StartJanitor(janitorCtx)

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService, userRepo, cfg.Auth.AccessTokenTTL)
	tokenHandler := httphandlers.NewTokenHandler(rtcTokenService, relationshipRepo, prometheusCollector)
	contactsHandler := httphandlers.NewContactsHandler(relationshipRepo, userRepo, presence, log)
	assignmentsHandler := httphandlers.NewAssignmentsHandler(relationshipRepo, userRepo, log)
	healthHandler := httphandlers.NewHealthHandler(healthChecker, hub.ConnectionCount, calls.Len)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	// Public routes
	authHandler.SetupRoutes(router)
	healthHandler.SetupRoutes(router)

	// Authenticated API
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	tokenHandler.SetupRoutes(api)
	contactsHandler.SetupRoutes(api)
	assignmentsHandler.SetupRoutes(api)

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// REST API server
	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// WebSocket signaling server on its own listener
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", hub.HandleWebSocket)
	signalSrv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: wsMux,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting CareLink API server on %s", cfg.Server.Address)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("Starting CareLink signaling server on %s", cfg.Signal.Address)
		if err := signalSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down CareLink servers...")
	stopJanitor()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during API server shutdown", "error", err)
		if closeErr := apiSrv.Close(); closeErr != nil {
			log.Errorw("Error force closing API server", "error", closeErr)
		}
	}

	wsShutdownCtx, wsShutdownCancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer wsShutdownCancel()

	if err := signalSrv.Shutdown(wsShutdownCtx); err != nil {
		log.Errorw("Error during signaling server shutdown", "error", err)
		if closeErr := signalSrv.Close(); closeErr != nil {
			log.Errorw("Error force closing signaling server", "error", closeErr)
		}
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("CareLink signaling service stopped")
}
