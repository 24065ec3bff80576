package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jamroom/internal/core/engine"
	"jamroom/internal/core/services"
	httphandlers "jamroom/internal/handlers/http"
	"jamroom/internal/infrastructure/backend"
	"jamroom/internal/infrastructure/distributed"
	"jamroom/internal/infrastructure/gateway"
	"jamroom/internal/infrastructure/middleware"
	"jamroom/internal/infrastructure/monitoring"
	repositories "jamroom/internal/infrastructure/repositories"
	"jamroom/pkg/cache"
	"jamroom/pkg/circuitbreaker"
	"jamroom/pkg/config"
	"jamroom/pkg/logger"
	"jamroom/pkg/tracing"
	"jamroom/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/jamroom/config.yaml",
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
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "jamroom",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	summaryRepo := repoFactory.CreateSummaryRepository()

	// Directory page cache, invalidated by TTL and bus events
	pageCache := cache.New(cfg.Engine.DirectoryCacheTTL)
	defer pageCache.Close()

	// Cross-instance event bus, only when Redis is available
	var eventBus *distributed.EventBus
	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		instanceID := utils.GenerateID("instance")
		eventBus = distributed.NewEventBus(redisClient, instanceID, log)
		summaryRepo = distributed.NewPublishingSummaryRepository(summaryRepo, eventBus, log)

		go func() {
			err := eventBus.Subscribe(busCtx, func(event *distributed.Event) error {
				// Any directory change on a sibling invalidates cached pages.
				pageCache.Flush()
				return nil
			})
			if err != nil && busCtx.Err() == nil {
				log.Warnw("event bus subscription ended", "error", err)
			}
		}()
	}

	// Initialize services
	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	backendClient := backend.NewHTTPClient(backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		Token:          cfg.Backend.CallbackToken,
		RequestTimeout: cfg.Backend.RequestTimeout,
		Breaker:        circuitbreaker.DefaultConfig(),
	}, zapLogger)

	// Initialize monitoring
	collector := monitoring.NewPrometheusCollector()

	// Gateway and engine reference each other, so bind in two steps
	gw := gateway.NewServer(authService, zapLogger)
	gw.SetPingInterval(cfg.Gateway.PingInterval)
	gw.SetPongTimeout(cfg.Gateway.PongTimeout)
	if cfg.RateLimiting.Enabled {
		gw.SetMessageRate(cfg.RateLimiting.Gateway.MessagesPerSecond, cfg.RateLimiting.Gateway.Burst)
	}

	roomEngine := engine.New(engine.Config{
		CommandBuffer:   cfg.Engine.CommandBuffer,
		AckInitialDelay: cfg.Backend.AckInitialDelay,
		AckMaxDelay:     cfg.Backend.AckMaxDelay,
		AckMaxAttempts:  cfg.Backend.AckMaxAttempts,
		RecheckInterval: cfg.Engine.ConstraintRecheck,
	}, backendClient, gw, summaryRepo, collector, log)
	gw.SetRoomService(roomEngine)

	// Health checks
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("repositories", func(ctx context.Context) (bool, error) {
		if err := repoFactory.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, 30*time.Second, 2*time.Second)

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService)
	directoryHandler := httphandlers.NewDirectoryHandler(summaryRepo, pageCache, cfg.Engine.DirectoryPageSize)
	callbackHandler := httphandlers.NewCallbackHandler(roomEngine, zapLogger)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	authHandler.SetupRoutes(router)
	directoryHandler.SetupRoutes(router, middleware.OptionalAuthMiddleware(authService))
	callbackHandler.SetupRoutes(router, middleware.CallbackTokenMiddleware(cfg.Backend.CallbackToken))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status.Status,
			"timestamp": status.Timestamp,
			"uptime":    time.Since(startTime).String(),
			"rooms":     roomEngine.RoomCount(),
			"checks":    status.Checks,
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// API server
	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Gateway server: websocket upgrades do not go through Gin
	gatewayMux := http.NewServeMux()
	gatewayMux.HandleFunc("/ws", gw.HandleWebSocket)
	gatewayMux.HandleFunc("/health", gw.HealthCheck)
	gatewaySrv := &http.Server{
		Addr:        cfg.Gateway.Address,
		Handler:     gatewayMux,
		ReadTimeout: 0, // long-lived connections manage their own deadlines
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting JamRoom API server on %s", cfg.Server.Address)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("Starting JamRoom gateway on %s", cfg.Gateway.Address)
		if err := gatewaySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	healthCtx, healthCancel := context.WithCancel(context.Background())
	defer healthCancel()
	healthChecker.StartBackgroundChecks(healthCtx)

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down JamRoom server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	gw.Shutdown()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during API server shutdown", "error", err)
		if closeErr := apiSrv.Close(); closeErr != nil {
			log.Errorw("Error force closing API server", "error", closeErr)
		}
	}
	if err := gatewaySrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during gateway shutdown", "error", err)
		if closeErr := gatewaySrv.Close(); closeErr != nil {
			log.Errorw("Error force closing gateway", "error", closeErr)
		}
	}

	busCancel()
	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Errorw("Error closing event bus", "error", err)
		}
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("JamRoom server stopped")
}
