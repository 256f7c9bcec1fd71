package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/config"
	"github.com/Ramsey-B/aster/internal/handlers"
	"github.com/Ramsey-B/aster/pkg/allocator"
	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/health"
	"github.com/Ramsey-B/aster/pkg/loader"
	"github.com/Ramsey-B/aster/pkg/middleware"
	"github.com/Ramsey-B/aster/pkg/optimize"
	"github.com/Ramsey-B/aster/pkg/registry"
	"github.com/Ramsey-B/aster/pkg/scheduler"
	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	tracing.SetTracer(otel.Tracer(cfg.AppName))

	scheduleStart, err := cfg.ScheduleStartTime()
	if err != nil {
		logger.WithError(err).Error("Invalid SCHEDULE_START")
		os.Exit(1)
	}

	// Load the planning export into the in-memory dataset.
	reg := registry.New()
	file, err := os.Open(cfg.DataFilePath)
	if err != nil {
		logger.WithError(err).Errorf("Failed to open planning export %s", cfg.DataFilePath)
		os.Exit(1)
	}
	summary, err := loader.New(logger, loader.Options{
		LatePartDelayDays: cfg.LatePartDelayDays,
	}).Load(file, reg)
	file.Close()
	if err != nil {
		logger.WithError(err).Error("Failed to load planning export")
		os.Exit(1)
	}
	logger.WithFields(map[string]any{
		"tasks":    summary.Tasks,
		"products": summary.Products,
		"warnings": summary.Warnings,
	}).Info("Planning export loaded")

	// Wire the engine.
	builder := graph.NewBuilder(reg, logger)
	alloc := allocator.New(reg, logger, cfg.AllocatorMaxIterations)
	engine := scheduler.NewEngine(reg, builder, alloc, scheduler.Config{
		Start: scheduleStart,
		Retry: scheduler.RetryPolicy{
			MaxAttempts:     cfg.RetryMaxAttempts,
			PriorityPenalty: cfg.RetryPriorityPenalty,
		},
		CriticalSlackHours: cfg.CriticalSlackHours,
	}, logger)
	check := validator.New(reg, builder, logger)
	optimizer := optimize.New(engine, reg, builder, optimize.Config{
		MaxTrials:          cfg.OptimizerMaxTrials,
		Neighbors:          cfg.OptimizerNeighbors,
		InitialTemperature: cfg.OptimizerInitialTemperature,
		Cooling:            cfg.OptimizerCooling,
		ReheatAfter:        cfg.OptimizerReheatAfter,
	}, logger)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.CORS(cfg.AllowOrigins, cfg.AllowMethods))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker := health.NewChecker(reg, cfg.AppName)
	checker.RegisterRoutes(e)

	api := e.Group("/api")
	handlers.NewScheduleHandler(engine, check, reg, logger).Register(api.Group("/schedule"))
	handlers.NewOptimizeHandler(optimizer, logger).Register(api.Group("/optimize"))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	checker.SetReady(true)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server stopped")
			os.Exit(1)
		}
	}()
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
