// Package main is the entry point for the call-center screen server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/callcenter/internal/backend"
	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/definition"
	"github.com/pitabwire/callcenter/internal/lookup"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/internal/screen"
	"github.com/pitabwire/callcenter/internal/transport"
	"github.com/pitabwire/callcenter/internal/validation"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before configuration")
	flag.Parse()

	// Step 2: Load configuration.
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "dotenv error: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "callcenter", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.InitMetrics(registry)
	}

	// Step 4: Load definitions, validate, build registry.
	reloader := &definition.Reloader{
		Loader:      definition.NewLoader(),
		Validator:   definition.NewValidator(screen.Gates()...),
		Registry:    definition.NewRegistry(nil),
		Directories: cfg.Definitions.Directories,
		Logger:      logger,
		Metrics:     metrics,
	}
	if err := reloader.Reload(); err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	defs := reloader.Registry

	// Step 5: Backend client and lookup cache.
	client, err := backend.New(cfg.Backend,
		backend.WithMetrics(metrics),
		backend.WithLogger(logger.Named("backend")),
	)
	if err != nil {
		logger.Error("backend client initialization failed", zap.Error(err))
		return 1
	}

	cache, closeCache, err := lookup.NewCache(cfg.Lookup.Cache)
	if err != nil {
		logger.Error("lookup cache initialization failed", zap.Error(err))
		return 1
	}
	defer closeCache()
	lookups := lookup.NewService(client, cache, cfg.Lookup, metrics, logger.Named("lookup"))

	// Step 6: Screen sessions.
	screens := screen.NewManager(defs, screen.Deps{
		Backend:   client,
		Lookups:   lookups,
		Validator: validation.New(),
		Logger:    logger.Named("screen"),
		Metrics:   metrics,
		Lookup:    cfg.Lookup,
	}, cfg.Screens)

	// Step 7: Build HTTP router.
	readiness := observability.ReadinessChecks{
		Definitions: defs.Len,
		Sessions:    screens.Len,
		Required: map[string]observability.HealthChecker{
			"backend": observability.HealthCheckFunc(client.Ping),
		},
		Optional: map[string]observability.HealthChecker{},
	}
	if pinger, ok := cache.(interface{ Ping(context.Context) error }); ok {
		readiness.Optional["lookup_cache"] = observability.HealthCheckFunc(pinger.Ping)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Gatherer:  registry,
		Readiness: readiness,
		Screens:   screens,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 8: Start the server and background tasks.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", defs.Len()),
		zap.String("checksum", defs.Checksum()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return screens.Run(gctx) })
	g.Go(func() error {
		watchReload(gctx, reloader, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Stop accepting new connections and drain in-flight requests.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		// Flush telemetry.
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// watchReload reloads screen definitions on SIGHUP. A reload that fails
// validation keeps the current definitions.
func watchReload(ctx context.Context, r *definition.Reloader, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := r.Reload(); err != nil {
				logger.Error("definition reload failed", zap.Error(err))
			}
		}
	}
}
