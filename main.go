package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"cryptoScreener/config"
	"cryptoScreener/internal/adapters/httpapi"
	"cryptoScreener/internal/bootstrap"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := bootstrap.NewLogger(cfg)
	defer appLogger.Close()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Wire exchange client, fetchers, engine and orchestrator
	components, err := bootstrap.Build(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize screener")
		log.Fatalf("FATAL: Failed to initialize screener: %v", err)
	}
	if err := components.Exchange.Ping(ctx); err != nil {
		// Not fatal: the first snapshot request reports upstream failures to the caller.
		appLogger.Warn(ctx, "Exchange ping failed", map[string]interface{}{"error": err.Error()})
	}
	appLogger.Info(ctx, "Screener initialized", map[string]interface{}{
		"universeSize": cfg.UniverseSize,
		"cacheTTL":     cfg.CacheTTL.String(),
	})

	// 4. Optional live ticks
	var ticks httpapi.TickFeed
	if components.Ticks != nil {
		if err := components.Ticks.Start(ctx); err != nil {
			appLogger.Error(ctx, err, "Ticker stream unavailable, serving snapshots only")
		} else {
			ticks = components.Ticks
			defer components.Ticks.Stop()
		}
	}

	// 5. Warm the cache in the background so the first request is served quickly
	go func() {
		if _, err := components.Orchestrator.Snapshot(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Warn(ctx, "Initial snapshot failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// 6. Serve
	server, err := httpapi.New(httpapi.Config{
		Addr:     cfg.HTTPAddr,
		Pipeline: components.Orchestrator,
		Ticks:    ticks,
		Logger:   appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize HTTP server")
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}
	if err := server.Run(ctx); err != nil {
		appLogger.Error(context.Background(), err, "HTTP server exited with error")
		log.Fatalf("FATAL: HTTP server exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
