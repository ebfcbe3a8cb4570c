// Package bootstrap assembles the screener from its configuration. Both the
// server and the one-shot snapshot command start from here.
package bootstrap

import (
	"fmt"

	"cryptoScreener/config"
	"cryptoScreener/internal/adapters/binanceclient"
	"cryptoScreener/internal/adapters/logger"
	"cryptoScreener/internal/app"
	"cryptoScreener/internal/cache"
	"cryptoScreener/internal/fetcher"
	"cryptoScreener/internal/indicators"
	"cryptoScreener/internal/ports"
	"cryptoScreener/internal/retry"
	"cryptoScreener/internal/universe"
)

// Components are the wired pieces of a running screener.
type Components struct {
	Exchange     *binanceclient.Client
	Orchestrator *app.Orchestrator
	Ticks        *app.TickHub // Nil unless cfg.StreamTicks
}

// NewLogger builds the application logger from cfg.
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		FilePath: cfg.LogFile,
	})
}

// component tags entries of the application logger with name. Other
// ports.Logger implementations are returned unchanged.
func component(log ports.Logger, name string) ports.Logger {
	if l, ok := log.(*logger.Logger); ok && l != nil {
		return l.WithComponent(name)
	}
	return log
}

// Build wires the exchange adapter, fetchers, engine and orchestrator.
func Build(cfg *config.Config, log ports.Logger) (*Components, error) {
	exchange, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		BaseURL:              cfg.BaseURL,
		UseTestnet:           cfg.IsTestnet,
		Logger:               component(log, "binance"),
		RequestsPerSecond:    cfg.RequestsPerSecond,
		Burst:                cfg.RequestBurst,
		Timeout:              cfg.HTTPTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("binance client: %w", err)
	}

	resolver, err := universe.NewResolver(universe.Config{
		Source:       exchange,
		Logger:       component(log, "universe"),
		Size:         cfg.UniverseSize,
		QuoteAsset:   cfg.QuoteAsset,
		ContractType: cfg.ContractType,
	})
	if err != nil {
		return nil, fmt.Errorf("universe resolver: %w", err)
	}

	series, err := fetcher.NewSeriesFetcher(fetcher.SeriesConfig{
		Source:         exchange,
		Logger:         component(log, "series"),
		CoarseInterval: cfg.CoarseInterval,
		FineInterval:   cfg.FineInterval,
		Limit:          cfg.KlineLimit,
		Retry:          retry.Policy{MaxAttempts: cfg.PriceRetryAttempts, BaseDelay: cfg.PriceRetryBase},
	})
	if err != nil {
		return nil, fmt.Errorf("series fetcher: %w", err)
	}

	oi, err := fetcher.NewOpenInterestFetcher(fetcher.OpenInterestConfig{
		Source:       exchange,
		Logger:       component(log, "openinterest"),
		Periods:      cfg.OIPeriods,
		HistoryLimit: cfg.OIHistoryLimit,
		Retry:        retry.Policy{MaxAttempts: cfg.OIRetryAttempts, BaseDelay: cfg.OIRetryBase},
	})
	if err != nil {
		return nil, fmt.Errorf("open interest fetcher: %w", err)
	}

	orchestrator, err := app.NewOrchestrator(app.OrchestratorConfig{
		Universe:     resolver,
		Series:       series,
		OpenInterest: oi,
		Engine: indicators.NewEngine(indicators.Config{
			MinQuoteVolume: cfg.MinQuoteVolume,
			EMAPeriod:      cfg.EMAPeriod,
		}),
		Cache:      cache.New(cfg.CacheTTL),
		Logger:     component(log, "pipeline"),
		Batch:      fetcher.BatchConfig{Size: cfg.BatchSize, Pause: cfg.BatchPause},
		RunTimeout: cfg.RunTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	c := &Components{Exchange: exchange, Orchestrator: orchestrator}
	if cfg.StreamTicks {
		c.Ticks, err = app.NewTickHub(app.TickHubConfig{Source: exchange, Logger: component(log, "ticks")})
		if err != nil {
			return nil, fmt.Errorf("tick hub: %w", err)
		}
	}
	return c, nil
}
