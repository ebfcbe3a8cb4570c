// Package fetcher retrieves the per-instrument raw inputs of the pipeline:
// candle series at two resolutions and best-effort open interest.
package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptoScreener/internal/domain"
	"cryptoScreener/internal/ports"
	"cryptoScreener/internal/retry"
)

// Defaults for series fetching.
const (
	DefaultCoarseInterval = "1d"
	DefaultFineInterval   = "4h"
	DefaultKlineLimit     = 500
)

// SeriesConfig holds the dependencies and parameters of a SeriesFetcher.
type SeriesConfig struct {
	Source         ports.KlineSource
	Logger         ports.Logger
	CoarseInterval string
	FineInterval   string
	Limit          int          // Candles per series
	Retry          retry.Policy // Applied to rate-limit responses only
}

// SeriesFetcher fetches the coarse and fine candle series of a symbol.
type SeriesFetcher struct {
	source ports.KlineSource
	logger ports.Logger
	coarse string
	fine   string
	limit  int
	policy retry.Policy
}

// NewSeriesFetcher creates a SeriesFetcher.
func NewSeriesFetcher(cfg SeriesConfig) (*SeriesFetcher, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("kline source is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	if cfg.CoarseInterval == "" {
		cfg.CoarseInterval = DefaultCoarseInterval
	}
	if cfg.FineInterval == "" {
		cfg.FineInterval = DefaultFineInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultKlineLimit
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	return &SeriesFetcher{
		source: cfg.Source,
		logger: cfg.Logger,
		coarse: cfg.CoarseInterval,
		fine:   cfg.FineInterval,
		limit:  cfg.Limit,
		policy: cfg.Retry,
	}, nil
}

func (f *SeriesFetcher) fetch(ctx context.Context, symbol, interval string) ([]*domain.Kline, error) {
	p := f.policy
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		f.logger.Debug(ctx, "Retrying kline fetch after rate limit", map[string]interface{}{
			"symbol":   symbol,
			"interval": interval,
			"attempt":  attempt,
			"wait":     wait.String(),
		})
	}
	return retry.DoValue(ctx, p, retry.RateLimitOnly, func(ctx context.Context) ([]*domain.Kline, error) {
		return f.source.GetKlines(ctx, symbol, interval, f.limit)
	})
}

// Fetch retrieves both resolutions concurrently. A coarse failure fails the
// symbol; a fine failure is logged and leaves Fine empty.
func (f *SeriesFetcher) Fetch(ctx context.Context, symbol string) (domain.PriceSeries, error) {
	var (
		wg                 sync.WaitGroup
		coarse, fine       []*domain.Kline
		coarseErr, fineErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		coarse, coarseErr = f.fetch(ctx, symbol, f.coarse)
	}()
	go func() {
		defer wg.Done()
		fine, fineErr = f.fetch(ctx, symbol, f.fine)
	}()
	wg.Wait()

	if coarseErr != nil {
		return domain.PriceSeries{}, fmt.Errorf("%s %s series: %w", symbol, f.coarse, coarseErr)
	}
	if fineErr != nil {
		f.logger.Warn(ctx, "Fine series unavailable, continuing without it", map[string]interface{}{
			"symbol":   symbol,
			"interval": f.fine,
			"error":    fineErr.Error(),
		})
		fine = nil
	}
	return domain.PriceSeries{Symbol: symbol, Coarse: coarse, Fine: fine}, nil
}
