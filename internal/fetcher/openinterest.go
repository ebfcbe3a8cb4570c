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

// DefaultOIHistoryLimit covers a little over 7 days at 1h granularity.
const DefaultOIHistoryLimit = 200

// DefaultOIPeriods are the history granularities tried in order.
var DefaultOIPeriods = []string{"1h", "2h", "4h"}

// OpenInterestConfig holds the dependencies and parameters of an OpenInterestFetcher.
type OpenInterestConfig struct {
	Source       ports.OpenInterestSource
	Logger       ports.Logger
	Periods      []string
	HistoryLimit int
	Retry        retry.Policy // Applied to rate-limit and transient failures
}

// OpenInterestFetcher fetches open interest on a best-effort basis.
type OpenInterestFetcher struct {
	source  ports.OpenInterestSource
	logger  ports.Logger
	periods []string
	limit   int
	policy  retry.Policy
}

// NewOpenInterestFetcher creates an OpenInterestFetcher.
func NewOpenInterestFetcher(cfg OpenInterestConfig) (*OpenInterestFetcher, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("open interest source is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	if len(cfg.Periods) == 0 {
		cfg.Periods = DefaultOIPeriods
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultOIHistoryLimit
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 2
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = 250 * time.Millisecond
	}
	return &OpenInterestFetcher{
		source:  cfg.Source,
		logger:  cfg.Logger,
		periods: cfg.Periods,
		limit:   cfg.HistoryLimit,
		policy:  cfg.Retry,
	}, nil
}

// Fetch retrieves current and historical open interest concurrently. It never
// fails: whatever could not be obtained is simply absent from the result.
func (f *OpenInterestFetcher) Fetch(ctx context.Context, symbol string) domain.OpenInterest {
	var (
		wg      sync.WaitGroup
		current *domain.OpenInterestPoint
		history []domain.OpenInterestPoint
		period  string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		p, err := retry.DoValue(ctx, f.policy, retry.Transient, func(ctx context.Context) (*domain.OpenInterestPoint, error) {
			return f.source.GetOpenInterest(ctx, symbol)
		})
		if err != nil {
			f.logger.Debug(ctx, "Current open interest unavailable", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			return
		}
		current = p
	}()
	go func() {
		defer wg.Done()
		history, period = f.fetchHistory(ctx, symbol)
	}()
	wg.Wait()

	return domain.OpenInterest{Current: current, History: history, Period: period}
}

// fetchHistory tries each candidate period in order and keeps the first
// non-empty, well-formed answer.
func (f *OpenInterestFetcher) fetchHistory(ctx context.Context, symbol string) ([]domain.OpenInterestPoint, string) {
	for _, period := range f.periods {
		if ctx.Err() != nil {
			return nil, ""
		}
		points, err := retry.DoValue(ctx, f.policy, retry.Transient, func(ctx context.Context) ([]domain.OpenInterestPoint, error) {
			return f.source.GetOpenInterestHistory(ctx, symbol, period, f.limit)
		})
		if err != nil {
			f.logger.Debug(ctx, "Open interest history unavailable for period", map[string]interface{}{
				"symbol": symbol,
				"period": period,
				"error":  err.Error(),
			})
			continue
		}
		if len(points) > 0 {
			return points, period
		}
	}
	return nil, ""
}
