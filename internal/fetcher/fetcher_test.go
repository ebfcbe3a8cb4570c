package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoScreener/internal/domain"
	"cryptoScreener/internal/ports"
	"cryptoScreener/internal/retry"
)

type mockLogger struct {
	mu       sync.Mutex
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockExchange answers kline and open-interest calls through per-test hooks.
type mockExchange struct {
	mu    sync.Mutex
	calls map[string]int

	klines  func(symbol, interval string, call int) ([]*domain.Kline, error)
	current func(symbol string, call int) (*domain.OpenInterestPoint, error)
	history func(symbol, period string, call int) ([]domain.OpenInterestPoint, error)
}

func (m *mockExchange) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[key]++
	return m.calls[key]
}

func (m *mockExchange) callsFor(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func (m *mockExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	return m.klines(symbol, interval, m.count("klines:"+symbol+":"+interval))
}

func (m *mockExchange) GetOpenInterest(ctx context.Context, symbol string) (*domain.OpenInterestPoint, error) {
	return m.current(symbol, m.count("oi:"+symbol))
}

func (m *mockExchange) GetOpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]domain.OpenInterestPoint, error) {
	return m.history(symbol, period, m.count("oih:"+symbol+":"+period))
}

func rateLimitErr() error {
	return fmt.Errorf("GetKlines failed: %w", &ports.RateLimitError{Err: errors.New("429")})
}

func someKlines(interval string) []*domain.Kline {
	return []*domain.Kline{{Interval: interval, Close: 1}, {Interval: interval, Close: 2}}
}

var fastRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

func TestSeriesFetcher_RetriesRateLimit(t *testing.T) {
	ex := &mockExchange{klines: func(symbol, interval string, call int) ([]*domain.Kline, error) {
		if interval == "1d" && call < 3 {
			return nil, rateLimitErr()
		}
		return someKlines(interval), nil
	}}
	f, err := NewSeriesFetcher(SeriesConfig{Source: ex, Logger: &mockLogger{}, Retry: fastRetry})
	require.NoError(t, err)

	series, err := f.Fetch(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", series.Symbol)
	assert.Len(t, series.Coarse, 2)
	assert.Len(t, series.Fine, 2)
	assert.Equal(t, 3, ex.callsFor("klines:BTCUSDT:1d"))
	assert.Equal(t, 1, ex.callsFor("klines:BTCUSDT:4h"))
}

func TestSeriesFetcher_CoarseFailureDropsSymbol(t *testing.T) {
	ex := &mockExchange{klines: func(symbol, interval string, call int) ([]*domain.Kline, error) {
		if interval == "1d" {
			return nil, fmt.Errorf("x: %w", ports.ErrUpstreamUnavailable)
		}
		return someKlines(interval), nil
	}}
	f, err := NewSeriesFetcher(SeriesConfig{Source: ex, Logger: &mockLogger{}, Retry: fastRetry})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrUpstreamUnavailable)
	assert.Equal(t, 1, ex.callsFor("klines:BTCUSDT:1d"), "non rate-limit errors are not retried")
}

func TestSeriesFetcher_RateLimitExhausted(t *testing.T) {
	ex := &mockExchange{klines: func(symbol, interval string, call int) ([]*domain.Kline, error) {
		return nil, rateLimitErr()
	}}
	f, err := NewSeriesFetcher(SeriesConfig{Source: ex, Logger: &mockLogger{}, Retry: fastRetry})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "BTCUSDT")
	assert.True(t, ports.IsRateLimited(err))
	assert.Equal(t, 3, ex.callsFor("klines:BTCUSDT:1d"))
}

func TestSeriesFetcher_FineFailureDegrades(t *testing.T) {
	ex := &mockExchange{klines: func(symbol, interval string, call int) ([]*domain.Kline, error) {
		if interval == "4h" {
			return nil, fmt.Errorf("x: %w", ports.ErrMalformedData)
		}
		return someKlines(interval), nil
	}}
	logger := &mockLogger{}
	f, err := NewSeriesFetcher(SeriesConfig{Source: ex, Logger: logger, Retry: fastRetry})
	require.NoError(t, err)

	series, err := f.Fetch(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Len(t, series.Coarse, 2)
	assert.Empty(t, series.Fine)
	assert.Len(t, logger.warnMsgs, 1)
}

func TestNewFetchers_Validation(t *testing.T) {
	_, err := NewSeriesFetcher(SeriesConfig{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	_, err = NewOpenInterestFetcher(OpenInterestConfig{Source: &mockExchange{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestOpenInterestFetcher(t *testing.T) {
	now := time.Now()
	point := &domain.OpenInterestPoint{Time: now, Value: 100}
	hist := []domain.OpenInterestPoint{{Time: now.Add(-time.Hour), Value: 90}}
	serverErr := fmt.Errorf("x: %w", ports.ErrUpstreamUnavailable)
	malformed := fmt.Errorf("x: %w", ports.ErrMalformedData)

	tests := []struct {
		name          string
		current       func(string, int) (*domain.OpenInterestPoint, error)
		history       func(string, string, int) ([]domain.OpenInterestPoint, error)
		wantCurrent   bool
		wantPeriod    string
		wantHistory   int
		wantOICalls   int
		wantHistCalls map[string]int
	}{
		{
			name:          "all succeed on first period",
			current:       func(string, int) (*domain.OpenInterestPoint, error) { return point, nil },
			history:       func(string, string, int) ([]domain.OpenInterestPoint, error) { return hist, nil },
			wantCurrent:   true,
			wantPeriod:    "1h",
			wantHistory:   1,
			wantOICalls:   1,
			wantHistCalls: map[string]int{"1h": 1, "2h": 0},
		},
		{
			name:    "history falls through empty and malformed periods",
			current: func(string, int) (*domain.OpenInterestPoint, error) { return point, nil },
			history: func(_ string, period string, _ int) ([]domain.OpenInterestPoint, error) {
				switch period {
				case "1h":
					return nil, nil
				case "2h":
					return nil, malformed
				}
				return hist, nil
			},
			wantCurrent:   true,
			wantPeriod:    "4h",
			wantHistory:   1,
			wantOICalls:   1,
			wantHistCalls: map[string]int{"1h": 1, "2h": 1, "4h": 1},
		},
		{
			name:          "server errors everywhere degrade to nothing",
			current:       func(string, int) (*domain.OpenInterestPoint, error) { return nil, serverErr },
			history:       func(string, string, int) ([]domain.OpenInterestPoint, error) { return nil, serverErr },
			wantOICalls:   2,
			wantHistCalls: map[string]int{"1h": 2, "2h": 2, "4h": 2},
		},
		{
			name: "transient failure recovers on second attempt",
			current: func(_ string, call int) (*domain.OpenInterestPoint, error) {
				if call == 1 {
					return nil, rateLimitErr()
				}
				return point, nil
			},
			history:       func(string, string, int) ([]domain.OpenInterestPoint, error) { return nil, malformed },
			wantCurrent:   true,
			wantOICalls:   2,
			wantHistCalls: map[string]int{"1h": 1, "2h": 1, "4h": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &mockExchange{current: tt.current, history: tt.history}
			f, err := NewOpenInterestFetcher(OpenInterestConfig{
				Source: ex,
				Logger: &mockLogger{},
				Retry:  retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
			})
			require.NoError(t, err)

			oi := f.Fetch(context.Background(), "BTCUSDT")
			assert.Equal(t, tt.wantCurrent, oi.Current != nil)
			assert.Equal(t, tt.wantPeriod, oi.Period)
			assert.Len(t, oi.History, tt.wantHistory)
			assert.Equal(t, tt.wantOICalls, ex.callsFor("oi:BTCUSDT"))
			for period, n := range tt.wantHistCalls {
				assert.Equal(t, n, ex.callsFor("oih:BTCUSDT:"+period), "period %s", period)
			}
		})
	}
}

func TestRunBatches_OrderAndConcurrency(t *testing.T) {
	var inFlight, maxInFlight int32
	results, outcome := RunBatches(context.Background(), BatchConfig{Size: 4, Pause: time.Millisecond}, 10, func(ctx context.Context, i int) (int, bool) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(time.Duration(10-i) * time.Millisecond) // later indices finish first
		atomic.AddInt32(&inFlight, -1)
		return i * i, i%3 != 0
	})

	require.Len(t, results, 10)
	assert.False(t, outcome.Partial())
	assert.Equal(t, 3, outcome.Batches)
	assert.Equal(t, 3, outcome.Completed)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(4))
	for i, r := range results {
		assert.Equal(t, i*i, r.Value)
		assert.Equal(t, i%3 != 0, r.OK)
	}
}

func TestRunBatches_DeadlineStopsRemainingBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started int32
	results, outcome := RunBatches(ctx, BatchConfig{Size: 2, Pause: time.Millisecond}, 6, func(ctx context.Context, i int) (string, bool) {
		atomic.AddInt32(&started, 1)
		if i == 1 {
			cancel()
		}
		return "ok", true
	})

	assert.True(t, outcome.Partial())
	assert.Equal(t, 0, outcome.Completed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&started), "no batch starts after cancellation")
	assert.True(t, results[0].OK)
	assert.False(t, results[2].OK)
}

func TestRunBatches_Empty(t *testing.T) {
	results, outcome := RunBatches(context.Background(), BatchConfig{}, 0, func(ctx context.Context, i int) (int, bool) {
		t.Fatal("task must not run")
		return 0, false
	})
	assert.Empty(t, results)
	assert.False(t, outcome.Partial())
}
