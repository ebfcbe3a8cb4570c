package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"cryptoScreener/internal/app"
	"cryptoScreener/internal/domain"
	"cryptoScreener/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakePipeline struct {
	snap  *domain.Snapshot
	err   error
	state app.RunState
	age   time.Duration
}

func (f *fakePipeline) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	return f.snap, f.err
}

func (f *fakePipeline) State() app.RunState { return f.state }

func (f *fakePipeline) CacheAge() (time.Duration, bool) {
	return f.age, f.snap != nil
}

type fakeFeed struct {
	mu      sync.Mutex
	allow   []string
	ch      chan domain.Tick
	ready   chan struct{}
	overlay func(*domain.Snapshot) *domain.Snapshot
}

func (f *fakeFeed) Subscribe(ctx context.Context, allowList []string) <-chan domain.Tick {
	f.mu.Lock()
	f.allow = allowList
	f.mu.Unlock()
	close(f.ready)
	return f.ch
}

func (f *fakeFeed) Overlay(s *domain.Snapshot) *domain.Snapshot {
	return f.overlay(s)
}

func newServer(t *testing.T, p Pipeline, feed TickFeed) *httptest.Server {
	t.Helper()
	srv, err := New(Config{Pipeline: p, Ticks: feed, Logger: &mockLogger{}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func sampleSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		RunID:      "run-1",
		ComputedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Records: []domain.InstrumentRecord{
			{Symbol: "BTCUSDT", Price: 65000, Volume: 9e9, ZScore: domain.Float(-1.5)},
			{Symbol: "ETHUSDT", Price: 3000, Volume: 4e9},
		},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestInstruments_OK(t *testing.T) {
	ts := newServer(t, &fakePipeline{snap: sampleSnapshot()}, nil)

	resp, err := http.Get(ts.URL + "/api/instruments")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got domain.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got.Records, 2)
	assert.Equal(t, "BTCUSDT", got.Records[0].Symbol)
	require.NotNil(t, got.Records[0].ZScore)
	assert.Equal(t, -1.5, *got.Records[0].ZScore)
	assert.Nil(t, got.Records[1].ZScore)
	assert.Equal(t, "run-1", got.RunID)
}

func TestInstruments_StaleIsFlagged(t *testing.T) {
	snap := sampleSnapshot()
	snap.Stale = true
	ts := newServer(t, &fakePipeline{snap: snap}, nil)

	resp, err := http.Get(ts.URL + "/api/instruments")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Warning"))
	var got domain.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.Stale)
}

func TestInstruments_LiveOverlay(t *testing.T) {
	feed := &fakeFeed{overlay: func(s *domain.Snapshot) *domain.Snapshot {
		c := s.Clone()
		c.Records[0].Price = 70000
		return c
	}}
	ts := newServer(t, &fakePipeline{snap: sampleSnapshot()}, feed)

	for query, want := range map[string]float64{"": 65000, "?live=1": 70000} {
		resp, err := http.Get(ts.URL + "/api/instruments" + query)
		require.NoError(t, err)
		var got domain.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		resp.Body.Close()
		assert.Equal(t, want, got.Records[0].Price, "query %q", query)
	}
}

func TestInstruments_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantRetry  string
	}{
		{
			name:       "rate limited with hint",
			err:        fmt.Errorf("resolve: %w", &ports.RateLimitError{RetryAfter: 1500 * time.Millisecond, Err: errors.New("429")}),
			wantStatus: http.StatusTooManyRequests,
			wantRetry:  "2",
		},
		{
			name:       "rate limited without hint",
			err:        fmt.Errorf("resolve: %w", &ports.RateLimitError{Err: errors.New("429")}),
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "every symbol rate limited",
			err:        &ports.RateLimitError{RetryAfter: 30 * time.Second, Err: fmt.Errorf("run r over 2 instruments: %w", ports.ErrEmptySnapshot)},
			wantStatus: http.StatusTooManyRequests,
			wantRetry:  "30",
		},
		{
			name:       "upstream unavailable",
			err:        fmt.Errorf("resolve: %w", ports.ErrUpstreamUnavailable),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "empty snapshot",
			err:        ports.ErrEmptySnapshot,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newServer(t, &fakePipeline{err: tt.err}, nil)

			resp, err := http.Get(ts.URL + "/api/instruments")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantRetry, resp.Header.Get("Retry-After"))
			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestHealth(t *testing.T) {
	ts := newServer(t, &fakePipeline{snap: sampleSnapshot(), state: app.StateCached, age: 30 * time.Second}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "cached", body.State)
	assert.True(t, body.HasSnapshot)
	require.NotNil(t, body.CacheAgeSeconds)
	assert.Equal(t, 30.0, *body.CacheAgeSeconds)
	assert.False(t, body.LiveTicks)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newServer(t, &fakePipeline{snap: sampleSnapshot()}, nil)

	resp, err := http.Post(ts.URL+"/api/instruments", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTicks_Disabled(t *testing.T) {
	ts := newServer(t, &fakePipeline{}, nil)

	resp, err := http.Get(ts.URL + "/ws/ticks")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTicks_StreamsSubscribedSymbols(t *testing.T) {
	feed := &fakeFeed{ch: make(chan domain.Tick, 4), ready: make(chan struct{})}
	ts := newServer(t, &fakePipeline{}, feed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/ticks?symbols=btcusdt,%20ethusdt,"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	<-feed.ready
	feed.mu.Lock()
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, feed.allow)
	feed.mu.Unlock()

	at := time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC)
	feed.ch <- domain.Tick{Symbol: "BTCUSDT", Price: domain.Float(65100), EventTime: at}
	close(feed.ch)

	var got domain.Tick
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, "BTCUSDT", got.Symbol)
	require.NotNil(t, got.Price)
	assert.Equal(t, 65100.0, *got.Price)
	assert.Nil(t, got.Volume)
	assert.True(t, at.Equal(got.EventTime))

	// The server closes normally once the feed ends.
	var next domain.Tick
	err = wsjson.Read(ctx, conn, &next)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}
