package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoScreener/internal/domain"
)

type fakeTickSource struct {
	handler    func([]domain.Tick)
	errHandler func(error)
	doneCh     chan struct{}
	stopCh     chan struct{}
	err        error
}

func (f *fakeTickSource) StreamTickers(ctx context.Context, handler func([]domain.Tick), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.handler, f.errHandler = handler, errHandler
	f.doneCh, f.stopCh = make(chan struct{}), make(chan struct{}, 1)
	return f.doneCh, f.stopCh, nil
}

func tick(symbol string, price float64, at time.Time) domain.Tick {
	return domain.Tick{Symbol: symbol, Price: domain.Float(price), EventTime: at}
}

func startHub(t *testing.T, buffer int) (*TickHub, *fakeTickSource, context.CancelFunc) {
	t.Helper()
	src := &fakeTickSource{}
	hub, err := NewTickHub(TickHubConfig{Source: src, Logger: &recordingLogger{}, Buffer: buffer})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, hub.Start(ctx))
	t.Cleanup(cancel)
	return hub, src, cancel
}

func recv(t *testing.T, ch <-chan domain.Tick) domain.Tick {
	t.Helper()
	select {
	case tk, ok := <-ch:
		require.True(t, ok, "channel closed")
		return tk
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tick")
	}
	return domain.Tick{}
}

func TestTickHub_StartError(t *testing.T) {
	hub, err := NewTickHub(TickHubConfig{Source: &fakeTickSource{err: errors.New("dial")}, Logger: &recordingLogger{}})
	require.NoError(t, err)
	assert.Error(t, hub.Start(context.Background()))
}

func TestTickHub_FanOutWithAllowList(t *testing.T) {
	hub, src, _ := startHub(t, 8)
	ctx := context.Background()

	all := hub.Subscribe(ctx, nil)
	btcOnly := hub.Subscribe(ctx, []string{" btcusdt "})

	now := time.Now()
	src.handler([]domain.Tick{tick("ETHUSDT", 3000, now), tick("BTCUSDT", 65000, now)})

	assert.Equal(t, "ETHUSDT", recv(t, all).Symbol)
	assert.Equal(t, "BTCUSDT", recv(t, all).Symbol)

	got := recv(t, btcOnly)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, 65000.0, *got.Price)
	select {
	case extra := <-btcOnly:
		t.Fatalf("unexpected tick %v", extra.Symbol)
	default:
	}
}

func TestTickHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub, src, _ := startHub(t, 1)
	slow := hub.Subscribe(context.Background(), nil)

	now := time.Now()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			src.handler([]domain.Tick{tick("BTCUSDT", float64(100+i), now.Add(time.Duration(i)*time.Millisecond))})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, int64(4), hub.Dropped())
	assert.Equal(t, 100.0, *recv(t, slow).Price)

	latest, ok := hub.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 104.0, *latest.Price)
}

func TestTickHub_LatestKeepsNewestAndMergesFields(t *testing.T) {
	hub, src, _ := startHub(t, 8)
	now := time.Now()

	src.handler([]domain.Tick{{Symbol: "BTCUSDT", Price: domain.Float(100), Volume: domain.Float(5e6), EventTime: now}})
	src.handler([]domain.Tick{tick("BTCUSDT", 90, now.Add(-time.Second))}) // out of order, ignored
	src.handler([]domain.Tick{tick("BTCUSDT", 101, now.Add(time.Second))})

	latest, ok := hub.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 101.0, *latest.Price)
	require.NotNil(t, latest.Volume)
	assert.Equal(t, 5e6, *latest.Volume, "volume carried over from the previous tick")
}

func TestTickHub_Overlay(t *testing.T) {
	hub, src, _ := startHub(t, 8)
	computedAt := time.Now()
	snap := &domain.Snapshot{
		ComputedAt: computedAt,
		Records: []domain.InstrumentRecord{
			{Symbol: "BTCUSDT", Price: 100, Volume: 1e6, Return1d: 3},
			{Symbol: "ETHUSDT", Price: 50, Volume: 5e5},
		},
	}

	src.handler([]domain.Tick{
		{Symbol: "BTCUSDT", Price: domain.Float(110), Volume: domain.Float(2e6), EventTime: computedAt.Add(time.Second)},
		tick("ETHUSDT", 40, computedAt.Add(-time.Second)), // older than the snapshot
	})

	out := hub.Overlay(snap)
	require.Len(t, out.Records, 2)
	assert.Equal(t, 110.0, out.Records[0].Price)
	assert.Equal(t, 2e6, out.Records[0].Volume)
	assert.Equal(t, 3.0, out.Records[0].Return1d, "indicators untouched")
	assert.Equal(t, 50.0, out.Records[1].Price)
	assert.Equal(t, 100.0, snap.Records[0].Price, "input snapshot not modified")

	assert.Nil(t, hub.Overlay(nil))
}

func TestTickHub_OverlayKeepsVolumeOrder(t *testing.T) {
	hub, src, _ := startHub(t, 8)
	computedAt := time.Now()
	snap := &domain.Snapshot{
		ComputedAt: computedAt,
		Records: []domain.InstrumentRecord{
			{Symbol: "AUSDT", Price: 10, Volume: 3e6},
			{Symbol: "BUSDT", Price: 20, Volume: 2e6},
			{Symbol: "CUSDT", Price: 30, Volume: 1e6},
		},
	}

	src.handler([]domain.Tick{
		{Symbol: "BUSDT", Volume: domain.Float(9e6), EventTime: computedAt.Add(time.Second)},
	})

	out := hub.Overlay(snap)
	got := make([]string, len(out.Records))
	for i, r := range out.Records {
		got[i] = r.Symbol
	}
	assert.Equal(t, []string{"BUSDT", "AUSDT", "CUSDT"}, got)
	assert.Equal(t, 20.0, out.Records[0].Price, "price kept when the tick carries none")
	assert.Equal(t, "AUSDT", snap.Records[0].Symbol, "input snapshot not reordered")
}

func TestTickHub_ClosesSubscribers(t *testing.T) {
	hub, src, cancel := startHub(t, 8)

	subCtx, subCancel := context.WithCancel(context.Background())
	mine := hub.Subscribe(subCtx, nil)
	other := hub.Subscribe(context.Background(), nil)

	subCancel()
	select {
	case _, ok := <-mine:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed after its context ended")
	}

	close(src.doneCh)
	cancel()
	select {
	case _, ok := <-other:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed after hub shutdown")
	}

	// Subscriptions after shutdown are closed immediately.
	_, ok := <-hub.Subscribe(context.Background(), nil)
	assert.False(t, ok)

	hub.Stop()
}
