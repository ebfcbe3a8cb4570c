package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"cryptoScreener/internal/domain"
	"cryptoScreener/internal/ports"
)

const defaultSubscriberBuffer = 256

// TickHubConfig holds the dependencies of a TickHub.
type TickHubConfig struct {
	Source ports.TickSource
	Logger ports.Logger
	Buffer int // Per-subscriber channel capacity
}

type subscriber struct {
	ch    chan domain.Tick
	allow map[string]struct{} // Nil means every symbol
}

func (s *subscriber) wants(symbol string) bool {
	if s.allow == nil {
		return true
	}
	_, ok := s.allow[symbol]
	return ok
}

// TickHub shares one upstream ticker stream between any number of
// subscribers and remembers the latest tick per symbol.
type TickHub struct {
	source ports.TickSource
	logger ports.Logger
	buffer int

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	latest map[string]domain.Tick
	closed bool

	dropped atomic.Int64
	doneCh  chan struct{}
	stopCh  chan struct{}
}

// NewTickHub creates a TickHub. Call Start to connect upstream.
func NewTickHub(cfg TickHubConfig) (*TickHub, error) {
	if cfg.Source == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for TickHub: %w", ports.ErrConfigurationError)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultSubscriberBuffer
	}
	return &TickHub{
		source: cfg.Source,
		logger: cfg.Logger,
		buffer: cfg.Buffer,
		subs:   make(map[uint64]*subscriber),
		latest: make(map[string]domain.Tick),
	}, nil
}

// Start subscribes to the upstream stream. The stream keeps reconnecting until
// ctx is cancelled, after which all subscriber channels are closed.
func (h *TickHub) Start(ctx context.Context) error {
	doneCh, stopCh, err := h.source.StreamTickers(ctx, h.Publish, func(err error) {
		h.logger.Warn(ctx, "Ticker stream error", map[string]interface{}{"error": err.Error()})
	})
	if err != nil {
		return fmt.Errorf("start ticker stream: %w", err)
	}
	h.doneCh, h.stopCh = doneCh, stopCh
	h.logger.Info(ctx, "Ticker stream started")

	go func() {
		select {
		case <-ctx.Done():
		case <-doneCh:
			h.logger.Warn(ctx, "Ticker stream ended")
		}
		h.closeAll()
	}()
	return nil
}

// Done is closed once the upstream stream has terminated. Nil before Start.
func (h *TickHub) Done() <-chan struct{} {
	return h.doneCh
}

// Dropped returns how many ticks were discarded because a subscriber was slow.
func (h *TickHub) Dropped() int64 {
	return h.dropped.Load()
}

// Subscribe returns a channel of ticks for the symbols in allowList (all
// symbols when empty). The channel is closed when ctx is done or the hub
// shuts down. Delivery never blocks the hub: ticks that do not fit in the
// subscriber's buffer are dropped.
func (h *TickHub) Subscribe(ctx context.Context, allowList []string) <-chan domain.Tick {
	sub := &subscriber{ch: make(chan domain.Tick, h.buffer)}
	for _, s := range allowList {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if sub.allow == nil {
			sub.allow = make(map[string]struct{}, len(allowList))
		}
		sub.allow[s] = struct{}{}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(id)
	}()
	return sub.ch
}

func (h *TickHub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *TickHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Publish records ticks as the latest per symbol and fans them out. Ticks
// older than the latest known one for their symbol are ignored.
func (h *TickHub) Publish(ticks []domain.Tick) {
	fresh := make([]domain.Tick, 0, len(ticks))
	h.mu.Lock()
	for _, t := range ticks {
		prev, ok := h.latest[t.Symbol]
		if ok && prev.EventTime.After(t.EventTime) {
			continue
		}
		if ok {
			if t.Price == nil {
				t.Price = prev.Price
			}
			if t.Volume == nil {
				t.Volume = prev.Volume
			}
		}
		h.latest[t.Symbol] = t
		fresh = append(fresh, t)
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		for _, t := range fresh {
			if !sub.wants(t.Symbol) {
				continue
			}
			select {
			case sub.ch <- t:
			default:
				h.dropped.Add(1)
			}
		}
	}
}

// Latest returns the most recent tick seen for symbol.
func (h *TickHub) Latest(symbol string) (domain.Tick, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.latest[symbol]
	return t, ok
}

// Overlay returns a copy of s with the latest price and volume of every
// symbol that ticked after the snapshot was computed. Indicators are not
// recomputed.
func (h *TickHub) Overlay(s *domain.Snapshot) *domain.Snapshot {
	if s == nil {
		return nil
	}
	h.mu.RLock()
	latest := make(map[string]domain.Tick, len(s.Records))
	for _, r := range s.Records {
		if t, ok := h.latest[r.Symbol]; ok {
			latest[r.Symbol] = t
		}
	}
	h.mu.RUnlock()
	return s.ApplyTicks(latest)
}

// Stop asks the upstream stream to terminate.
func (h *TickHub) Stop() {
	if h.stopCh == nil {
		return
	}
	select {
	case h.stopCh <- struct{}{}:
	default:
	}
}
