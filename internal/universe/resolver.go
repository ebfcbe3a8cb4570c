// Package universe resolves the ranked set of instruments the screener covers.
package universe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cryptoScreener/internal/domain"
	"cryptoScreener/internal/ports"
)

// Defaults for the eligibility filter.
const (
	DefaultSize         = 100
	DefaultQuoteAsset   = "USDT"
	DefaultContractType = "PERPETUAL"
	StatusTrading       = "TRADING"
)

// Config holds the dependencies and filter of the Resolver.
type Config struct {
	Source       ports.UniverseSource
	Logger       ports.Logger
	Size         int    // Maximum number of instruments returned
	QuoteAsset   string // e.g. USDT
	ContractType string // e.g. PERPETUAL
}

// Resolver selects eligible instruments ranked by 24h quote volume.
type Resolver struct {
	source       ports.UniverseSource
	logger       ports.Logger
	size         int
	quoteAsset   string
	contractType string
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("universe source is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = DefaultQuoteAsset
	}
	if cfg.ContractType == "" {
		cfg.ContractType = DefaultContractType
	}
	return &Resolver{
		source:       cfg.Source,
		logger:       cfg.Logger,
		size:         cfg.Size,
		quoteAsset:   cfg.QuoteAsset,
		contractType: cfg.ContractType,
	}, nil
}

// Resolve fetches exchange metadata and 24h tickers concurrently and returns
// the eligible instruments ordered by quote volume descending, ties broken
// by symbol. A rate-limit response is returned as is so callers can tell it
// apart; any other failure is reported as ports.ErrUpstreamUnavailable.
func (r *Resolver) Resolve(ctx context.Context) ([]domain.Instrument, error) {
	var (
		wg                sync.WaitGroup
		symbols           []domain.SymbolInfo
		tickers           []domain.Ticker24h
		symbolsErr, tkErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		symbols, symbolsErr = r.source.GetExchangeInfo(ctx)
	}()
	go func() {
		defer wg.Done()
		tickers, tkErr = r.source.Get24hTickers(ctx)
	}()
	wg.Wait()

	if err := errors.Join(symbolsErr, tkErr); err != nil {
		if ports.IsRateLimited(err) {
			return nil, err
		}
		if errors.Is(err, ports.ErrUpstreamUnavailable) {
			return nil, fmt.Errorf("resolve universe: %w", err)
		}
		return nil, fmt.Errorf("resolve universe: %w: %w", ports.ErrUpstreamUnavailable, err)
	}

	out := r.rank(symbols, tickers)
	r.logger.Info(ctx, "Universe resolved", map[string]interface{}{
		"symbols":    len(symbols),
		"tickers":    len(tickers),
		"eligible":   len(out),
		"quoteAsset": r.quoteAsset,
	})
	return out, nil
}

func (r *Resolver) eligible(s domain.SymbolInfo) bool {
	return s.Status == StatusTrading && s.ContractType == r.contractType && s.QuoteAsset == r.quoteAsset
}

// rank joins metadata with tickers, applies the filter and orders the result.
func (r *Resolver) rank(symbols []domain.SymbolInfo, tickers []domain.Ticker24h) []domain.Instrument {
	allowed := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if r.eligible(s) {
			allowed[s.Symbol] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(tickers))
	out := make([]domain.Instrument, 0, len(allowed))
	for _, t := range tickers {
		if _, ok := allowed[t.Symbol]; !ok {
			continue
		}
		if _, dup := seen[t.Symbol]; dup {
			continue
		}
		if t.LastPrice <= 0 || t.QuoteVolume <= 0 {
			continue
		}
		seen[t.Symbol] = struct{}{}
		out = append(out, domain.Instrument{Symbol: t.Symbol, LastPrice: t.LastPrice, QuoteVolume: t.QuoteVolume})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].QuoteVolume != out[j].QuoteVolume {
			return out[i].QuoteVolume > out[j].QuoteVolume
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > r.size {
		out = out[:r.size]
	}
	for i := range out {
		out[i].Rank = i
	}
	return out
}
