package ports

import (
	"context"

	"cryptoScreener/internal/domain"
)

// UniverseSource provides the exchange metadata needed to resolve the
// instrument universe.
type UniverseSource interface {
	// GetExchangeInfo retrieves status/contract-type/asset metadata for all symbols.
	GetExchangeInfo(ctx context.Context) ([]domain.SymbolInfo, error)

	// Get24hTickers retrieves rolling 24h statistics for all symbols.
	Get24hTickers(ctx context.Context) ([]domain.Ticker24h, error)
}

// KlineSource provides historical candlestick data.
type KlineSource interface {
	// GetKlines retrieves the most recent klines for the given symbol, oldest first.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)
}

// OpenInterestSource provides current and historical open interest.
type OpenInterestSource interface {
	// GetOpenInterest retrieves the current open interest for a symbol.
	GetOpenInterest(ctx context.Context, symbol string) (*domain.OpenInterestPoint, error)

	// GetOpenInterestHistory retrieves open-interest history at the given period
	// granularity (e.g. "1h"), oldest first.
	GetOpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]domain.OpenInterestPoint, error)
}

// TickSource streams incremental price/volume updates.
type TickSource interface {
	// StreamTickers starts a WebSocket stream of market tickers for all symbols.
	// Returns channels to control the stream (doneCh, stopCh) or an error if connection fails.
	StreamTickers(ctx context.Context, handler func(ticks []domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}

// ExchangeClient is the full set of exchange capabilities used by the screener.
type ExchangeClient interface {
	UniverseSource
	KlineSource
	OpenInterestSource
	TickSource

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}
