package domain

// SymbolInfo is the subset of exchange metadata used to decide eligibility.
type SymbolInfo struct {
	Symbol       string
	Status       string // e.g. TRADING, SETTLING, PENDING_TRADING
	ContractType string // e.g. PERPETUAL, CURRENT_QUARTER
	QuoteAsset   string
	MarginAsset  string
}

// Ticker24h is a rolling 24h statistics row.
type Ticker24h struct {
	Symbol      string
	LastPrice   float64
	QuoteVolume float64
}

// Instrument is one member of the resolved universe.
type Instrument struct {
	Rank        int // 0-based position in the ranked universe
	Symbol      string
	LastPrice   float64
	QuoteVolume float64
}
