package indicators

import (
	"fmt"
	"time"

	"cryptoScreener/internal/domain"
)

// Config holds the tunable parameters of the Engine.
type Config struct {
	MinQuoteVolume float64 // Records below this 24h quote volume are discarded
	EMAPeriod      int     // Period for both the fine and the daily EMA
	ZScoreReturns  int     // Number of day-over-day returns in the z-score window
}

// Engine computes instrument records.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine. Unset EMA period and z-score window take their
// defaults; MinQuoteVolume is used as given.
func NewEngine(cfg Config) *Engine {
	if cfg.MinQuoteVolume < 0 {
		cfg.MinQuoteVolume = 0
	}
	if cfg.EMAPeriod <= 0 {
		cfg.EMAPeriod = DefaultEMAPeriod
	}
	if cfg.ZScoreReturns <= 0 {
		cfg.ZScoreReturns = DefaultZScoreReturns
	}
	return &Engine{cfg: cfg}
}

// Config returns the effective parameters.
func (e *Engine) Config() Config {
	return e.cfg
}

// Compute derives the record for one instrument. It returns an error only when
// the instrument fails the validity gate; missing optional inputs simply leave
// their fields absent.
func (e *Engine) Compute(inst domain.Instrument, series domain.PriceSeries, oi domain.OpenInterest, asOf time.Time) (*domain.InstrumentRecord, error) {
	price := inst.LastPrice
	if price <= 0 || !isFinite(price) {
		return nil, fmt.Errorf("%s: %w", inst.Symbol, ErrInvalidPrice)
	}
	if inst.QuoteVolume < e.cfg.MinQuoteVolume || inst.QuoteVolume <= 0 {
		return nil, fmt.Errorf("%s: %w (%.2f < %.2f)", inst.Symbol, ErrBelowVolumeFloor, inst.QuoteVolume, e.cfg.MinQuoteVolume)
	}
	if _, ok := PriorClose(series.Coarse); !ok {
		return nil, fmt.Errorf("%s: %w", inst.Symbol, ErrNoPriorClose)
	}

	rec := &domain.InstrumentRecord{
		Symbol:    inst.Symbol,
		Price:     price,
		Volume:    inst.QuoteVolume,
		Return1d:  Return(series.Coarse, price, ReturnPeriods[0]),
		Return7d:  Return(series.Coarse, price, ReturnPeriods[1]),
		Return30d: Return(series.Coarse, price, ReturnPeriods[2]),
		VWAP7:     VWAPDistance(series.Coarse, VWAPWindows[0], price),
		VWAP30:    VWAPDistance(series.Coarse, VWAPWindows[1], price),
		VWAP90:    VWAPDistance(series.Coarse, VWAPWindows[2], price),
		VWAP365:   VWAPDistance(series.Coarse, VWAPWindows[3], price),
		EMAFine:   EMADistance(series.Fine, e.cfg.EMAPeriod, price),
		EMADaily:  EMADistance(series.Coarse, e.cfg.EMAPeriod, price),
		ZScore:    ZScore(series.Coarse, price, e.cfg.ZScoreReturns, asOf),
		UpdatedAt: asOf,
	}
	if oi.Available() {
		rec.OIChange24h = OIChange(oi, OIWindow24h, OITolerance24h, asOf)
		rec.OIChange7d = OIChange(oi, OIWindow7d, OITolerance7d, asOf)
	}
	return rec, nil
}
