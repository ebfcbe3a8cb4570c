package domain

import "time"

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime    time.Time // Start time of the interval
	CloseTime   time.Time // End time of the interval
	Symbol      string    // Trading symbol
	Interval    string    // Kline interval (e.g., "1d", "4h")
	Open        float64   // Opening price
	High        float64   // Highest price
	Low         float64   // Lowest price
	Close       float64   // Closing price
	Volume      float64   // Base asset volume
	QuoteVolume float64   // Quote asset (notional) volume
}

// TypicalPrice returns the (high+low+close)/3 price of the kline.
func (k *Kline) TypicalPrice() float64 {
	return (k.High + k.Low + k.Close) / 3
}

// ClosedBy reports whether the interval had already ended at t.
// The most recent kline returned by the exchange is usually still open.
func (k *Kline) ClosedBy(t time.Time) bool {
	return !k.CloseTime.After(t)
}

// PriceSeries holds the two resolutions fetched for one symbol.
// Fine may be empty: the sub-daily series is optional.
type PriceSeries struct {
	Symbol string
	Coarse []*Kline
	Fine   []*Kline
}
