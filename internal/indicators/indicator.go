// Package indicators derives the screener fields of an instrument record from
// its fetched price series and open-interest data. Everything here is pure:
// no I/O, no clocks, no shared state.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"cryptoScreener/internal/ports"
)

var (
	// ErrBelowVolumeFloor marks an instrument whose 24h quote volume is under the configured minimum.
	ErrBelowVolumeFloor = errors.New("24h quote volume below floor")
	// ErrNoPriorClose marks an instrument without a usable prior-period close.
	// It matches ports.ErrInsufficientHistory.
	ErrNoPriorClose = fmt.Errorf("prior-period close missing or non-positive: %w", ports.ErrInsufficientHistory)
	// ErrInvalidPrice marks an instrument whose current price is not a positive finite number.
	ErrInvalidPrice = errors.New("current price must be positive")
)

// Default parameters.
const (
	DefaultMinQuoteVolume = 10000.0
	DefaultEMAPeriod      = 200
	DefaultZScoreReturns  = 30
)

var (
	// ReturnPeriods are the coarse look-backs reported as Return1d/7d/30d.
	ReturnPeriods = [3]int{1, 7, 30}
	// VWAPWindows are the coarse windows reported as VWAP7/30/90/365.
	VWAPWindows = [4]int{7, 30, 90, 365}
)

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrZero(v float64) float64 {
	if isFinite(v) {
		return v
	}
	return 0
}

// pctChange returns (to-from)/from*100, or 0 when from is not positive.
func pctChange(from, to float64) float64 {
	if from <= 0 || !isFinite(from) {
		return 0
	}
	return finiteOrZero((to - from) / from * 100)
}
