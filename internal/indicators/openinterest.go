package indicators

import (
	"time"

	"cryptoScreener/internal/domain"
)

// Tolerances for matching a historical open-interest point to a look-back.
const (
	OIWindow24h    = 24 * time.Hour
	OITolerance24h = 2 * time.Hour
	OIWindow7d     = 7 * 24 * time.Hour
	OITolerance7d  = 12 * time.Hour
)

// closestPoint returns the history point nearest to target, provided it lies
// within tolerance.
func closestPoint(history []domain.OpenInterestPoint, target time.Time, tolerance time.Duration) (domain.OpenInterestPoint, bool) {
	var (
		best     domain.OpenInterestPoint
		bestDiff time.Duration = -1
	)
	for _, p := range history {
		d := p.Time.Sub(target)
		if d < 0 {
			d = -d
		}
		if d > tolerance {
			continue
		}
		if bestDiff < 0 || d < bestDiff {
			best, bestDiff = p, d
		}
	}
	return best, bestDiff >= 0
}

// currentOI returns the current reading, or the latest history point when the
// current call did not succeed.
func currentOI(oi domain.OpenInterest) (float64, bool) {
	if oi.Current != nil && oi.Current.Value > 0 {
		return oi.Current.Value, true
	}
	if n := len(oi.History); n > 0 && oi.History[n-1].Value > 0 {
		return oi.History[n-1].Value, true
	}
	return 0, false
}

// OIChange returns the percentage change of open interest over window, or nil
// when either end is missing or non-positive.
func OIChange(oi domain.OpenInterest, window, tolerance time.Duration, asOf time.Time) *float64 {
	cur, ok := currentOI(oi)
	if !ok {
		return nil
	}
	past, ok := closestPoint(oi.History, asOf.Add(-window), tolerance)
	if !ok || past.Value <= 0 {
		return nil
	}
	v := (cur - past.Value) / past.Value * 100
	if !isFinite(v) {
		return nil
	}
	return &v
}
