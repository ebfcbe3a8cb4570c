package indicators

import (
	"math"
	"time"

	"cryptoScreener/internal/domain"
)

// completed drops the trailing candle when it had not closed by asOf.
func completed(klines []*domain.Kline, asOf time.Time) []*domain.Kline {
	n := len(klines)
	if n > 0 && !klines[n-1].ClosedBy(asOf) {
		return klines[:n-1]
	}
	return klines
}

// ZScore standardises today's move against the trailing window of
// day-over-day returns built from completed coarse candles.
//
// The sign is inverted relative to the textbook definition:
// z = (mean - today) / stddev, so a day that is up more than usual yields a
// negative score. Consumers rely on this orientation.
//
// The result is nil when fewer than window valid returns exist or the
// population standard deviation is zero.
func ZScore(coarse []*domain.Kline, price float64, window int, asOf time.Time) *float64 {
	if window <= 0 || price <= 0 {
		return nil
	}
	done := completed(coarse, asOf)
	if len(done) < window+1 {
		return nil
	}
	done = done[len(done)-window-1:]

	returns := make([]float64, 0, window)
	for i := 1; i < len(done); i++ {
		prev, cur := done[i-1].Close, done[i].Close
		if prev <= 0 || cur <= 0 || !isFinite(prev) || !isFinite(cur) {
			continue
		}
		returns = append(returns, (cur-prev)/prev*100)
	}
	if len(returns) < window {
		return nil
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	sigma := math.Sqrt(sq / float64(len(returns)))
	if sigma == 0 || !isFinite(sigma) {
		return nil
	}

	lastClose := done[len(done)-1].Close
	today := (price - lastClose) / lastClose * 100
	z := (mean - today) / sigma
	if !isFinite(z) {
		return nil
	}
	return &z
}
