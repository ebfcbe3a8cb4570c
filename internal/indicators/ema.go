package indicators

import "cryptoScreener/internal/domain"

// validCloses returns the positive, finite closes in series order.
func validCloses(klines []*domain.Kline) []float64 {
	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		if k != nil && k.Close > 0 && isFinite(k.Close) {
			closes = append(closes, k.Close)
		}
	}
	return closes
}

// EMA computes the exponential moving average of the closes. It is seeded
// with the first valid close and iterated with k = 2/(period+1). With fewer
// than period valid closes the current price is returned instead.
func EMA(klines []*domain.Kline, period int, price float64) float64 {
	closes := validCloses(klines)
	if period <= 0 || len(closes) < period {
		return price
	}

	k := 2.0 / float64(period+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// EMADistance pairs the EMA with the distance of the most recent close of the
// same series from it. An empty series is measured against price, which makes
// the distance neutral.
func EMADistance(klines []*domain.Kline, period int, price float64) domain.PriceDistance {
	ema := EMA(klines, period, price)

	ref := price
	if closes := validCloses(klines); len(closes) > 0 {
		ref = closes[len(closes)-1]
	}
	return domain.PriceDistance{Value: finiteOrZero(ema), DistancePct: pctChange(ema, ref)}
}
