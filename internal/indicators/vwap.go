package indicators

import "cryptoScreener/internal/domain"

// VWAP computes the volume-weighted typical price over the trailing window
// candles (all of them when the series is shorter). When the window carries
// no volume the current price is returned.
func VWAP(klines []*domain.Kline, window int, price float64) float64 {
	start := len(klines) - window
	if start < 0 {
		start = 0
	}

	var pv, vol float64
	for _, k := range klines[start:] {
		if !isFinite(k.Volume) || k.Volume <= 0 {
			continue
		}
		tp := k.TypicalPrice()
		if !isFinite(tp) {
			continue
		}
		pv += tp * k.Volume
		vol += k.Volume
	}
	if vol == 0 {
		return price
	}
	return pv / vol
}

// VWAPDistance pairs VWAP with the distance of price from it.
func VWAPDistance(klines []*domain.Kline, window int, price float64) domain.PriceDistance {
	v := VWAP(klines, window, price)
	return domain.PriceDistance{Value: finiteOrZero(v), DistancePct: pctChange(v, price)}
}
