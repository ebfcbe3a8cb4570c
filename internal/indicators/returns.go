package indicators

import "cryptoScreener/internal/domain"

// Return computes the percentage change of price against the close k periods
// back. The last candle is the current period, so k=1 compares with the
// previous close. Series shorter than k+1 candles yield 0.
func Return(klines []*domain.Kline, price float64, k int) float64 {
	n := len(klines)
	if k < 0 || n < k+1 {
		return 0
	}
	return pctChange(klines[n-1-k].Close, price)
}

// PriorClose returns the close of the period before the current one.
func PriorClose(klines []*domain.Kline) (float64, bool) {
	n := len(klines)
	if n < 2 {
		return 0, false
	}
	c := klines[n-2].Close
	return c, c > 0 && isFinite(c)
}
