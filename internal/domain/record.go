package domain

import "time"

// PriceDistance is a reference level together with the percentage distance of
// a price from it.
type PriceDistance struct {
	Value       float64 `json:"value"`
	DistancePct float64 `json:"distancePct"`
}

// InstrumentRecord is the computed output unit of the pipeline.
type InstrumentRecord struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"` // 24h quote volume

	Return1d  float64 `json:"return1d"`
	Return7d  float64 `json:"return7d"`
	Return30d float64 `json:"return30d"`

	VWAP7   PriceDistance `json:"vwap7"`
	VWAP30  PriceDistance `json:"vwap30"`
	VWAP90  PriceDistance `json:"vwap90"`
	VWAP365 PriceDistance `json:"vwap365"`

	EMAFine  PriceDistance `json:"emaFine"`
	EMADaily PriceDistance `json:"emaDaily"`

	ZScore      *float64 `json:"zScore"`
	OIChange24h *float64 `json:"oiChange24h"`
	OIChange7d  *float64 `json:"oiChange7d"`

	UpdatedAt time.Time `json:"updatedAt"` // Last time price/volume were set
}

// Float returns a pointer to v. Used for optional indicator fields.
func Float(v float64) *float64 {
	return &v
}
