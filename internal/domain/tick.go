package domain

import "time"

// Tick is an incremental price/volume update for one symbol.
// Nil fields were not part of the update.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     *float64  `json:"price,omitempty"`
	Volume    *float64  `json:"volume,omitempty"`
	EventTime time.Time `json:"eventTime"`
}
