package domain

import "time"

// OpenInterestPoint is a single open-interest reading.
type OpenInterestPoint struct {
	Time  time.Time
	Value float64 // Outstanding contracts
}

// OpenInterest is the best-effort open-interest result for one symbol.
// Absence is part of the contract: Current is nil and History is empty when
// the upstream could not provide data. It never carries an error.
type OpenInterest struct {
	Current *OpenInterestPoint
	History []OpenInterestPoint // Ascending by Time
	Period  string              // Granularity that produced History, empty if none
}

// Available reports whether any open-interest data was obtained.
func (o OpenInterest) Available() bool {
	return o.Current != nil || len(o.History) > 0
}
