package domain

import (
	"sort"
	"time"
)

// Snapshot is a complete, ordered record set produced by one pipeline run.
type Snapshot struct {
	Records    []InstrumentRecord `json:"records"`
	ComputedAt time.Time          `json:"computedAt"`
	RunID      string             `json:"runId"`
	Partial    bool               `json:"partial"` // Run was cut short by a deadline
	Stale      bool               `json:"stale"`   // Served past its TTL because a refresh failed
}

// Age returns how old the snapshot is at now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.ComputedAt)
}

// Clone returns a copy whose Records slice can be modified freely.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Records = make([]InstrumentRecord, len(s.Records))
	copy(c.Records, s.Records)
	return &c
}

// ApplyTicks returns a copy of the snapshot with price and volume replaced by
// the given ticks, re-ordered by descending volume. Indicators are left
// untouched; ticks older than ComputedAt or for unknown symbols are ignored.
func (s *Snapshot) ApplyTicks(ticks map[string]Tick) *Snapshot {
	c := s.Clone()
	if len(ticks) == 0 {
		return c
	}
	for i := range c.Records {
		rec := &c.Records[i]
		t, ok := ticks[rec.Symbol]
		if !ok || !t.EventTime.After(s.ComputedAt) {
			continue
		}
		if t.Price != nil && *t.Price > 0 {
			rec.Price = *t.Price
		}
		if t.Volume != nil && *t.Volume > 0 {
			rec.Volume = *t.Volume
		}
		rec.UpdatedAt = t.EventTime
	}
	sort.SliceStable(c.Records, func(i, j int) bool {
		return c.Records[i].Volume > c.Records[j].Volume
	})
	return c
}
