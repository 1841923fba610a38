package store

import (
	"math"
	"time"

	"github.com/rcliao/engram/internal/strength"
)

// AutoConsolidateAfter is how long after the last consolidation the next
// automatic run becomes due.
const AutoConsolidateAfter = 3 * strength.Day

// Stats holds collection statistics.
type Stats struct {
	Total             int        `json:"total"`
	AvgStrength       float64    `json:"avg_strength"`
	Consolidated      int        `json:"consolidated"`
	Patterns          int        `json:"patterns"`
	Decaying          int        `json:"decaying"`
	LastConsolidation *time.Time `json:"last_consolidation,omitempty"`
	NextAutoInDays    *float64   `json:"next_auto_in_days,omitempty"`
	HasBriefing       bool       `json:"has_briefing"`
}

// Stats returns collection statistics at now.
func (s *MemoryStore) Stats(now time.Time) *Stats {
	ms := s.Snapshot()
	meta := s.Meta()

	st := &Stats{Total: len(ms), LastConsolidation: meta.LastConsolidation, HasBriefing: s.Briefing() != ""}
	sum := 0.0
	for _, m := range ms {
		v := strength.Of(m, now)
		sum += v
		if m.Consolidated {
			st.Consolidated++
		}
		if m.Generalized {
			st.Patterns++
		}
		if v < 0.2 {
			st.Decaying++
		}
	}
	if len(ms) > 0 {
		st.AvgStrength = math.Round(sum/float64(len(ms))*100) / 100
	}
	if meta.LastConsolidation != nil {
		next := math.Max(0, AutoConsolidateAfter.Hours()/24-strength.AgeDays(*meta.LastConsolidation, now))
		next = math.Round(next*10) / 10
		st.NextAutoInDays = &next
	}
	return st
}
