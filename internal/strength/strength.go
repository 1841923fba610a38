// Package strength computes the time-varying strength of a memory.
//
// Strength combines average salience, a capped reinforcement bonus, a flat
// consolidation bonus and a linear age penalty, clamped to [0,1]. It is
// never stored; callers recompute it on every read.
package strength

import (
	"math"
	"time"

	"github.com/rcliao/engram/internal/model"
)

const (
	DecayRate          = 0.015 // per day of age
	RetrievalBoost     = 0.12  // per access
	MaxRetrievalBoost  = 0.5
	ConsolidationBonus = 0.2

	// PromoteAt and PromoteAccesses gate promotion to consolidated.
	PromoteAt       = 0.5
	PromoteAccesses = 2
)

// Day is the unit ages are measured in.
const Day = 24 * time.Hour

// AgeDays returns the non-negative number of days from t to now.
func AgeDays(t, now time.Time) float64 {
	return math.Max(0, float64(now.Sub(t))/float64(Day))
}

// Of returns the strength of m at now.
func Of(m model.Memory, now time.Time) float64 {
	sal := (finite(m.Salience.Novelty) + finite(m.Salience.Relevance) +
		finite(m.Salience.Emotional) + finite(m.Salience.Predictive)) / 4
	boost := math.Min(float64(m.AccessCount)*RetrievalBoost, MaxRetrievalBoost)
	bonus := 0.0
	if m.Consolidated {
		bonus = ConsolidationBonus
	}
	s := sal + boost + bonus - DecayRate*AgeDays(m.CreatedAt, now)
	return math.Max(0, math.Min(1, s))
}

// Promotable reports whether m should be marked consolidated at now.
func Promotable(m model.Memory, now time.Time) bool {
	return !m.Consolidated && m.AccessCount >= PromoteAccesses && Of(m, now) >= PromoteAt
}

// Tier labels a strength value.
func Tier(s float64) string {
	switch {
	case s > 0.7:
		return "Strong"
	case s > 0.4:
		return "Stable"
	case s > 0.2:
		return "Fading"
	default:
		return "Decaying"
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
