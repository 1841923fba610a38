// Package model defines the core memory data types.
package model

import (
	"math"
	"time"
)

const (
	// MaxContentLen is the longest content a memory may hold, in runes.
	MaxContentLen = 400
	// MaxTags is the most tags a memory may carry.
	MaxTags = 5
	// BackupVersion tags the export envelope schema.
	BackupVersion = "v3"
)

// Salience describes why a memory might matter. Each component is in [0,1].
type Salience struct {
	Novelty    float64 `json:"novelty"`
	Relevance  float64 `json:"relevance"`
	Emotional  float64 `json:"emotional"`
	Predictive float64 `json:"predictive"`
}

// Defaults for salience components the extraction service left out or got wrong.
var (
	ExtractDefaults = Salience{Novelty: 0.5, Relevance: 0.5, Emotional: 0.3, Predictive: 0.4}
	PatternDefaults = Salience{Novelty: 0.6, Relevance: 0.7, Emotional: 0.3, Predictive: 0.5}
)

// Memory is an atomic remembered fact.
type Memory struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	Salience     Salience   `json:"salience"`
	Tags         []string   `json:"tags"`
	AccessCount  int        `json:"accessCount"`
	LastAccessed *time.Time `json:"lastAccessed"`
	CreatedAt    time.Time  `json:"createdAt"`
	Consolidated bool       `json:"consolidated"`
	Generalized  bool       `json:"generalized"`
}

// Meta is the process-wide consolidation bookkeeping record.
type Meta struct {
	LastConsolidation *time.Time `json:"lastConsolidation"`
	Created           time.Time  `json:"created"`
}

// Backup is the full-state export envelope.
type Backup struct {
	Memories   []Memory  `json:"memories"`
	Meta       *Meta     `json:"meta,omitempty"`
	Briefing   string    `json:"briefing"`
	ExportedAt time.Time `json:"exportedAt"`
	Version    string    `json:"version"`
}

// Clamp01 bounds v to [0,1], returning def when v is not a finite number.
func Clamp01(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return math.Max(0, math.Min(1, v))
}

// Clamp bounds every component to [0,1], falling back to the matching
// component of def for non-finite values.
func (s Salience) Clamp(def Salience) Salience {
	return Salience{
		Novelty:    Clamp01(s.Novelty, def.Novelty),
		Relevance:  Clamp01(s.Relevance, def.Relevance),
		Emotional:  Clamp01(s.Emotional, def.Emotional),
		Predictive: Clamp01(s.Predictive, def.Predictive),
	}
}

// TruncateContent cuts s to MaxContentLen runes.
func TruncateContent(s string) string {
	r := []rune(s)
	if len(r) <= MaxContentLen {
		return s
	}
	return string(r[:MaxContentLen])
}

// TruncateTags returns a copy of tags holding at most MaxTags entries.
// The result is never nil.
func TruncateTags(tags []string) []string {
	n := len(tags)
	if n > MaxTags {
		n = MaxTags
	}
	out := make([]string, n)
	copy(out, tags[:n])
	return out
}

// Normalize enforces the persisted-record invariants on m.
func (m Memory) Normalize() Memory {
	m.Content = TruncateContent(m.Content)
	m.Salience = m.Salience.Clamp(ExtractDefaults)
	m.Tags = TruncateTags(m.Tags)
	if m.AccessCount < 0 {
		m.AccessCount = 0
	}
	return m
}
