package store

import (
	"sort"
	"strings"
	"time"

	"github.com/rcliao/engram/internal/model"
	"github.com/rcliao/engram/internal/strength"
)

// Sort orders for List.
const (
	SortStrength = "strength"
	SortRecent   = "recent"
	SortAccess   = "access"
)

// ListParams holds parameters for listing memories.
type ListParams struct {
	Query string // case-insensitive substring of content or any tag
	Sort  string // strength (default) | recent | access
	Limit int    // 0 means no limit
}

// Scored wraps a memory with its strength at list time.
type Scored struct {
	model.Memory
	Strength float64 `json:"strength"`
	Tier     string  `json:"tier"`
}

// List returns memories matching p, sorted explicitly.
func (s *MemoryStore) List(p ListParams, now time.Time) []Scored {
	q := strings.ToLower(strings.TrimSpace(p.Query))

	var out []Scored
	for _, m := range s.Snapshot() {
		if q != "" && !matches(m, q) {
			continue
		}
		st := strength.Of(m, now)
		out = append(out, Scored{Memory: m, Strength: st, Tier: strength.Tier(st)})
	}

	switch p.Sort {
	case SortRecent:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	case SortAccess:
		sort.SliceStable(out, func(i, j int) bool { return out[i].AccessCount > out[j].AccessCount })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Strength > out[j].Strength })
	}

	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}

func matches(m model.Memory, q string) bool {
	if strings.Contains(strings.ToLower(m.Content), q) {
		return true
	}
	for _, t := range m.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}
