package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/engram/internal/model"
	"github.com/rcliao/engram/internal/strength"
)

const (
	// BriefingSize is how many of the strongest memories the service sees.
	BriefingSize = 60
	// FallbackSize is how many memories the local briefing lists.
	FallbackSize = 20

	fallbackHeader = "## Memory Briefing (local)\n\n"
)

// BriefingResult reports one briefing regeneration.
type BriefingResult struct {
	Text  string `json:"text"`
	Local bool   `json:"local"`
	Count int    `json:"count"`
}

type briefingEntry struct {
	Content      string   `json:"content"`
	Strength     string   `json:"strength"`
	Tags         []string `json:"tags"`
	Consolidated bool     `json:"consolidated"`
	Generalized  bool     `json:"generalized"`
}

type ranked struct {
	model.Memory
	strength float64
}

// RegenerateBriefing summarizes the strongest memories and stores the
// result. When the service fails a local tiered list is stored instead.
func (e *Engine) RegenerateBriefing(ctx context.Context) (*BriefingResult, error) {
	ms := e.store.Snapshot()
	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: nothing to brief", ErrTooFew)
	}
	now := e.store.Now().UTC()
	sorted := rank(ms, now)

	payload, err := briefingPayload(sorted[:min(len(sorted), BriefingSize)])
	if err != nil {
		return nil, err
	}

	r := &BriefingResult{Count: min(len(sorted), BriefingSize)}
	text, err := e.complete(ctx, "briefing", briefingInstruction, payload)
	if err != nil {
		e.log.Warn("briefing service failed, using local briefing", zap.Error(err))
		r.Local = true
		r.Count = min(len(sorted), FallbackSize)
		text = localBriefing(sorted[:r.Count])
	}

	if err := e.store.SetBriefing(ctx, text); err != nil {
		e.metrics.RecordRun("briefing", "store_failure")
		return nil, fmt.Errorf("save briefing: %w", err)
	}
	r.Text = text

	outcome := "ok"
	if r.Local {
		outcome = "local"
	}
	e.metrics.RecordRun("briefing", outcome)
	e.log.Info("briefing regenerated", zap.Bool("local", r.Local), zap.Int("memories", r.Count), zap.Int("chars", len(text)))
	return r, nil
}

// rank orders ms by strength, strongest first. Ties keep storage order.
func rank(ms []model.Memory, now time.Time) []ranked {
	out := make([]ranked, len(ms))
	for i, m := range ms {
		out[i] = ranked{Memory: m, strength: strength.Of(m, now)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].strength > out[j].strength })
	return out
}

func briefingPayload(rs []ranked) (string, error) {
	entries := make([]briefingEntry, len(rs))
	for i, r := range rs {
		entries[i] = briefingEntry{
			Content:      r.Content,
			Strength:     fmt.Sprintf("%.2f", r.strength),
			Tags:         r.Tags,
			Consolidated: r.Consolidated,
			Generalized:  r.Generalized,
		}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode briefing payload: %w", err)
	}
	return string(b), nil
}

func localBriefing(rs []ranked) string {
	lines := make([]string, len(rs))
	for i, r := range rs {
		lines[i] = fmt.Sprintf("- [%s] %s", strength.Tier(r.strength), r.Content)
	}
	return fallbackHeader + strings.Join(lines, "\n")
}
