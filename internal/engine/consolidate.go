package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rcliao/engram/internal/model"
	"github.com/rcliao/engram/internal/store"
	"github.com/rcliao/engram/internal/strength"
)

// Trigger says who started a consolidation run.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

const (
	// MinManual and MinAuto are the fewest memories a run needs.
	MinManual = 2
	MinAuto   = 3

	// PruneFloor is the strength at or below which memories are dropped
	// before anything else happens.
	PruneFloor = 0.03

	// Unconsolidated memories weaker than AttenuateBelow lose novelty and
	// predictive salience by Attenuation during a local run.
	AttenuateBelow = 0.25
	Attenuation    = 0.7
)

// Paths a consolidation run can take.
const (
	PathService = "service"
	PathLocal   = "local"
	PathAborted = "aborted"
)

// ConsolidationResult reports one consolidation run.
type ConsolidationResult struct {
	RunID       string  `json:"run_id"`
	Trigger     Trigger `json:"trigger"`
	Path        string  `json:"path"`
	AutoPruned  int     `json:"auto_pruned"`
	Merged      int     `json:"merged"`
	Generalized int     `json:"generalized"`
	Pruned      int     `json:"pruned"`
	Promoted    int     `json:"promoted"`
	Attenuated  int     `json:"attenuated"`
	Total       int     `json:"total"`
	Notes       string  `json:"notes,omitempty"`
}

type consolidationEntry struct {
	ID           string   `json:"id"`
	Content      string   `json:"content"`
	Tags         []string `json:"tags"`
	Strength     string   `json:"strength"`
	AgeDays      string   `json:"age_days"`
	AccessCount  int      `json:"access_count"`
	Consolidated bool     `json:"consolidated"`
}

type plan struct {
	Merge      []json.RawMessage `json:"merge"`
	Generalize []json.RawMessage `json:"generalize"`
	PruneIDs   model.Labels      `json:"prune_ids"`
	Notes      model.Text        `json:"notes"`
}

type mergeEntry struct {
	IDs    model.Labels `json:"ids"`
	Merged *draft       `json:"merged"`
}

type draft struct {
	Content  model.Text          `json:"content"`
	Salience model.DraftSalience `json:"salience"`
	Tags     model.Labels        `json:"tags"`
}

// Consolidate prunes, merges and generalizes the collection.
//
// Memories at or below PruneFloor are always dropped. When the service
// cannot be reached a local pass promotes and attenuates instead. When the
// service answers with something unusable the pruned set is still
// committed, no plan is applied, and ErrUnparsable or ErrSchema is returned.
// Only completed runs update the last consolidation time.
func (e *Engine) Consolidate(ctx context.Context, trigger Trigger) (*ConsolidationResult, error) {
	if !e.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer e.gate.Release(1)
	return e.consolidate(ctx, trigger)
}

func (e *Engine) consolidate(ctx context.Context, trigger Trigger) (*ConsolidationResult, error) {
	ms := e.store.Snapshot()
	need := MinManual
	if trigger == TriggerAuto {
		need = MinAuto
	}
	if len(ms) < need {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFew, len(ms), need)
	}

	now := e.store.Now().UTC()
	alive := make([]model.Memory, 0, len(ms))
	for _, m := range ms {
		if strength.Of(m, now) > PruneFloor {
			alive = append(alive, m)
		}
	}

	r := &ConsolidationResult{RunID: uuid.NewString(), Trigger: trigger, AutoPruned: len(ms) - len(alive)}
	log := e.log.With(zap.String("run_id", r.RunID), zap.String("pipeline", "consolidate"), zap.String("trigger", string(trigger)))
	e.metrics.RecordRemoved("auto_prune", r.AutoPruned)

	if len(alive) == 0 {
		r.Path = PathLocal
		return r, e.finish(ctx, log, r, alive, now)
	}

	payload, err := consolidationPayload(alive, now)
	if err != nil {
		return nil, err
	}

	res := e.structured(ctx, "consolidate", consolidateInstruction, payload)
	switch res.kind {
	case outcomeServiceFailure:
		log.Warn("consolidation service unavailable, running locally", zap.Error(res.err))
		r.Path = PathLocal
		r.Promoted, r.Attenuated = localPass(alive, now)
		return r, e.finish(ctx, log, r, alive, now)

	case outcomeParseFailure:
		log.Warn("consolidation reply unparsable", zap.Error(res.err))
		return e.abort(ctx, r, alive, fmt.Errorf("%w: %v", ErrUnparsable, res.err))

	case outcomeOK:
	}

	var p plan
	if v := bytes.TrimSpace(res.value); len(v) == 0 || v[0] != '{' {
		log.Warn("consolidation reply is not an object")
		return e.abort(ctx, r, alive, fmt.Errorf("%w: expected an object", ErrSchema))
	}
	if err := json.Unmarshal(res.value, &p); err != nil {
		log.Warn("consolidation plan malformed", zap.Error(err))
		return e.abort(ctx, r, alive, fmt.Errorf("%w: %v", ErrSchema, err))
	}

	r.Path = PathService
	r.Notes = string(p.Notes)
	working := e.apply(p, alive, now, r)
	r.Promoted = store.Promote(working, now)
	return r, e.finish(ctx, log, r, working, now)
}

// apply runs the plan over alive: merges first, then prunes, then
// generalizations. New records go in front.
func (e *Engine) apply(p plan, alive []model.Memory, now time.Time, r *ConsolidationResult) []model.Memory {
	working := alive

	for _, raw := range p.Merge {
		var mg mergeEntry
		if err := json.Unmarshal(raw, &mg); err != nil || !mg.IDs.Set || mg.Merged == nil || mg.Merged.Content.Blank() {
			continue
		}
		working = without(working, mg.IDs)
		m := e.store.New(store.Draft{
			Content:  string(mg.Merged.Content),
			Salience: mg.Merged.Salience.Resolve(model.ExtractDefaults),
			Tags:     mg.Merged.Tags.Tags(nil),
		})
		t := now
		m.Consolidated = true
		m.AccessCount = 1
		m.LastAccessed = &t
		working = append([]model.Memory{m}, working...)
		r.Merged++
	}

	if p.PruneIDs.Set {
		before := len(working)
		working = without(working, p.PruneIDs)
		r.Pruned = before - len(working)
	}

	for _, raw := range p.Generalize {
		var g draft
		if err := json.Unmarshal(raw, &g); err != nil || g.Content.Blank() {
			continue
		}
		m := e.store.New(store.Draft{
			Content:  string(g.Content),
			Salience: g.Salience.Resolve(model.PatternDefaults),
			Tags:     g.Tags.Tags([]string{"pattern"}),
		})
		m.Consolidated = true
		m.Generalized = true
		working = append([]model.Memory{m}, working...)
		r.Generalized++
	}
	return working
}

// localPass promotes eligible memories and attenuates weak unconsolidated
// ones, in place.
func localPass(ms []model.Memory, now time.Time) (promoted, attenuated int) {
	for i := range ms {
		m := &ms[i]
		if strength.Promotable(*m, now) {
			m.Consolidated = true
			promoted++
			continue
		}
		if !m.Consolidated && strength.Of(*m, now) < AttenuateBelow {
			m.Salience.Novelty *= Attenuation
			m.Salience.Predictive *= Attenuation
			attenuated++
		}
	}
	return promoted, attenuated
}

// finish commits a completed run and stamps the consolidation time.
func (e *Engine) finish(ctx context.Context, log *zap.Logger, r *ConsolidationResult, ms []model.Memory, now time.Time) error {
	if err := e.store.ReplaceAll(ctx, ms); err != nil {
		e.metrics.RecordRun("consolidate", "store_failure")
		return fmt.Errorf("commit consolidation: %w", err)
	}
	if err := e.store.MarkConsolidated(ctx, now); err != nil {
		e.metrics.RecordRun("consolidate", "store_failure")
		return fmt.Errorf("stamp consolidation: %w", err)
	}
	r.Total = e.store.Len()

	e.metrics.RecordRun("consolidate", r.Path)
	e.metrics.RecordRemoved("service_prune", r.Pruned)
	e.metrics.SetMemories(r.Total)
	log.Info("consolidation complete",
		zap.String("path", r.Path),
		zap.Int("auto_pruned", r.AutoPruned),
		zap.Int("merged", r.Merged),
		zap.Int("generalized", r.Generalized),
		zap.Int("pruned", r.Pruned),
		zap.Int("promoted", r.Promoted),
		zap.Int("attenuated", r.Attenuated),
		zap.Int("total", r.Total),
		zap.String("notes", r.Notes))
	return nil
}

// abort keeps the auto-prune and reports cause. The consolidation time is
// left alone so the next trigger retries.
func (e *Engine) abort(ctx context.Context, r *ConsolidationResult, alive []model.Memory, cause error) (*ConsolidationResult, error) {
	r.Path = PathAborted
	if err := e.store.ReplaceAll(ctx, alive); err != nil {
		e.metrics.RecordRun("consolidate", "store_failure")
		return r, fmt.Errorf("commit pruned set: %w (after %v)", err, cause)
	}
	r.Total = e.store.Len()
	e.metrics.RecordRun("consolidate", PathAborted)
	e.metrics.SetMemories(r.Total)
	return r, cause
}

func consolidationPayload(ms []model.Memory, now time.Time) (string, error) {
	entries := make([]consolidationEntry, len(ms))
	for i, m := range ms {
		entries[i] = consolidationEntry{
			ID:           m.ID,
			Content:      m.Content,
			Tags:         m.Tags,
			Strength:     fmt.Sprintf("%.2f", strength.Of(m, now)),
			AgeDays:      fmt.Sprintf("%.1f", strength.AgeDays(m.CreatedAt, now)),
			AccessCount:  m.AccessCount,
			Consolidated: m.Consolidated,
		}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode consolidation payload: %w", err)
	}
	return string(b), nil
}

func without(ms []model.Memory, ids model.Labels) []model.Memory {
	out := make([]model.Memory, 0, len(ms))
	for _, m := range ms {
		if !ids.Contains(m.ID) {
			out = append(out, m)
		}
	}
	return out
}
