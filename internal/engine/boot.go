package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/engram/internal/model"
	"github.com/rcliao/engram/internal/store"
)

// BootReport describes what the boot-time trigger did.
type BootReport struct {
	Loaded             int                  `json:"loaded"`
	Triggered          bool                 `json:"triggered"`
	Consolidation      *ConsolidationResult `json:"consolidation,omitempty"`
	ConsolidationError string               `json:"consolidation_error,omitempty"`
	Briefing           *BriefingResult      `json:"briefing,omitempty"`
	NextInDays         *float64             `json:"next_in_days,omitempty"`
}

// ShouldAutoConsolidate reports whether a store of count memories with meta
// is due for an automatic consolidation at now.
func ShouldAutoConsolidate(count int, meta model.Meta, now time.Time) bool {
	if count < MinAuto {
		return false
	}
	return meta.LastConsolidation == nil || now.Sub(*meta.LastConsolidation) >= store.AutoConsolidateAfter
}

// Boot runs the automatic consolidation when due, then regenerates the
// briefing if any memories remain. An unusable consolidation reply does not
// stop the briefing; it is reported in ConsolidationError.
func (e *Engine) Boot(ctx context.Context) (*BootReport, error) {
	if !e.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer e.gate.Release(1)

	now := e.store.Now()
	rep := &BootReport{Loaded: e.store.Len()}
	if !ShouldAutoConsolidate(rep.Loaded, e.store.Meta(), now) {
		rep.NextInDays = e.store.Stats(now).NextAutoInDays
		return rep, nil
	}

	rep.Triggered = true
	e.log.Info("auto-consolidation due", zap.Int("memories", rep.Loaded))
	cr, err := e.consolidate(ctx, TriggerAuto)
	rep.Consolidation = cr
	if err != nil {
		if !errors.Is(err, ErrUnparsable) && !errors.Is(err, ErrSchema) {
			return rep, err
		}
		rep.ConsolidationError = err.Error()
	}

	if e.store.Len() > 0 {
		br, err := e.RegenerateBriefing(ctx)
		if err != nil {
			return rep, err
		}
		rep.Briefing = br
	}
	rep.NextInDays = e.store.Stats(e.store.Now()).NextAutoInDays
	return rep, nil
}
