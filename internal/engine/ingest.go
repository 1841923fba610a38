package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rcliao/engram/internal/model"
	"github.com/rcliao/engram/internal/store"
)

// Mode selects the extraction instruction.
type Mode string

const (
	ModeSummary    Mode = "summary"
	ModeTranscript Mode = "transcript"
)

// ContextSize is how many existing memories are sent for disambiguation.
const ContextSize = 50

// ParseMode validates a mode name. Empty means summary.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSummary:
		return ModeSummary, nil
	case ModeTranscript:
		return ModeTranscript, nil
	}
	return "", fmt.Errorf("unknown mode %q (want summary or transcript)", s)
}

func (m Mode) instruction() string {
	if m == ModeTranscript {
		return transcriptInstruction
	}
	return ingestInstruction
}

// IngestResult reports one ingestion run.
type IngestResult struct {
	RunID   string `json:"run_id"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Dropped int    `json:"dropped"` // updates naming an id not in the store
	Skipped int    `json:"skipped"` // elements with no usable content
	Total   int    `json:"total"`
}

type extracted struct {
	Content  model.Text          `json:"content"`
	Salience model.DraftSalience `json:"salience"`
	Tags     model.Labels        `json:"tags"`
	Updates  model.Text          `json:"updates"`
}

type contextEntry struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Ingest extracts memories from text and commits them. New records go in
// front of the existing ones. Nothing is committed unless the whole reply
// was usable.
func (e *Engine) Ingest(ctx context.Context, text string, mode Mode) (*IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if !e.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer e.gate.Release(1)

	r := &IngestResult{RunID: uuid.NewString()}
	log := e.log.With(zap.String("run_id", r.RunID), zap.String("pipeline", "ingest"), zap.String("mode", string(mode)))

	existing := e.store.Snapshot()
	payload, err := ingestPayload(text, existing)
	if err != nil {
		return nil, err
	}

	res := e.structured(ctx, "ingest", mode.instruction(), payload)
	switch res.kind {
	case outcomeServiceFailure:
		e.metrics.RecordRun("ingest", "service_failure")
		log.Warn("extraction failed", zap.Error(res.err))
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, res.err)
	case outcomeParseFailure:
		e.metrics.RecordRun("ingest", "parse_failure")
		log.Warn("extraction reply unparsable", zap.Error(res.err))
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, res.err)
	case outcomeOK:
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(res.value, &elems); err != nil || elems == nil {
		e.metrics.RecordRun("ingest", "parse_failure")
		log.Warn("extraction reply is not an array")
		return nil, fmt.Errorf("%w: expected an array", ErrSchema)
	}

	now := e.store.Now().UTC()
	updated := existing
	var fresh []model.Memory
	for _, raw := range elems {
		var x extracted
		if err := json.Unmarshal(raw, &x); err != nil {
			r.Skipped++
			continue
		}

		if x.Updates != "" {
			i := indexOf(updated, string(x.Updates))
			if i < 0 {
				log.Debug("dropping update for unknown id", zap.String("id", string(x.Updates)))
				r.Dropped++
				continue
			}
			m := &updated[i]
			if !x.Content.Blank() {
				m.Content = model.TruncateContent(string(x.Content))
			}
			m.Salience = x.Salience.Resolve(m.Salience)
			m.Tags = x.Tags.Tags(m.Tags)
			t := now
			m.LastAccessed = &t
			m.AccessCount++
			r.Updated++
			continue
		}

		if x.Content.Blank() {
			r.Skipped++
			continue
		}
		fresh = append(fresh, e.store.New(store.Draft{
			Content:  string(x.Content),
			Salience: x.Salience.Resolve(model.ExtractDefaults),
			Tags:     x.Tags.Tags(nil),
		}))
	}

	final := append(fresh, updated...)
	if err := e.store.ReplaceAll(ctx, final); err != nil {
		e.metrics.RecordRun("ingest", "store_failure")
		return nil, fmt.Errorf("commit ingestion: %w", err)
	}
	r.Created = len(fresh)
	r.Total = e.store.Len()

	e.metrics.RecordRun("ingest", "ok")
	e.metrics.SetMemories(r.Total)
	log.Info("ingestion complete",
		zap.Int("created", r.Created),
		zap.Int("updated", r.Updated),
		zap.Int("dropped", r.Dropped),
		zap.Int("skipped", r.Skipped),
		zap.Int("total", r.Total))
	return r, nil
}

func ingestPayload(text string, existing []model.Memory) (string, error) {
	if len(existing) == 0 {
		return text, nil
	}
	n := min(len(existing), ContextSize)
	entries := make([]contextEntry, n)
	for i, m := range existing[:n] {
		entries[i] = contextEntry{ID: m.ID, Content: m.Content, Tags: m.Tags}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	return text + "\n\nEXISTING MEMORIES:\n" + string(b), nil
}

func indexOf(ms []model.Memory, id string) int {
	for i := range ms {
		if ms[i].ID == id {
			return i
		}
	}
	return -1
}
