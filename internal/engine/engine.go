// Package engine runs the memory pipelines: ingestion, consolidation,
// briefing generation and the boot-time auto trigger.
//
// At most one writing pipeline runs against a store at a time. A second
// overlapping run fails fast with ErrBusy rather than queueing. Reinforce
// and remove go straight to the store and may interleave with a run; the
// run's commit wins.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rcliao/engram/internal/llm"
	"github.com/rcliao/engram/internal/metrics"
	"github.com/rcliao/engram/internal/model"
	"github.com/rcliao/engram/internal/repair"
	"github.com/rcliao/engram/internal/store"
)

var (
	ErrServiceUnavailable = errors.New("language model unavailable")
	ErrUnparsable         = errors.New("unparsable service response")
	ErrSchema             = errors.New("service response has the wrong shape")
	ErrBusy               = errors.New("another pipeline run is in progress")
	ErrTooFew             = errors.New("not enough memories")
	ErrEmptyInput         = errors.New("empty input")
)

// DefaultMaxTokens bounds every service reply.
const DefaultMaxTokens = 4000

// Engine owns the pipelines over one store.
type Engine struct {
	store     *store.MemoryStore
	llm       llm.Completer
	log       *zap.Logger
	metrics   *metrics.Metrics
	maxTokens int
	gate      *semaphore.Weighted
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the collectors runs are recorded on.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxTokens sets the reply size bound passed to the service.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// New creates an engine over st. A nil completer behaves as llm.Unavailable.
func New(st *store.MemoryStore, c llm.Completer, opts ...Option) *Engine {
	if c == nil {
		c = llm.Unavailable{}
	}
	e := &Engine{
		store:     st,
		llm:       c,
		log:       zap.NewNop(),
		maxTokens: DefaultMaxTokens,
		gate:      semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics.SetMemories(st.Len())
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() *store.MemoryStore { return e.store }

// LLMName names the configured language model backend.
func (e *Engine) LLMName() string { return e.llm.Name() }

// Import replaces the whole state with b.
func (e *Engine) Import(ctx context.Context, b *model.Backup) (int, error) {
	if !e.gate.TryAcquire(1) {
		return 0, ErrBusy
	}
	defer e.gate.Release(1)

	n, err := e.store.Import(ctx, b)
	if err != nil {
		return 0, err
	}
	e.metrics.SetMemories(n)
	e.log.Info("import complete", zap.Int("memories", n))
	return n, nil
}

// Reset wipes the whole state.
func (e *Engine) Reset(ctx context.Context) error {
	if !e.gate.TryAcquire(1) {
		return ErrBusy
	}
	defer e.gate.Release(1)

	if err := e.store.Reset(ctx); err != nil {
		return err
	}
	e.metrics.SetMemories(0)
	e.log.Info("store reset")
	return nil
}

// outcome tags a structured service call.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeParseFailure
	outcomeServiceFailure
)

type result struct {
	kind  outcome
	value json.RawMessage
	err   error
}

// complete makes one service call and records its latency.
func (e *Engine) complete(ctx context.Context, pipeline, system, user string) (string, error) {
	start := time.Now()
	text, err := e.llm.Complete(ctx, system, user, e.maxTokens)
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	e.metrics.RecordCall(pipeline, time.Since(start), err == nil)
	return text, err
}

// structured makes one service call and repairs the reply into JSON.
func (e *Engine) structured(ctx context.Context, pipeline, system, user string) result {
	text, err := e.complete(ctx, pipeline, system, user)
	if err != nil {
		return result{kind: outcomeServiceFailure, err: err}
	}
	v, err := repair.Parse(text)
	if err != nil {
		return result{kind: outcomeParseFailure, err: err}
	}
	return result{kind: outcomeOK, value: v}
}
