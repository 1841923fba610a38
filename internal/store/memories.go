package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/engram/internal/model"
	"github.com/rcliao/engram/internal/strength"
)

// Draft holds the caller-supplied fields of a new memory.
type Draft struct {
	Content  string
	Salience model.Salience
	Tags     []string
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock sets the time source used for timestamps and ids.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// MemoryStore is the in-memory memory collection, written through to a KV
// on every mutation. Each mutation persists first and swaps in the new
// state only on success, so a failed write leaves the last committed state.
//
// Pipelines read a Snapshot, edit it, and commit with ReplaceAll. ReplaceAll
// is last-writer-wins: a Reinforce that lands between a pipeline's Snapshot
// and its ReplaceAll is lost.
type MemoryStore struct {
	kv  KV
	now func() time.Time

	mu       sync.Mutex
	entropy  io.Reader
	memories []model.Memory
	meta     model.Meta
	briefing string
}

// Open loads the collection, meta record and briefing from kv. The meta
// record is created and persisted if absent.
func Open(ctx context.Context, kv KV, opts ...Option) (*MemoryStore, error) {
	s := &MemoryStore{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.entropy = ulid.Monotonic(rand.New(rand.NewSource(s.now().UnixNano())), 0)

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, KeyMemories)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}
	if ok && strings.TrimSpace(raw) != "" {
		var ms []model.Memory
		if err := json.Unmarshal([]byte(raw), &ms); err != nil {
			return fmt.Errorf("decode memories: %w", err)
		}
		s.memories = dedupe(ms)
	}

	raw, ok, err = s.kv.Get(ctx, KeyMeta)
	if err != nil {
		return fmt.Errorf("load meta: %w", err)
	}
	if ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &s.meta); err != nil {
			return fmt.Errorf("decode meta: %w", err)
		}
	} else {
		meta := model.Meta{Created: s.now().UTC()}
		if err := s.putJSON(ctx, KeyMeta, meta); err != nil {
			return err
		}
		s.meta = meta
	}

	raw, ok, err = s.kv.Get(ctx, KeyBriefing)
	if err != nil {
		return fmt.Errorf("load briefing: %w", err)
	}
	if ok && raw != "" {
		// Stored as a JSON string; older raw-text values are taken verbatim.
		if err := json.Unmarshal([]byte(raw), &s.briefing); err != nil {
			s.briefing = raw
		}
	}
	return nil
}

// Now returns the store's current time.
func (s *MemoryStore) Now() time.Time { return s.now() }

// Len returns the number of memories.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memories)
}

// Snapshot returns a copy of the collection in storage order.
func (s *MemoryStore) Snapshot() []model.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.memories)
}

// Get returns the memory with the given id.
func (s *MemoryStore) Get(id string) (model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.memories, id)
	if i < 0 {
		return model.Memory{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(s.memories[i]), nil
}

// New builds a memory from d with a fresh id. It does not add it to the
// collection.
func (s *MemoryStore) New(d Draft) model.Memory {
	now := s.now().UTC()
	s.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	s.mu.Unlock()

	return model.Memory{
		ID:        id,
		Content:   model.TruncateContent(d.Content),
		Salience:  d.Salience.Clamp(model.ExtractDefaults),
		Tags:      model.TruncateTags(d.Tags),
		CreatedAt: now,
	}
}

// Create builds a memory from d and prepends it to the collection.
func (s *MemoryStore) Create(ctx context.Context, d Draft) (model.Memory, error) {
	m := s.New(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append([]model.Memory{m}, s.memories...)
	if err := s.commit(ctx, next); err != nil {
		return model.Memory{}, err
	}
	return clone(m), nil
}

// Reinforce records an access to the memory with the given id.
func (s *MemoryStore) Reinforce(ctx context.Context, id string) (model.Memory, error) {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.memories, id)
	if i < 0 {
		return model.Memory{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := cloneAll(s.memories)
	next[i].AccessCount++
	next[i].LastAccessed = &now
	if err := s.commit(ctx, next); err != nil {
		return model.Memory{}, err
	}
	return clone(next[i]), nil
}

// Remove deletes the memory with the given id.
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.memories, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := make([]model.Memory, 0, len(s.memories)-1)
	next = append(next, s.memories[:i]...)
	next = append(next, s.memories[i+1:]...)
	return s.commit(ctx, next)
}

// ReplaceAll commits ms as the whole collection. Records are normalized and
// a repeated id keeps its first occurrence.
func (s *MemoryStore) ReplaceAll(ctx context.Context, ms []model.Memory) error {
	next := make([]model.Memory, len(ms))
	for i, m := range ms {
		next[i] = clone(m).Normalize()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, dedupe(next))
}

// PromoteEligible marks every promotable memory consolidated and returns how
// many changed.
func (s *MemoryStore) PromoteEligible(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneAll(s.memories)
	n := Promote(next, now)
	if n == 0 {
		return 0, nil
	}
	if err := s.commit(ctx, next); err != nil {
		return 0, err
	}
	return n, nil
}

// Promote marks every promotable memory in ms consolidated, in place.
func Promote(ms []model.Memory, now time.Time) int {
	n := 0
	for i := range ms {
		if strength.Promotable(ms[i], now) {
			ms[i].Consolidated = true
			n++
		}
	}
	return n
}

// Meta returns the consolidation meta record.
func (s *MemoryStore) Meta() model.Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta
	if m.LastConsolidation != nil {
		t := *m.LastConsolidation
		m.LastConsolidation = &t
	}
	return m
}

// MarkConsolidated records a finished consolidation run at t.
func (s *MemoryStore) MarkConsolidated(ctx context.Context, t time.Time) error {
	t = t.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.meta
	meta.LastConsolidation = &t
	if err := s.putJSON(ctx, KeyMeta, meta); err != nil {
		return err
	}
	s.meta = meta
	return nil
}

// Briefing returns the current briefing text.
func (s *MemoryStore) Briefing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.briefing
}

// SetBriefing replaces the briefing.
func (s *MemoryStore) SetBriefing(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putJSON(ctx, KeyBriefing, text); err != nil {
		return err
	}
	s.briefing = text
	return nil
}

// Reset wipes every memory, clears the briefing and starts a fresh meta record.
func (s *MemoryStore) Reset(ctx context.Context) error {
	meta := model.Meta{Created: s.now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(ctx, []model.Memory{}); err != nil {
		return err
	}
	if err := s.putJSON(ctx, KeyBriefing, ""); err != nil {
		return err
	}
	s.briefing = ""
	if err := s.putJSON(ctx, KeyMeta, meta); err != nil {
		return err
	}
	s.meta = meta
	return nil
}

// commit persists next and swaps it in. Callers hold s.mu.
func (s *MemoryStore) commit(ctx context.Context, next []model.Memory) error {
	if next == nil {
		next = []model.Memory{}
	}
	if err := s.putJSON(ctx, KeyMemories, next); err != nil {
		return err
	}
	s.memories = next
	return nil
}

func (s *MemoryStore) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func indexOf(ms []model.Memory, id string) int {
	for i := range ms {
		if ms[i].ID == id {
			return i
		}
	}
	return -1
}

func dedupe(ms []model.Memory) []model.Memory {
	seen := make(map[string]bool, len(ms))
	out := ms[:0]
	for _, m := range ms {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

func clone(m model.Memory) model.Memory {
	if m.Tags != nil {
		tags := make([]string, len(m.Tags))
		copy(tags, m.Tags)
		m.Tags = tags
	}
	if m.LastAccessed != nil {
		t := *m.LastAccessed
		m.LastAccessed = &t
	}
	return m
}

func cloneAll(ms []model.Memory) []model.Memory {
	out := make([]model.Memory, len(ms))
	for i, m := range ms {
		out[i] = clone(m)
	}
	return out
}
