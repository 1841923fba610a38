package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/engram/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create kv: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	s, err := Open(context.Background(), kv, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestKVGetSet(t *testing.T) {
	ctx := context.Background()
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Errorf("expected v2, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestDBPathCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	kv, err := NewSQLiteKV(dbPath)
	if err != nil {
		t.Fatalf("create kv: %v", err)
	}
	kv.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func TestReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	clock := WithClock(func() time.Time { return testNow })

	kv, err := NewSQLiteKV(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, kv, clock)
	if err != nil {
		t.Fatal(err)
	}
	m, _ := s.Create(ctx, Draft{Content: "likes tea", Salience: model.ExtractDefaults, Tags: []string{"preference"}})
	s.Reinforce(ctx, m.ID)
	s.MarkConsolidated(ctx, testNow)
	s.SetBriefing(ctx, "## Active Context\n- tea")
	kv.Close()

	kv, err = NewSQLiteKV(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()
	s2, err := Open(ctx, kv, clock)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s2.Get(m.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Content != "likes tea" || got.AccessCount != 1 {
		t.Errorf("unexpected memory after reopen: %+v", got)
	}
	if meta := s2.Meta(); meta.LastConsolidation == nil || !meta.LastConsolidation.Equal(testNow) {
		t.Errorf("expected last consolidation %v, got %v", testNow, meta.LastConsolidation)
	}
	if s2.Briefing() != "## Active Context\n- tea" {
		t.Errorf("unexpected briefing %q", s2.Briefing())
	}
}

func TestOpenInitializesMeta(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()
	s, err := Open(ctx, kv, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatal(err)
	}
	if meta := s.Meta(); meta.LastConsolidation != nil || !meta.Created.Equal(testNow) {
		t.Errorf("unexpected initial meta: %+v", meta)
	}
	if _, ok, _ := kv.Get(ctx, KeyMeta); !ok {
		t.Error("expected meta to be persisted on first open")
	}
}

func TestOpenRejectsCorruptCollection(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKV()
	kv.Set(ctx, KeyMemories, "{not json")
	if _, err := Open(ctx, kv); err == nil {
		t.Error("expected error for corrupt memories blob")
	}
}
