package store

import (
	"context"
	"testing"
	"time"

	"github.com/rcliao/engram/internal/model"
)

func seed(t *testing.T, s *MemoryStore) {
	t.Helper()
	day := 24 * time.Hour
	err := s.ReplaceAll(context.Background(), []model.Memory{
		{ID: "old", Content: "Prefers Go for backend work", Tags: []string{"technical"}, AccessCount: 5,
			Salience: model.Salience{Novelty: 0.2, Relevance: 0.2, Emotional: 0.2, Predictive: 0.2}, CreatedAt: testNow.Add(-10 * day)},
		{ID: "new", Content: "Starting a pottery class", Tags: []string{"personal", "goal"},
			Salience: model.Salience{Novelty: 0.9, Relevance: 0.9, Emotional: 0.9, Predictive: 0.9}, CreatedAt: testNow},
		{ID: "mid", Content: "Uses vim", Tags: []string{"Technical"}, AccessCount: 1,
			Salience: model.Salience{Novelty: 0.1, Relevance: 0.1, Emotional: 0.1, Predictive: 0.1}, CreatedAt: testNow.Add(-2 * day)},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func ids(rs []Scored) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestListSorts(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	tests := []struct {
		sort string
		want []string
	}{
		{SortStrength, []string{"new", "old", "mid"}},
		{"", []string{"new", "old", "mid"}},
		{SortRecent, []string{"new", "mid", "old"}},
		{SortAccess, []string{"old", "mid", "new"}},
	}
	for _, tt := range tests {
		got := ids(s.List(ListParams{Sort: tt.sort}, testNow))
		if len(got) != len(tt.want) {
			t.Fatalf("sort %q: expected %v, got %v", tt.sort, tt.want, got)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("sort %q: expected %v, got %v", tt.sort, tt.want, got)
				break
			}
		}
	}
}

func TestListQueryAndLimit(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	if got := s.List(ListParams{Query: "technical"}, testNow); len(got) != 2 {
		t.Errorf("expected 2 tag matches, got %v", ids(got))
	}
	if got := s.List(ListParams{Query: "POTTERY"}, testNow); len(got) != 1 || got[0].ID != "new" {
		t.Errorf("expected case-insensitive content match, got %v", ids(got))
	}
	if got := s.List(ListParams{Query: "javascript"}, testNow); len(got) != 0 {
		t.Errorf("expected no matches, got %v", ids(got))
	}
	if got := s.List(ListParams{Limit: 1}, testNow); len(got) != 1 {
		t.Errorf("expected limit 1, got %d", len(got))
	}
}

func TestListReportsTier(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	got := s.List(ListParams{}, testNow)
	if got[0].Tier != "Strong" {
		t.Errorf("expected Strong tier for strongest memory, got %s (%.2f)", got[0].Tier, got[0].Strength)
	}
}
