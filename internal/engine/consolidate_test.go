package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/engram/internal/model"
)

func TestConsolidateMergeAndPrune(t *testing.T) {
	e, fake, _ := newTestEngine(t, ok(`{"merge":[{"ids":["a","b"],"merged":{"content":"X","salience":{"novelty":0.9,"relevance":0.8,"emotional":0.2,"predictive":0.7},"tags":["merged"]}}],"prune_ids":["c"],"generalize":[],"notes":"merged a and b"}`))
	seed(t, e, mem("a", 0.5, 0, 0), mem("b", 0.5, 0, 0), mem("c", 0.5, 0, 0), mem("d", 0.5, 0, 0))

	r, err := e.Consolidate(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, PathService, r.Path)
	assert.Equal(t, 1, r.Merged)
	assert.Equal(t, 1, r.Pruned)
	assert.Equal(t, 0, r.Generalized)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, "merged a and b", r.Notes)

	ms := e.Store().Snapshot()
	require.Len(t, ms, 2)
	merged := ms[0]
	assert.Equal(t, "X", merged.Content)
	assert.Equal(t, model.Salience{Novelty: 0.9, Relevance: 0.8, Emotional: 0.2, Predictive: 0.7}, merged.Salience)
	assert.Equal(t, []string{"merged"}, merged.Tags)
	assert.True(t, merged.Consolidated)
	assert.False(t, merged.Generalized)
	assert.Equal(t, 1, merged.AccessCount)
	require.NotNil(t, merged.LastAccessed)
	assert.Equal(t, "d", ms[1].ID)

	meta := e.Store().Meta()
	require.NotNil(t, meta.LastConsolidation)
	assert.Equal(t, t0, *meta.LastConsolidation)

	var payload []map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.lastCall().user), &payload))
	require.Len(t, payload, 4)
	assert.Equal(t, "0.50", payload[0]["strength"])
	assert.Equal(t, "0.0", payload[0]["age_days"])
	assert.Equal(t, consolidateInstruction, fake.lastCall().system)
}

func TestConsolidatePruneAfterMerge(t *testing.T) {
	e, _, _ := newTestEngine(t, ok(`{"merge":[{"ids":["a","b"],"merged":{"content":"ab"}}],"prune_ids":["a","c","nope"]}`))
	seed(t, e, mem("a", 0.5, 0, 0), mem("b", 0.5, 0, 0), mem("c", 0.5, 0, 0), mem("d", 0.5, 0, 0))

	r, err := e.Consolidate(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pruned)
	ms := e.Store().Snapshot()
	assert.Equal(t, "ab", ms[0].Content)
	assert.Equal(t, model.ExtractDefaults, ms[0].Salience)
	assert.Equal(t, []string{"d"}, ids(ms[1:]))
}

func TestConsolidateGeneralize(t *testing.T) {
	e, _, _ := newTestEngine(t, ok(`{"generalize":[{"content":"likes warm drinks"},{"content":"","tags":["x"]},{"content":"prefers mornings","salience":{"novelty":0.1},"tags":["habit"]}]}`))
	seed(t, e, mem("a", 0.5, 0, 0), mem("b", 0.5, 0, 0))

	r, err := e.Consolidate(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Generalized)

	ms := e.Store().Snapshot()
	require.Len(t, ms, 4)

	mornings, drinks := ms[0], ms[1]
	assert.Equal(t, "prefers mornings", mornings.Content)
	assert.Equal(t, model.Salience{Novelty: 0.1, Relevance: 0.7, Emotional: 0.3, Predictive: 0.5}, mornings.Salience)
	assert.Equal(t, []string{"habit"}, mornings.Tags)

	assert.Equal(t, "likes warm drinks", drinks.Content)
	assert.Equal(t, model.PatternDefaults, drinks.Salience)
	assert.Equal(t, []string{"pattern"}, drinks.Tags)

	for _, m := range ms[:2] {
		assert.True(t, m.Consolidated)
		assert.True(t, m.Generalized)
		assert.Equal(t, 0, m.AccessCount)
		assert.Nil(t, m.LastAccessed)
	}
}

func TestConsolidateMergeEdgeCases(t *testing.T) {
	e, _, _ := newTestEngine(t, ok(`{"merge":[
		{"ids":["a"],"merged":{"content":""}},
		{"ids":[],"merged":{"content":"fresh"}},
		{"merged":{"content":"no ids"}},
		{"ids":["b"]},
		"garbage"
	]}`))
	seed(t, e, mem("a", 0.5, 0, 0), mem("b", 0.5, 0, 0))

	r, err := e.Consolidate(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Merged)

	ms := e.Store().Snapshot()
	require.Len(t, ms, 3)
	assert.Equal(t, "fresh", ms[0].Content)
	assert.Equal(t, []string{"a", "b"}, ids(ms[1:]))
}

func TestConsolidatePromotesAfterPlan(t *testing.T) {
	e, _, _ := newTestEngine(t, ok(`{"notes":"nothing to do"}`))
	seed(t, e, mem("ready", 0.5, 2, 0), mem("new", 0.5, 0, 0))

	r, err := e.Consolidate(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Promoted)

	got, _ := e.Store().Get("ready")
	assert.True(t, got.Consolidated)
	got, _ = e.Store().Get("new")
	assert.False(t, got.Consolidated)
}

func TestConsolidateLocalFallback(t *testing.T) {
	e, _, _ := newTestEngine(t, down())
	seed(t, e,
		mem("ready", 0.5, 2, 0),
		mem("fading", 0.2, 0, 0),
		mem("steady", 0.4, 0, 0),
		mem("dead", 0, 0, 10),
	)

	r, err := e.Consolidate(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, PathLocal, r.Path)
	assert.Equal(t, 1, r.AutoPruned)
	assert.Equal(t, 1, r.Promoted)
	assert.Equal(t, 1, r.Attenuated)
	assert.Equal(t, 3, r.Total)

	st := e.Store()
	ready, _ := st.Get("ready")
	assert.True(t, ready.Consolidated)

	fading, _ := st.Get("fading")
	assert.InDelta(t, 0.14, fading.Salience.Novelty, 1e-9)
	assert.InDelta(t, 0.14, fading.Salience.Predictive, 1e-9)
	assert.Equal(t, 0.2, fading.Salience.Relevance)
	assert.Equal(t, 0.2, fading.Salience.Emotional)
	assert.False(t, fading.Consolidated)

	steady, _ := st.Get("steady")
	assert.Equal(t, mem("steady", 0.4, 0, 0).Salience, steady.Salience)

	_, err = st.Get("dead")
	assert.Error(t, err)
	assert.NotNil(t, st.Meta().LastConsolidation)
}

func TestConsolidateUnusableReplyKeepsAutoPrune(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  error
	}{
		{"prose", "I could not process these memories.", ErrUnparsable},
		{"array", `[{"ids":["a"]}]`, ErrSchema},
		{"wrong field type", `{"merge":"a,b"}`, ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEngine(t, ok(tt.reply))
			seed(t, e, mem("a", 0.5, 0, 0), mem("b", 0.5, 0, 0), mem("dead", 0, 0, 10))

			r, err := e.Consolidate(context.Background(), TriggerManual)
			assert.ErrorIs(t, err, tt.want)
			require.NotNil(t, r)
			assert.Equal(t, PathAborted, r.Path)
			assert.Equal(t, 1, r.AutoPruned)
			assert.Equal(t, []string{"a", "b"}, ids(e.Store().Snapshot()))
			assert.Nil(t, e.Store().Meta().LastConsolidation)
		})
	}
}

func TestConsolidateEmptiesDeadStore(t *testing.T) {
	replies := map[string]reply{
		"service down": down(),
		"unparsable":   ok("nope"),
		"valid plan":   ok(`{"generalize":[{"content":"should not appear"}]}`),
	}
	for name, rep := range replies {
		t.Run(name, func(t *testing.T) {
			e, _, _ := newTestEngine(t, rep)
			seed(t, e, mem("a", 0, 0, 5), mem("b", 0.02, 0, 0), mem("c", 0.1, 0, 30))

			r, err := e.Consolidate(context.Background(), TriggerManual)
			require.NoError(t, err)
			assert.Equal(t, 3, r.AutoPruned)
			assert.Equal(t, 0, e.Store().Len())
		})
	}
}

func TestConsolidateNeedsEnoughMemories(t *testing.T) {
	e, fake, _ := newTestEngine(t)
	seed(t, e, mem("a", 0.5, 0, 0))
	_, err := e.Consolidate(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ErrTooFew)

	seed(t, e, mem("a", 0.5, 0, 0), mem("b", 0.5, 0, 0))
	_, err = e.Consolidate(context.Background(), TriggerAuto)
	assert.ErrorIs(t, err, ErrTooFew)
	assert.Equal(t, 0, fake.callCount())
}
