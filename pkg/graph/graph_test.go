package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func match(a, b string, t models.EntityType, confidence float64, action models.SuggestedAction) models.EntityMatch {
	return models.EntityMatch{Entity1ID: a, Entity2ID: b, EntityType: t, Confidence: confidence, SuggestedAction: action}
}

func inferred(matches []models.EntityMatch) []models.EntityMatch {
	var out []models.EntityMatch
	for _, m := range matches {
		if len(m.MatchReasons) == 1 && m.MatchReasons[0].Type == models.MatchReasonTransitive {
			out = append(out, m)
		}
	}
	return out
}

func TestResolveTransitive_Chain(t *testing.T) {
	r := NewClosureResolver(testLogger())

	in := []models.EntityMatch{
		match("A", "B", models.EntityTypePerson, 0.9, models.ActionMerge),
		match("B", "C", models.EntityTypePerson, 0.9, models.ActionMerge),
	}
	out := r.ResolveTransitive(context.Background(), in)

	require.Len(t, out, 3)
	added := inferred(out)
	require.Len(t, added, 1)
	assert.Equal(t, "A", added[0].Entity1ID)
	assert.Equal(t, "C", added[0].Entity2ID)
	assert.Equal(t, TransitiveConfidence, added[0].Confidence)
	assert.Equal(t, models.ActionLink, added[0].SuggestedAction)
	assert.Equal(t, models.EntityTypePerson, added[0].EntityType)
}

func TestResolveTransitive_Cases(t *testing.T) {
	tests := []struct {
		name      string
		matches   []models.EntityMatch
		wantAdded int
	}{
		{"empty", nil, 0},
		{"single pair", []models.EntityMatch{match("A", "B", models.EntityTypePerson, 0.9, models.ActionMerge)}, 0},
		{"two disjoint pairs", []models.EntityMatch{
			match("A", "B", models.EntityTypePerson, 0.9, models.ActionMerge),
			match("C", "D", models.EntityTypePerson, 0.9, models.ActionMerge),
		}, 0},
		{"star of four", []models.EntityMatch{
			match("hub", "a", models.EntityTypeOrganization, 0.95, models.ActionMerge),
			match("hub", "b", models.EntityTypeOrganization, 0.95, models.ActionMerge),
			match("hub", "c", models.EntityTypeOrganization, 0.95, models.ActionMerge),
		}, 3},
		{"complete triangle", []models.EntityMatch{
			match("A", "B", models.EntityTypePerson, 0.9, models.ActionMerge),
			match("B", "C", models.EntityTypePerson, 0.9, models.ActionMerge),
			match("C", "A", models.EntityTypePerson, 0.9, models.ActionMerge),
		}, 0},
		{"mixed types are skipped", []models.EntityMatch{
			match("A", "B", models.EntityTypePerson, 0.9, models.ActionMerge),
			match("B", "C", models.EntityTypeGeneric, 0.9, models.ActionMerge),
		}, 0},
	}

	r := NewClosureResolver(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.ResolveTransitive(context.Background(), tt.matches)
			assert.Len(t, inferred(out), tt.wantAdded)
			assert.Len(t, out, len(tt.matches)+tt.wantAdded)
			for _, m := range inferred(out) {
				assert.NotEqual(t, models.ActionMerge, m.SuggestedAction)
			}
		})
	}
}

func TestResolveTransitive_Deterministic(t *testing.T) {
	r := NewClosureResolver(testLogger())
	in := []models.EntityMatch{
		match("d", "c", models.EntityTypePerson, 0.9, models.ActionMerge),
		match("c", "b", models.EntityTypePerson, 0.9, models.ActionMerge),
		match("b", "a", models.EntityTypePerson, 0.9, models.ActionMerge),
	}

	first := r.ResolveTransitive(context.Background(), append([]models.EntityMatch(nil), in...))
	second := r.ResolveTransitive(context.Background(), append([]models.EntityMatch(nil), in...))
	assert.Equal(t, first, second)

	var pairs []string
	for _, m := range inferred(first) {
		pairs = append(pairs, m.PairKey())
	}
	assert.Equal(t, []string{"a|c", "a|d", "b|d"}, pairs)
}

type call struct {
	cypher string
	params map[string]any
}

type fakeRunner struct {
	calls []call
	err   error
}

func (f *fakeRunner) Exec(_ context.Context, cypher string, params map[string]any) error {
	f.calls = append(f.calls, call{cypher, params})
	return f.err
}

func TestProjector_ProjectMerge(t *testing.T) {
	runner := &fakeRunner{}
	p := NewProjector(runner, testLogger())

	require.NoError(t, p.ProjectMerge(context.Background(), models.MergeResult{Success: false}))
	assert.Empty(t, runner.calls)

	err := p.ProjectMerge(context.Background(), models.MergeResult{
		Success:    true,
		SurvivorID: "s",
		MergedID:   "m",
		NewEntity:  models.NewPerson("s", "Ada", models.PersonFields{}),
	})
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0].cypher, "MERGED_INTO")
	assert.Contains(t, runner.calls[0].cypher, ":Person")
	assert.Equal(t, "s", runner.calls[0].params["survivor_id"])
	assert.Equal(t, "m", runner.calls[0].params["merged_id"])
}

func TestProjector_ProjectMatches(t *testing.T) {
	runner := &fakeRunner{}
	p := NewProjector(runner, testLogger())

	err := p.ProjectMatches(context.Background(), []models.EntityMatch{
		match("a", "b", models.EntityTypePerson, 0.95, models.ActionMerge),
		match("c", "d", models.EntityTypePerson, 0.5, models.ActionIgnore),
		match("x", "y", models.EntityTypeOrganization, 0.8, models.ActionLink),
	})
	require.NoError(t, err)
	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[0].cypher, ":Person")
	assert.Len(t, runner.calls[0].params["rows"], 1)
	assert.Contains(t, runner.calls[1].cypher, ":Organization")
}

func TestProjector_Subscribe(t *testing.T) {
	runner := &fakeRunner{err: errors.New("graph down")}
	p := NewProjector(runner, testLogger())
	bus := events.NewBus(testLogger())
	p.Subscribe(bus)

	assert.NotPanics(t, func() {
		bus.EmitMergeCompleted(context.Background(), models.MergeResult{Success: true, SurvivorID: "s", MergedID: "m"})
	})
	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0].cypher, ":Entity")
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "Person", sanitizeLabel("Person"))
	assert.Equal(t, "BadLabel", sanitizeLabel("Bad`Label"))
	assert.Equal(t, "Entity", sanitizeLabel("!!"))
}
