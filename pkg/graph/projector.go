package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Runner executes one write statement
type Runner interface {
	Exec(ctx context.Context, cypher string, params map[string]any) error
}

// Projector mirrors merges and non-ignored matches as graph edges
type Projector struct {
	runner Runner
	logger ectologger.Logger
	now    func() time.Time
}

// NewProjector creates a projector
func NewProjector(runner Runner, logger ectologger.Logger) *Projector {
	return &Projector{
		runner: runner,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe projects bus events as they happen. Projection failures are logged only.
func (p *Projector) Subscribe(bus *events.Bus) {
	bus.OnMergeCompleted(func(ctx context.Context, result models.MergeResult) {
		if err := p.ProjectMerge(ctx, result); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithField("survivor_id", result.SurvivorID).Error("Failed to project merge")
		}
	})
	bus.OnMatchesFound(func(ctx context.Context, matches []models.EntityMatch) {
		if err := p.ProjectMatches(ctx, matches); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithField("matches", len(matches)).Error("Failed to project matches")
		}
	})
}

// ProjectMerge writes a MERGED_INTO edge from the merged entity to the survivor
func (p *Projector) ProjectMerge(ctx context.Context, result models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectMerge")
	defer span.End()

	if !result.Success {
		return nil
	}

	label := "Entity"
	if result.NewEntity != nil {
		label = sanitizeLabel(string(result.NewEntity.Type))
	}

	cypher := fmt.Sprintf(`
		MERGE (s:%[1]s {id: $survivor_id})
		MERGE (m:%[1]s {id: $merged_id})
		MERGE (m)-[r:MERGED_INTO]->(s)
		SET r.merged_at = $merged_at, r.fields_conflicted = $fields_conflicted
	`, label)

	return p.runner.Exec(ctx, cypher, map[string]any{
		"survivor_id":       result.SurvivorID,
		"merged_id":         result.MergedID,
		"merged_at":         p.now().Format(time.RFC3339),
		"fields_conflicted": result.FieldsConflicted,
	})
}

// ProjectMatches writes one MATCHES edge per entity type batch, skipping ignored matches
func (p *Projector) ProjectMatches(ctx context.Context, matches []models.EntityMatch) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectMatches")
	defer span.End()

	rowsByType := make(map[models.EntityType][]map[string]any)
	var order []models.EntityType
	for _, m := range matches {
		if m.SuggestedAction == models.ActionIgnore {
			continue
		}
		if _, ok := rowsByType[m.EntityType]; !ok {
			order = append(order, m.EntityType)
		}
		rowsByType[m.EntityType] = append(rowsByType[m.EntityType], map[string]any{
			"a":          m.Entity1ID,
			"b":          m.Entity2ID,
			"confidence": m.Confidence,
			"action":     string(m.SuggestedAction),
		})
	}

	for _, t := range order {
		cypher := fmt.Sprintf(`
			UNWIND $rows AS row
			MERGE (a:%[1]s {id: row.a})
			MERGE (b:%[1]s {id: row.b})
			MERGE (a)-[r:MATCHES]-(b)
			SET r.confidence = row.confidence, r.action = row.action
		`, sanitizeLabel(string(t)))

		if err := p.runner.Exec(ctx, cypher, map[string]any{"rows": rowsByType[t]}); err != nil {
			return fmt.Errorf("failed to project %s matches: %w", t, err)
		}
	}

	return nil
}

func sanitizeLabel(label string) string {
	result := ""
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result += string(c)
		}
	}
	if result == "" {
		return "Entity"
	}
	return result
}
