package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// TransitiveConfidence is assigned to every inferred match
const TransitiveConfidence = 0.7

// ClosureResolver infers matches between members of a connected match component
type ClosureResolver struct {
	logger ectologger.Logger
}

// NewClosureResolver creates a closure resolver
func NewClosureResolver(logger ectologger.Logger) *ClosureResolver {
	return &ClosureResolver{logger: logger}
}

// ResolveTransitive returns matches extended with one inferred link for every pair in a
// component of more than two entities that lacks a direct match. Inferred matches carry
// the component's entity type; components spanning several types are left alone.
func (r *ClosureResolver) ResolveTransitive(ctx context.Context, matches []models.EntityMatch) []models.EntityMatch {
	ctx, span := tracing.StartSpan(ctx, "graph.ClosureResolver.ResolveTransitive")
	defer span.End()

	adjacency := make(map[string]map[string]bool)
	direct := make(map[string]bool, len(matches))
	edgeTypes := make(map[string]map[models.EntityType]bool)

	link := func(a, b string) {
		if adjacency[a] == nil {
			adjacency[a] = make(map[string]bool)
		}
		adjacency[a][b] = true
	}

	for _, m := range matches {
		link(m.Entity1ID, m.Entity2ID)
		link(m.Entity2ID, m.Entity1ID)
		direct[m.PairKey()] = true
		for _, id := range []string{m.Entity1ID, m.Entity2ID} {
			if edgeTypes[id] == nil {
				edgeTypes[id] = make(map[models.EntityType]bool)
			}
			edgeTypes[id][m.EntityType] = true
		}
	}

	nodes := make([]string, 0, len(adjacency))
	for id := range adjacency {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	out := matches
	visited := make(map[string]bool, len(nodes))
	for _, start := range nodes {
		if visited[start] {
			continue
		}

		component := bfs(start, adjacency, visited)
		if len(component) <= 2 {
			continue
		}

		types := make(map[models.EntityType]bool)
		for _, id := range component {
			for t := range edgeTypes[id] {
				types[t] = true
			}
		}
		if len(types) != 1 {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"component_size": len(component),
				"entity_types":   len(types),
			}).Warn("Skipping transitive inference for mixed-type component")
			continue
		}
		var entityType models.EntityType
		for t := range types {
			entityType = t
		}

		sort.Strings(component)
		inferred := 0
		for i := 0; i < len(component); i++ {
			for j := i + 1; j < len(component); j++ {
				a, b := component[i], component[j]
				if direct[models.PairKey(a, b)] {
					continue
				}
				out = append(out, models.EntityMatch{
					Entity1ID:  a,
					Entity2ID:  b,
					EntityType: entityType,
					Confidence: TransitiveConfidence,
					MatchReasons: []models.MatchReason{{
						Field:   "transitive",
						Type:    models.MatchReasonTransitive,
						Score:   TransitiveConfidence,
						Details: fmt.Sprintf("connected through a component of %d entities", len(component)),
					}},
					SuggestedAction: models.ActionLink,
				})
				inferred++
			}
		}

		r.logger.WithContext(ctx).WithFields(map[string]any{
			"component_size":   len(component),
			"inferred_matches": inferred,
			"entity_type":      entityType,
		}).Debug("Inferred transitive matches")
	}

	return out
}

// bfs visits every node reachable from start in sorted neighbor order
func bfs(start string, adjacency map[string]map[string]bool, visited map[string]bool) []string {
	queue := []string{start}
	visited[start] = true
	var component []string

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		component = append(component, node)

		neighbors := make([]string, 0, len(adjacency[node]))
		for n := range adjacency[node] {
			neighbors = append(neighbors, n)
		}
		sort.Strings(neighbors)

		for _, n := range neighbors {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}

	return component
}
