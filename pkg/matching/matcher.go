// Package matching scores candidate entity pairs
package matching

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

const (
	// DefaultFieldWeight applies to any field missing from the weight map
	DefaultFieldWeight = 0.1

	personNameThreshold  = 0.7
	nameTokenThreshold   = 0.8
	companyThreshold     = 0.8
	orgNameThreshold     = 0.7
	genericNameThreshold = 0.8
)

// Config holds the scoring thresholds and field weights
type Config struct {
	MinConfidence         float64
	AutoMergeThreshold    float64
	ManualReviewThreshold float64
	FieldWeights          map[string]float64
}

// DefaultConfig returns default matcher configuration
func DefaultConfig() Config {
	return Config{
		MinConfidence:         0.5,
		AutoMergeThreshold:    0.9,
		ManualReviewThreshold: 0.7,
		FieldWeights:          models.DefaultFieldWeights(),
	}
}

// Matcher compares two entities of the same type
type Matcher struct {
	scorer *Scorer
	config Config
}

// NewMatcher creates a matcher. The weight map is copied.
func NewMatcher(config Config) *Matcher {
	weights := make(map[string]float64, len(config.FieldWeights))
	for k, v := range config.FieldWeights {
		weights[k] = v
	}
	config.FieldWeights = weights

	return &Matcher{scorer: NewScorer(), config: config}
}

// Config returns the matcher configuration
func (m *Matcher) Config() Config {
	return m.config
}

// CompareEntities scores e1 against e2 as entityType. A nil match with a nil error means
// the pair produced no signal or fell below the minimum confidence.
func (m *Matcher) CompareEntities(entityType models.EntityType, e1, e2 *models.Entity) (*models.EntityMatch, error) {
	if e1 == nil || e2 == nil {
		return nil, fmt.Errorf("%w: nil entity in comparison", models.ErrInvalidEntity)
	}

	var reasons []models.MatchReason
	switch entityType {
	case models.EntityTypePerson:
		if e1.Person == nil || e2.Person == nil {
			return nil, fmt.Errorf("%w: %s or %s has no person payload", models.ErrInvalidEntity, e1.ID, e2.ID)
		}
		reasons = m.comparePersons(e1, e2)
	case models.EntityTypeOrganization:
		if e1.Organization == nil || e2.Organization == nil {
			return nil, fmt.Errorf("%w: %s or %s has no organization payload", models.ErrInvalidEntity, e1.ID, e2.ID)
		}
		reasons = m.compareOrganizations(e1, e2)
	case models.EntityTypeGeneric:
		reasons = m.compareGeneric(e1, e2)
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", models.ErrInvalidEntity, entityType)
	}

	if len(reasons) == 0 {
		return nil, nil
	}

	confidence := m.aggregate(reasons)
	if confidence < m.config.MinConfidence {
		return nil, nil
	}

	return &models.EntityMatch{
		Entity1ID:       e1.ID,
		Entity2ID:       e2.ID,
		EntityType:      entityType,
		Confidence:      confidence,
		MatchReasons:    reasons,
		SuggestedAction: m.Action(confidence),
	}, nil
}

// Action maps a confidence to the suggested action
func (m *Matcher) Action(confidence float64) models.SuggestedAction {
	switch {
	case confidence >= m.config.AutoMergeThreshold:
		return models.ActionMerge
	case confidence >= m.config.ManualReviewThreshold:
		return models.ActionLink
	default:
		return models.ActionIgnore
	}
}

func (m *Matcher) aggregate(reasons []models.MatchReason) float64 {
	scores := make(map[string]float64, len(reasons))
	for _, r := range reasons {
		if r.Score > scores[r.Field] {
			scores[r.Field] = r.Score
		}
	}
	return clamp(m.scorer.WeightedScore(scores, m.config.FieldWeights, DefaultFieldWeight))
}

func (m *Matcher) comparePersons(e1, e2 *models.Entity) []models.MatchReason {
	var reasons []models.MatchReason
	p1, p2 := e1.Person, e2.Person

	if shared := intersect(emails(p1), emails(p2)); len(shared) > 0 {
		reasons = append(reasons, models.MatchReason{
			Field:   "email",
			Type:    models.MatchReasonExact,
			Score:   1.0,
			Details: "shared email " + shared[0],
		})
	}

	if shared := intersect(phones(p1), phones(p2)); len(shared) > 0 {
		reasons = append(reasons, models.MatchReason{
			Field:   "phone",
			Type:    models.MatchReasonExact,
			Score:   1.0,
			Details: "shared phone " + shared[0],
		})
	}

	if score := m.scorer.TokenSimilarity(e1.Name, e2.Name, nameTokenThreshold); score > personNameThreshold {
		reasons = append(reasons, models.MatchReason{
			Field:   "name",
			Type:    models.MatchReasonFuzzy,
			Score:   score,
			Details: fmt.Sprintf("name tokens %q ~ %q", e1.Name, e2.Name),
		})
	}

	c1 := strings.ToLower(strings.TrimSpace(p1.CurrentCompany))
	c2 := strings.ToLower(strings.TrimSpace(p2.CurrentCompany))
	if c1 != "" && c2 != "" {
		if score := m.scorer.StringSimilarity(c1, c2); score > companyThreshold {
			reasons = append(reasons, models.MatchReason{
				Field:   "company",
				Type:    models.MatchReasonFuzzy,
				Score:   score,
				Details: fmt.Sprintf("company %q ~ %q", p1.CurrentCompany, p2.CurrentCompany),
			})
		}
	}

	return reasons
}

func (m *Matcher) compareOrganizations(e1, e2 *models.Entity) []models.MatchReason {
	var reasons []models.MatchReason
	o1, o2 := e1.Organization, e2.Organization

	if shared := intersect(domains(o1), domains(o2)); len(shared) > 0 {
		reasons = append(reasons, models.MatchReason{
			Field:   "domain",
			Type:    models.MatchReasonExact,
			Score:   1.0,
			Details: "shared domain " + shared[0],
		})
	}

	n1 := strings.ToLower(strings.TrimSpace(e1.Name))
	n2 := strings.ToLower(strings.TrimSpace(e2.Name))
	if n1 != "" && n2 != "" {
		if score := m.scorer.StringSimilarity(n1, n2); score > orgNameThreshold {
			reasons = append(reasons, models.MatchReason{
				Field:   "name",
				Type:    models.MatchReasonFuzzy,
				Score:   score,
				Details: fmt.Sprintf("name %q ~ %q", e1.Name, e2.Name),
			})
		}
	}

	w1 := normalizers.NormalizeWebsite(o1.Website)
	w2 := normalizers.NormalizeWebsite(o2.Website)
	if w1 != "" && w1 == w2 {
		reasons = append(reasons, models.MatchReason{
			Field:   "website",
			Type:    models.MatchReasonExact,
			Score:   1.0,
			Details: "same website " + w1,
		})
	}

	return reasons
}

func (m *Matcher) compareGeneric(e1, e2 *models.Entity) []models.MatchReason {
	var reasons []models.MatchReason

	n1 := strings.ToLower(strings.TrimSpace(e1.Name))
	n2 := strings.ToLower(strings.TrimSpace(e2.Name))
	if n1 != "" && n2 != "" {
		if score := m.scorer.StringSimilarity(n1, n2); score > genericNameThreshold {
			reasons = append(reasons, models.MatchReason{
				Field:   "name",
				Type:    models.MatchReasonFuzzy,
				Score:   score,
				Details: fmt.Sprintf("name %q ~ %q", e1.Name, e2.Name),
			})
		}
	}

	if shared := intersect(e1.Sources, e2.Sources); len(shared) > 0 {
		reasons = append(reasons, models.MatchReason{
			Field:   "sources",
			Type:    models.MatchReasonSemantic,
			Score:   min(1.0, 0.3+0.2*float64(len(shared))),
			Details: fmt.Sprintf("%d shared sources", len(shared)),
		})
	}

	return reasons
}

func emails(p *models.PersonFields) []string {
	out := make([]string, 0, len(p.Emails))
	for _, e := range p.Emails {
		if v := normalizers.NormalizeEmail(e.Email); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func phones(p *models.PersonFields) []string {
	out := make([]string, 0, len(p.Phones))
	for _, ph := range p.Phones {
		if v := normalizers.NormalizePhone(ph.Number); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func domains(o *models.OrganizationFields) []string {
	out := make([]string, 0, len(o.Domains))
	for _, d := range o.Domains {
		if v := normalizers.NormalizeDomain(d); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// intersect returns the distinct values of a also present in b, in a's order
func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, v := range a {
		if set[v] && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
