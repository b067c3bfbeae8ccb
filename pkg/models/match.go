package models

// MatchReasonType classifies how a field matched
type MatchReasonType string

const (
	MatchReasonExact      MatchReasonType = "exact"
	MatchReasonFuzzy      MatchReasonType = "fuzzy"
	MatchReasonSemantic   MatchReasonType = "semantic"
	MatchReasonTransitive MatchReasonType = "transitive"
)

// MatchReason is an itemized, audit-only explanation of a match signal
type MatchReason struct {
	Field   string          `json:"field"`
	Type    MatchReasonType `json:"type"`
	Score   float64         `json:"score"`
	Details string          `json:"details"`
}

// SuggestedAction is what the engine recommends doing with a match
type SuggestedAction string

const (
	ActionMerge  SuggestedAction = "merge"
	ActionLink   SuggestedAction = "link"
	ActionIgnore SuggestedAction = "ignore"
)

// EntityMatch is a scored candidate duplicate pair
type EntityMatch struct {
	Entity1ID       string          `json:"entity1_id"`
	Entity2ID       string          `json:"entity2_id"`
	EntityType      EntityType      `json:"entity_type"`
	Confidence      float64         `json:"confidence"`
	MatchReasons    []MatchReason   `json:"match_reasons"`
	SuggestedAction SuggestedAction `json:"suggested_action"`
}

// PairKey returns an order-independent key for the match's entity pair
func (m EntityMatch) PairKey() string {
	return PairKey(m.Entity1ID, m.Entity2ID)
}

// PairKey returns an order-independent key for two entity ids
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
