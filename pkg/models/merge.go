package models

// MergeResult is the outcome of merging two entities
type MergeResult struct {
	Success          bool     `json:"success"`
	SurvivorID       string   `json:"survivor_id,omitempty"`
	MergedID         string   `json:"merged_id,omitempty"`
	FieldsConflicted []string `json:"fields_conflicted"`
	FieldsResolved   []string `json:"fields_resolved"`
	NewEntity        *Entity  `json:"new_entity,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// FailedMerge builds an unsuccessful result carrying a reason
func FailedMerge(reason string) MergeResult {
	return MergeResult{
		Success:          false,
		FieldsConflicted: []string{},
		FieldsResolved:   []string{},
		Error:            reason,
	}
}

// ConflictPolicy decides which value wins when both entities hold different non-empty values
type ConflictPolicy string

const (
	// ConflictPolicySurvivor keeps the survivor's value
	ConflictPolicySurvivor ConflictPolicy = "survivor"
	// ConflictPolicyMostRecent keeps the value of the more recently updated entity
	ConflictPolicyMostRecent ConflictPolicy = "most_recent"
)
