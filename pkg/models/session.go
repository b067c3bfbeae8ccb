package models

import "time"

// SessionStatus is the state of a resolution session
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusCancelled
}

// ResolutionSession tracks one resolveAll run
type ResolutionSession struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	EntityType  *EntityType   `json:"entity_type,omitempty"`
	Status      SessionStatus `json:"status"`
	Error       string        `json:"error,omitempty"`

	TotalEntities        int `json:"total_entities"`
	BlocksGenerated      int `json:"blocks_generated"`
	BlocksSkipped        int `json:"blocks_skipped"`
	ComparisonsPerformed int `json:"comparisons_performed"`
	ComparisonErrors     int `json:"comparison_errors"`
	MatchesFound         int `json:"matches_found"`
	MergesExecuted       int `json:"merges_executed"`
	MergesFailed         int `json:"merges_failed"`
}

// Snapshot returns a copy safe to hand to callers
func (s *ResolutionSession) Snapshot() ResolutionSession {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.EntityType != nil {
		t := *s.EntityType
		c.EntityType = &t
	}
	return c
}
