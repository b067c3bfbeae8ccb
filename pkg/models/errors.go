package models

import "errors"

var (
	// ErrStoreUnavailable wraps any failure of the backing entity store
	ErrStoreUnavailable = errors.New("entity store unavailable")
	// ErrEntityNotFound is returned when a referenced entity does not exist
	ErrEntityNotFound = errors.New("entity not found")
	// ErrSessionInProgress is returned when a resolution run is already active
	ErrSessionInProgress = errors.New("resolution session already in progress")
	// ErrInvalidEntity is returned for entities whose shape disagrees with their type
	ErrInvalidEntity = errors.New("invalid entity")
)
