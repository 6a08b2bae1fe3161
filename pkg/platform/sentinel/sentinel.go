package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrInvalidState: record is in the wrong state for a conditional write
//   - ErrUnavailable: backing store or broker could not be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
