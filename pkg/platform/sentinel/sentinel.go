package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// so services can translate them into domain errors:
//   - ErrNotFound: row does not exist
//   - ErrConflict: a unique or foreign-key constraint rejected the write
//   - ErrInvalidState: row exists but is in the wrong state for the write
//   - ErrUnavailable: the database could not be reached
//   - ErrInvalid: the database rejected a value (too long, out of range)
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalid      = errors.New("invalid value")
)
