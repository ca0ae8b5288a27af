package claim

import "errors"

// Sentinel errors surfaced by the Service. The HTTP layer maps these to
// status codes; everything else is treated as an internal error.
var (
	// ErrNotFound means the claim id is unknown.
	ErrNotFound = errors.New("claim not found")

	// ErrInvalidTransition means the claim's current status does not permit
	// the requested operation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnauthorized means the caller does not own the claim or lacks the
	// role the operation requires.
	ErrUnauthorized = errors.New("not authorized")

	// ErrVersionConflict means another writer changed the claim between our
	// read and write. The caller must retry the whole operation.
	ErrVersionConflict = errors.New("claim version conflict")
)
