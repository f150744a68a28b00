// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/repo/service layers.
var (
	// ErrNotFound indicates the requested record or path does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMissingIdentity indicates there is no signed-in user or a required user key is unavailable.
	ErrMissingIdentity = errors.New("missing identity")

	// ErrWriteFailed indicates the backing store rejected a write.
	ErrWriteFailed = errors.New("write failed")

	// ErrUnsupportedContent indicates a message kind that has no persistable representation.
	ErrUnsupportedContent = errors.New("unsupported content")

	// ErrVersionConflict indicates optimistic concurrency failure (base version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyExists indicates the record being created is already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates malformed caller input (bad email, empty id).
	ErrInvalidArgument = errors.New("invalid argument")
)
