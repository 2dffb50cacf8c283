package store

import "errors"

// #region errors

var (
	// ErrNotFound means the requested version, run, or ticket does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateVersion means a different version with the same content
	// hash already exists in the lineage.
	ErrDuplicateVersion = errors.New("duplicate content hash in lineage")

	// ErrLineageNotFound means no active pointer exists for the lineage.
	ErrLineageNotFound = errors.New("lineage not found")

	// ErrDanglingPointer means the active pointer references a version
	// absent from the store. This is a data-integrity error: it is surfaced,
	// never auto-repaired.
	ErrDanglingPointer = errors.New("active pointer references missing version")

	// ErrConflict means a conditional pointer write lost to a concurrent
	// writer. Callers must re-resolve before deciding whether to retry.
	ErrConflict = errors.New("active pointer changed since it was read")
)

// #endregion errors
