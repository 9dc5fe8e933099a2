package catalog

import "errors"

// Sentinel errors returned by the catalog gateway and, wrapped with
// additional context via fmt.Errorf("...: %w", ...), by every component
// built on top of it. Callers should compare with errors.Is, not string
// matching.
var (
	// ErrCatalogFailure wraps any error surfaced by the underlying SQL
	// backend: a failed connection, a malformed query, a constraint
	// violation.
	ErrCatalogFailure = errors.New("catalog: backend failure")

	// ErrAlreadyInProgress is returned when a hierarchy update is
	// requested for a job whose HasCache flag is already -1.
	ErrAlreadyInProgress = errors.New("catalog: update already in progress")

	// ErrBadArgument is returned for malformed caller input: a malformed
	// id list, a restore-list request with all three selection lists
	// empty, a restore-list table name that fails validation, an unknown
	// template name.
	ErrBadArgument = errors.New("catalog: bad argument")

	// ErrPathNotFound names the path-not-found condition. The path
	// lookups in this module do not return it: ChDir reports a missing
	// path as false, and the restore-list builder skips a directory id
	// that has no Path row.
	ErrPathNotFound = errors.New("catalog: path not found")
)
