package shared

import "errors"

// Taxonomy sentinels. Domain packages wrap these so the HTTP layer can map
// status codes without importing every engine package.
var (
	// ErrNotFound indicates a tenant-scoped lookup found nothing.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a caller error rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrPolicy indicates a business rule rejection (closed period, closed
	// cycle, insufficient stock). Distinct from validation so the caller can
	// explain why, not just that, the operation failed.
	ErrPolicy = errors.New("policy rejection")
	// ErrConflict indicates a state conflict such as a second reversal.
	ErrConflict = errors.New("conflict")
)
