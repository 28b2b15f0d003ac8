package domain

import "errors"

// Error kinds surfaced to callers. Repositories and services wrap these
// with fmt.Errorf("...: %w", ...) so callers branch with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrConflict          = errors.New("duplicate entry")
	ErrInsufficientStock = errors.New("not enough available quantity for reservation")
	ErrConnectivity      = errors.New("store unreachable")
)
