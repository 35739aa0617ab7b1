package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("conversation not found")
	ErrForbidden          = errors.New("conversation belongs to another owner")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrBackendUnavailable = errors.New("model backend unavailable")
	ErrConflict           = errors.New("conversation modified concurrently")
	ErrInvalidExecContext = errors.New("invalid executor context")
)
