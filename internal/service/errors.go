package service

import "errors"

// Sentinel errors the HTTP layer maps to status codes via errors.Is. Planner
// and store failures are wrapped with context instead and surface as 500.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
)
