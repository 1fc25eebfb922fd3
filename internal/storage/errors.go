package storage

import "errors"

// Common storage errors
var (
	ErrNotFound      = errors.New("not found")
	ErrPlanExists    = errors.New("plan already exists")
	// ErrInvalidCursor is returned by ListPlans for a cursor it did not issue.
	ErrInvalidCursor = errors.New("invalid cursor")
)
