package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound       = errors.New("domain: not found")
	ErrSessionFull    = errors.New("domain: session is full")
	ErrNotInitialized = errors.New("domain: session not initialized")
)
