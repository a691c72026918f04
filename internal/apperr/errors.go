package apperr

import "errors"

var (
	// ErrStoreUnavailable marks any kernel call that failed at the
	// transport level or returned a non-zero API code.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotConfigured means the active AI provider has no API key.
	ErrNotConfigured = errors.New("provider not configured")
	// ErrNoContent means there are no captured messages to work with.
	ErrNoContent = errors.New("no messages captured")
	ErrNotFound  = errors.New("not found")
)
