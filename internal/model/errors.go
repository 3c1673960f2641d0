package model

import "errors"

// Sentinel error kinds per the core's error handling design. Services
// wrap these with fmt.Errorf("...: %w", ErrX) and callers compare with
// errors.Is.
var (
	// ErrInvalidInput marks a schema or invariant violation on write or
	// filter construction.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing or expired id on get/update/delete.
	// Services generally prefer returning (nil, nil) over this error;
	// it exists for callers (e.g. the handle ABI) that need a typed
	// signal instead of a zero value.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited marks a depleted token bucket.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrQuotaExceeded marks a per-user memory cap reached on save.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrDimensionMismatch marks a vector whose length does not equal
	// the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrStorage marks an I/O, corruption, or irrecoverable DB error
	// surviving all retries.
	ErrStorage = errors.New("storage error")
	// ErrNotInitialized marks a vector-index operation attempted before
	// schema initialisation.
	ErrNotInitialized = errors.New("vector index not initialized")
)
