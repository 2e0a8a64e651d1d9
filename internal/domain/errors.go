package domain

import "errors"

// Sentinel errors shared across the storage and serving layers. Callers match
// with errors.Is; lower layers wrap these with context via fmt.Errorf("%w").
var (
	// ErrParse marks a malformed timestamp or date.
	ErrParse = errors.New("parse error")

	// ErrValidation marks a structurally invalid record or query range.
	ErrValidation = errors.New("validation error")

	// ErrNoData distinguishes "nothing stored" from a failed read. The serving
	// layer converts it into a default zero record; it never reaches a client.
	ErrNoData = errors.New("no data")

	// ErrBackendUnavailable marks a primary storage backend that could not be
	// reached. It triggers fallback selection rather than surfacing to callers.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRetriesExhausted wraps the last backend error after the final attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
)
