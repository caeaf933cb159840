package detect

import (
	"context"
	"errors"
)

// Lookup failure taxonomy. These never escape Detect: every lookup error is
// caught at the invocation boundary and degraded to an absent result. They
// exist so callers can label error metrics via the engine's error hook.
var (
	// ErrLookupTimeout means the per-lookup deadline elapsed first.
	ErrLookupTimeout = errors.New("lookup timed out")

	// ErrLookupUnavailable means a network failure or non-success response.
	ErrLookupUnavailable = errors.New("lookup unavailable")

	// ErrLookupMalformed means the source answered with an unexpected shape.
	ErrLookupMalformed = errors.New("lookup response malformed")
)

// LookupErrorKind maps a lookup error onto its taxonomy label.
func LookupErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrLookupTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrLookupMalformed):
		return "malformed"
	default:
		return "unavailable"
	}
}
