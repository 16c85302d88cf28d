package engine

import (
	"errors"
	"fmt"
)

// The engine's failure taxonomy:
//
//   - SourceError: producer failure, always fatal, job → FAILED
//   - TransformError (dag package): per-record, recoverable, counts skipped
//   - DestinationError: per-write, retried, then recoverable-skip unless
//     the systemic threshold trips, which fails the job
//
// Record-scoped errors are swallowed where they occur and surface only in
// counters; systemic errors propagate and finalize the job.

// SourceError wraps a producer failure. Source errors abort the run: a
// partial stream cannot support the orphan sweep, so continuing would
// misclassify unseen records as orphans.
type SourceError struct {
	SourceID string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %q failed: %v", e.SourceID, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// DestinationError wraps a failed destination write or delete.
type DestinationError struct {
	Target    string
	NaturalID string
	Err       error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination %q failed for %s: %v", e.Target, e.NaturalID, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }

// ErrFailureThreshold marks the systemic destination-failure abort.
// Wrapped into the job error together with the last write failure.
var ErrFailureThreshold = errors.New("consecutive destination failures exceeded threshold")

// IsSourceError reports whether err is a producer failure.
// Uses errors.As to handle wrapped errors.
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}

// IsDestinationError reports whether err is a destination write failure.
func IsDestinationError(err error) bool {
	var de *DestinationError
	return errors.As(err, &de)
}
