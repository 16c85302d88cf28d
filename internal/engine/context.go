package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/weftlabs/weft/internal/dag"
	"github.com/weftlabs/weft/internal/progress"
	"github.com/weftlabs/weft/internal/record"
	"github.com/weftlabs/weft/internal/stream"
)

// Default run parameters. All overridable per job through SyncContext.
const (
	DefaultConcurrency      = 20
	DefaultFailureThreshold = 10
	DefaultRetryAttempts    = 3
	DefaultRetryBaseDelay   = 50 * time.Millisecond
)

// Destination is a write target for routed records. Both operations must be
// idempotent under retry: the engine re-issues them on transient failure.
type Destination interface {
	// Upsert writes one routed record.
	Upsert(ctx context.Context, rec record.RoutedRecord) error

	// Delete removes every stored record derived from (sourceID,
	// naturalID). Deleting an absent record is not an error.
	Delete(ctx context.Context, sourceID, naturalID string) error
}

// RecordHashStore persists (scope, natural_id) → content_hash entries
// between runs. Within one run each natural_id is touched by at most one
// worker (single delivery), so implementations need no entry-level locking
// beyond their own write safety.
type RecordHashStore interface {
	GetHash(ctx context.Context, sourceID, collection, naturalID string) (hash string, ok bool, err error)
	PutHash(ctx context.Context, sourceID, collection, naturalID, contentHash string) error
	ListNaturalIDs(ctx context.Context, sourceID, collection string) ([]string, error)
	RemoveHash(ctx context.Context, sourceID, collection, naturalID string) error
}

// SyncContext is the immutable bundle of everything one job run needs,
// assembled once by the service before the orchestrator starts. Nothing in
// it changes for the run's duration.
type SyncContext struct {
	Job    *Job
	Source stream.Source
	Graph  *dag.Graph

	// Destinations maps DAG destination node names to their handles.
	// Every leaf of Graph must have an entry; the service validates this
	// before construction.
	Destinations map[string]Destination

	Hashes  RecordHashStore
	Tracker *progress.Tracker
	Logger  *slog.Logger

	// Concurrency bounds the worker pool; QueueDepth bounds the stream
	// buffer. Zero selects the defaults.
	Concurrency int
	QueueDepth  int

	// FailureThreshold is how many consecutive exhausted-retry destination
	// failures abort the job. Zero selects DefaultFailureThreshold.
	FailureThreshold int

	// RetryAttempts and RetryBaseDelay shape the per-write retry policy.
	RetryAttempts  int
	RetryBaseDelay time.Duration

	// Timeout, when non-zero, cancels the run after the duration elapses.
	Timeout time.Duration
}

func (sc *SyncContext) concurrency() int {
	if sc.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return sc.Concurrency
}

func (sc *SyncContext) queueDepth() int {
	if sc.QueueDepth <= 0 {
		return sc.concurrency()
	}
	return sc.QueueDepth
}

func (sc *SyncContext) failureThreshold() int {
	if sc.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return sc.FailureThreshold
}

func (sc *SyncContext) retryAttempts() int {
	if sc.RetryAttempts <= 0 {
		return DefaultRetryAttempts
	}
	return sc.RetryAttempts
}

func (sc *SyncContext) retryBaseDelay() time.Duration {
	if sc.RetryBaseDelay <= 0 {
		return DefaultRetryBaseDelay
	}
	return sc.RetryBaseDelay
}

func (sc *SyncContext) logger() *slog.Logger {
	if sc.Logger == nil {
		return slog.Default()
	}
	return sc.Logger
}
