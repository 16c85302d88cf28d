// Package progress aggregates per-job counters and publishes snapshots.
//
// Counters are incremented concurrently by workers, so all mutation is
// atomic. Snapshots are immutable copies: a published snapshot never changes
// after the fact, even while the live counters keep moving.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
)

// Counter names the decision categories tracked per job.
type Counter string

const (
	CounterInserted Counter = "inserted"
	CounterUpdated  Counter = "updated"
	CounterDeleted  Counter = "deleted"
	CounterKept     Counter = "kept"
	CounterSkipped  Counter = "skipped"
)

// DefaultPublishThreshold is how many counter increments accumulate between
// snapshot publishes. Terminal snapshots are always published regardless.
const DefaultPublishThreshold = 3

// Snapshot is an immutable view of a job's counters at one instant.
type Snapshot struct {
	JobID       string           `json:"job_id"`
	Inserted    int64            `json:"inserted"`
	Updated     int64            `json:"updated"`
	Deleted     int64            `json:"deleted"`
	Kept        int64            `json:"kept"`
	Skipped     int64            `json:"skipped"`
	Encountered map[string]int64 `json:"encountered,omitempty"`
	Complete    bool             `json:"complete"`
	Failed      bool             `json:"failed"`
	Error       string           `json:"error,omitempty"`
}

// Total returns the sum of all decision counters.
func (s Snapshot) Total() int64 {
	return s.Inserted + s.Updated + s.Deleted + s.Kept + s.Skipped
}

// Sink receives published snapshots. Implementations must tolerate
// concurrent calls; publishing is best-effort and never fails the job.
type Sink interface {
	Publish(ctx context.Context, snap Snapshot)
}

// Tracker aggregates one job's counters and publishes to a Sink when enough
// increments have accumulated. Safe for concurrent use by workers.
type Tracker struct {
	jobID     string
	sink      Sink
	threshold int64

	inserted atomic.Int64
	updated  atomic.Int64
	deleted  atomic.Int64
	kept     atomic.Int64
	skipped  atomic.Int64

	sincePublish atomic.Int64

	mu          sync.Mutex
	encountered map[string]int64
}

// NewTracker creates a tracker for jobID publishing to sink. A nil sink
// disables publishing; threshold <= 0 selects DefaultPublishThreshold.
func NewTracker(jobID string, sink Sink, threshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultPublishThreshold
	}
	return &Tracker{
		jobID:       jobID,
		sink:        sink,
		threshold:   int64(threshold),
		encountered: make(map[string]int64),
	}
}

// Inc atomically increments one counter by delta and publishes a snapshot
// when the accumulated increments reach the threshold.
func (t *Tracker) Inc(ctx context.Context, c Counter, delta int64) {
	switch c {
	case CounterInserted:
		t.inserted.Add(delta)
	case CounterUpdated:
		t.updated.Add(delta)
	case CounterDeleted:
		t.deleted.Add(delta)
	case CounterKept:
		t.kept.Add(delta)
	case CounterSkipped:
		t.skipped.Add(delta)
	default:
		return
	}

	if t.sink == nil {
		return
	}
	if t.sincePublish.Add(delta) >= t.threshold {
		t.sincePublish.Store(0)
		t.sink.Publish(ctx, t.Snapshot())
	}
}

// ObserveKind records that a record of the given kind was encountered.
func (t *Tracker) ObserveKind(kind string) {
	if kind == "" {
		return
	}
	t.mu.Lock()
	t.encountered[kind]++
	t.mu.Unlock()
}

// Snapshot returns an immutable copy of the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	var enc map[string]int64
	if len(t.encountered) > 0 {
		enc = make(map[string]int64, len(t.encountered))
		for k, v := range t.encountered {
			enc[k] = v
		}
	}
	t.mu.Unlock()

	return Snapshot{
		JobID:       t.jobID,
		Inserted:    t.inserted.Load(),
		Updated:     t.updated.Load(),
		Deleted:     t.deleted.Load(),
		Kept:        t.kept.Load(),
		Skipped:     t.skipped.Load(),
		Encountered: enc,
	}
}

// Finalize publishes the terminal snapshot. failed marks the job as failed
// and errMsg carries the causing error's message when present. Always
// publishes, regardless of the threshold.
func (t *Tracker) Finalize(ctx context.Context, failed bool, errMsg string) Snapshot {
	snap := t.Snapshot()
	snap.Complete = !failed
	snap.Failed = failed
	snap.Error = errMsg

	if t.sink != nil {
		t.sink.Publish(ctx, snap)
	}
	return snap
}
