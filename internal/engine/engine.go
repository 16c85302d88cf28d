package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weftlabs/weft/internal/dag"
	"github.com/weftlabs/weft/internal/progress"
	"github.com/weftlabs/weft/internal/record"
	"github.com/weftlabs/weft/internal/stream"
)

// Run executes one sync job to a terminal state and returns its job record.
//
// The run has three phases. First the orchestrator snapshots the hash store
// for the job's scope; every natural_id in that snapshot is an orphan
// candidate until a worker observes it. Then a pool of workers drains the
// source stream, each record flowing through route → content-hash → change
// decision → destination writes. Finally — strictly after every worker has
// returned — the sweep deletes whatever candidates remain unobserved.
//
// The returned job is sc.Job, mutated in place. Run never returns a
// non-terminal job.
func Run(ctx context.Context, sc *SyncContext) *Job {
	r := &run{
		sc:     sc,
		job:    sc.Job,
		router: dag.NewRouter(sc.Graph),
		log:    sc.logger().With(slog.String("job_id", sc.Job.ID), slog.String("scope", sc.Job.Scope.String())),
	}
	r.execute(ctx)
	return r.job
}

type run struct {
	sc     *SyncContext
	job    *Job
	router *dag.Router
	log    *slog.Logger

	seen *seenTracker

	// consecutiveFailures counts exhausted-retry destination failures with
	// no intervening success. Crossing the threshold is systemic: the
	// destination is down, not one record unlucky.
	consecutiveFailures atomic.Int64

	// abort cancels the run context with the fatal cause.
	abort context.CancelCauseFunc
}

func (r *run) execute(ctx context.Context) {
	now := time.Now().UTC()
	r.job.Status = StatusRunning
	r.job.StartedAt = &now
	r.log.Info("sync started",
		slog.Int("concurrency", r.sc.concurrency()),
		slog.Int("queue_depth", r.sc.queueDepth()))

	snapshot, err := r.sc.Hashes.ListNaturalIDs(ctx, r.job.Scope.SourceID, r.job.Scope.Collection)
	if err != nil {
		r.finalize(ctx, StatusFailed, fmt.Errorf("listing hash entries: %w", err))
		return
	}
	r.seen = newSeenTracker(snapshot)

	runCtx := ctx
	var timeoutCancel context.CancelFunc
	if r.sc.Timeout > 0 {
		runCtx, timeoutCancel = context.WithTimeout(runCtx, r.sc.Timeout)
		defer timeoutCancel()
	}
	runCtx, abort := context.WithCancelCause(runCtx)
	defer abort(nil)
	r.abort = abort

	st := stream.New(r.sc.Source, r.sc.queueDepth(), r.log)
	st.Start(runCtx)

	var wg sync.WaitGroup
	for i := 0; i < r.sc.concurrency(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, ok := st.Next(runCtx)
				if !ok {
					return
				}
				r.process(runCtx, rec)
			}
		}()
	}

	// Barrier: the sweep below must not start while any worker could
	// still observe a record and save it from deletion.
	wg.Wait()

	if srcErr := st.Err(); srcErr != nil {
		r.finalize(ctx, StatusFailed, &SourceError{SourceID: r.sc.Source.ID(), Err: srcErr})
		return
	}

	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		if errors.Is(cause, ErrFailureThreshold) {
			r.finalize(ctx, StatusFailed, cause)
			return
		}
		// External cancellation or timeout. Skipping the sweep keeps the
		// hash store honest: unobserved records may still exist upstream.
		r.finalize(ctx, StatusCancelled, nil)
		return
	}

	if swept := r.sweep(runCtx); !swept {
		r.finalize(ctx, StatusCancelled, nil)
		return
	}
	r.finalize(ctx, StatusCompleted, nil)
}

// process runs one source record through the full pipeline. Record-scoped
// failures end here as skip counts; only systemic failures escape, via
// r.abort.
func (r *run) process(ctx context.Context, rec record.SourceRecord) {
	if ctx.Err() != nil {
		return
	}

	if !r.seen.observe(rec.NaturalID) {
		r.log.Warn("duplicate record delivery", slog.String("lineage", rec.LineageID()))
		r.sc.Tracker.Inc(ctx, progress.CounterSkipped, 1)
		return
	}
	r.sc.Tracker.ObserveKind(rec.Kind)

	if rec.SkipMarked {
		r.sc.Tracker.Inc(ctx, progress.CounterSkipped, 1)
		return
	}

	var branchFailures int64
	routed := r.router.Route(ctx, rec, func(node, lineage string, err error) {
		branchFailures++
		r.log.Warn("transform branch failed",
			slog.String("node", node),
			slog.String("lineage", lineage),
			slog.String("error", err.Error()))
	})
	if branchFailures > 0 {
		r.sc.Tracker.Inc(ctx, progress.CounterSkipped, branchFailures)
	}
	if len(routed) == 0 {
		// Either every branch failed or the transforms filtered the
		// record out entirely. Nothing to write, nothing to hash; a
		// failed branch retries naturally on the next run.
		if branchFailures == 0 {
			r.sc.Tracker.Inc(ctx, progress.CounterSkipped, 1)
		}
		return
	}

	hash, err := record.ContentHash(routed)
	if err != nil {
		r.log.Warn("content hash failed", slog.String("lineage", rec.LineageID()), slog.String("error", err.Error()))
		r.sc.Tracker.Inc(ctx, progress.CounterSkipped, 1)
		return
	}

	scope := r.job.Scope
	prior, exists, err := r.sc.Hashes.GetHash(ctx, scope.SourceID, scope.Collection, rec.NaturalID)
	if err != nil {
		r.log.Error("hash lookup failed", slog.String("lineage", rec.LineageID()), slog.String("error", err.Error()))
		r.sc.Tracker.Inc(ctx, progress.CounterSkipped, 1)
		return
	}

	switch {
	case !exists:
		if !r.write(ctx, rec, routed, hash, false) {
			return
		}
		r.sc.Tracker.Inc(ctx, progress.CounterInserted, 1)
	case prior != hash:
		if !r.write(ctx, rec, routed, hash, true) {
			return
		}
		r.sc.Tracker.Inc(ctx, progress.CounterUpdated, 1)
	default:
		r.sc.Tracker.Inc(ctx, progress.CounterKept, 1)
	}
}

// write pushes a record's routed outputs to their destinations and stores
// the new content hash. Updates delete before upserting so a changed
// fan-out leaves no stale rows behind. Returns false when the record was
// counted skipped instead.
func (r *run) write(ctx context.Context, rec record.SourceRecord, routed []record.RoutedRecord, hash string, replace bool) bool {
	if replace {
		// Clear the previous run's rows from every destination, not just
		// the current targets: a rerouted record would otherwise leave
		// stale rows the sweep can never reach.
		for _, target := range r.sc.Graph.Destinations() {
			dest, ok := r.sc.Destinations[target]
			if !ok {
				continue
			}
			if err := r.attempt(ctx, target, rec.NaturalID, func() error {
				return dest.Delete(ctx, rec.SourceID, rec.NaturalID)
			}); err != nil {
				r.recordWriteFailure(ctx, err)
				return false
			}
		}
	}

	for _, rr := range routed {
		for _, target := range rr.Targets {
			dest, ok := r.sc.Destinations[target]
			if !ok {
				// Graph validation guarantees a handle per leaf; a miss
				// here is a wiring bug, not a transient fault.
				r.log.Error("no destination handle", slog.String("target", target))
				r.sc.Tracker.Inc(ctx, progress.CounterSkipped, 1)
				return false
			}
			if err := r.attempt(ctx, target, rec.NaturalID, func() error {
				return dest.Upsert(ctx, rr)
			}); err != nil {
				r.recordWriteFailure(ctx, err)
				return false
			}
		}
	}

	scope := r.job.Scope
	if err := r.sc.Hashes.PutHash(ctx, scope.SourceID, scope.Collection, rec.NaturalID, hash); err != nil {
		r.log.Error("hash store write failed", slog.String("lineage", rec.LineageID()), slog.String("error", err.Error()))
		r.sc.Tracker.Inc(ctx, progress.CounterSkipped, 1)
		return false
	}
	return true
}

// attempt runs one destination operation under the retry policy and resets
// the consecutive-failure counter on success.
func (r *run) attempt(ctx context.Context, target, naturalID string, op func() error) error {
	err := withRetry(ctx, r.sc.retryAttempts(), r.sc.retryBaseDelay(), op)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &DestinationError{Target: target, NaturalID: naturalID, Err: err}
	}
	r.consecutiveFailures.Store(0)
	return nil
}

func (r *run) recordWriteFailure(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	r.log.Warn("destination write skipped", slog.String("error", err.Error()))
	r.sc.Tracker.Inc(ctx, progress.CounterSkipped, 1)

	n := r.consecutiveFailures.Add(1)
	if n >= int64(r.sc.failureThreshold()) {
		r.abort(fmt.Errorf("%w after %d failures: %v", ErrFailureThreshold, n, err))
	}
}

// sweep deletes orphaned records: hash entries from the start-of-run
// snapshot that no worker observed. Returns false when cancellation cut
// the sweep short.
func (r *run) sweep(ctx context.Context) bool {
	orphans := r.seen.orphans()
	scope := r.job.Scope
	for _, naturalID := range orphans {
		if ctx.Err() != nil {
			return false
		}
		failed := false
		for _, target := range r.sc.Graph.Destinations() {
			dest := r.sc.Destinations[target]
			if err := withRetry(ctx, r.sc.retryAttempts(), r.sc.retryBaseDelay(), func() error {
				return dest.Delete(ctx, scope.SourceID, naturalID)
			}); err != nil {
				// Leave the hash entry so the next run retries the
				// deletion instead of forgetting the orphan.
				r.log.Warn("orphan delete failed",
					slog.String("target", target),
					slog.String("natural_id", naturalID),
					slog.String("error", err.Error()))
				failed = true
				break
			}
		}
		if failed {
			continue
		}
		if err := r.sc.Hashes.RemoveHash(ctx, scope.SourceID, scope.Collection, naturalID); err != nil {
			r.log.Warn("orphan hash removal failed",
				slog.String("natural_id", naturalID),
				slog.String("error", err.Error()))
			continue
		}
		r.sc.Tracker.Inc(ctx, progress.CounterDeleted, 1)
	}
	return true
}

// finalize moves the job to its terminal state, copies the counter totals
// in, and publishes the final progress snapshot. Uses the parent context so
// the final publish still goes out after cancellation.
func (r *run) finalize(ctx context.Context, status Status, cause error) {
	now := time.Now().UTC()
	r.job.Status = status
	r.job.CompletedAt = &now
	if cause != nil {
		r.job.Error = cause.Error()
	}

	snap := r.sc.Tracker.Finalize(context.WithoutCancel(ctx), status == StatusFailed, r.job.Error)
	r.job.Counters = Counters{
		Inserted: snap.Inserted,
		Updated:  snap.Updated,
		Deleted:  snap.Deleted,
		Kept:     snap.Kept,
		Skipped:  snap.Skipped,
	}

	level := slog.LevelInfo
	if status == StatusFailed {
		level = slog.LevelError
	}
	r.log.Log(context.WithoutCancel(ctx), level, "sync finished",
		slog.String("status", string(status)),
		slog.Int64("inserted", snap.Inserted),
		slog.Int64("updated", snap.Updated),
		slog.Int64("deleted", snap.Deleted),
		slog.Int64("kept", snap.Kept),
		slog.Int64("skipped", snap.Skipped))
}
