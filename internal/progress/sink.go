package progress

import (
	"context"
	"log/slog"
	"sync"
)

// LogSink publishes snapshots to a structured logger. The default sink for
// CLI runs.
type LogSink struct {
	Logger *slog.Logger
}

// Publish implements Sink.
func (s *LogSink) Publish(ctx context.Context, snap Snapshot) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "sync progress",
		"job_id", snap.JobID,
		"inserted", snap.Inserted,
		"updated", snap.Updated,
		"deleted", snap.Deleted,
		"kept", snap.Kept,
		"skipped", snap.Skipped,
		"complete", snap.Complete,
		"failed", snap.Failed,
	)
}

// MemorySink retains every published snapshot in order. Test double, also
// used by getStatus to serve the latest published state.
type MemorySink struct {
	mu    sync.Mutex
	snaps []Snapshot
}

// Publish implements Sink.
func (s *MemorySink) Publish(_ context.Context, snap Snapshot) {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
}

// All returns a copy of the published snapshots in publish order.
func (s *MemorySink) All() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, len(s.snaps))
	copy(out, s.snaps)
	return out
}

// Last returns the most recently published snapshot, if any.
func (s *MemorySink) Last() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) == 0 {
		return Snapshot{}, false
	}
	return s.snaps[len(s.snaps)-1], true
}
