package engine

import (
	"slices"
	"sync"
)

// seenTracker carries the two pieces of cross-worker state in a run: the
// orphan candidate set (hash-store snapshot minus observed records) and the
// encountered set (duplicate-delivery suppression). One mutex guards both;
// the critical sections are map touches, far cheaper than the I/O around
// them.
type seenTracker struct {
	mu          sync.Mutex
	candidates  map[string]struct{}
	encountered map[string]struct{}
}

func newSeenTracker(snapshot []string) *seenTracker {
	t := &seenTracker{
		candidates:  make(map[string]struct{}, len(snapshot)),
		encountered: make(map[string]struct{}),
	}
	for _, id := range snapshot {
		t.candidates[id] = struct{}{}
	}
	return t
}

// observe marks naturalID as delivered. Returns false when the id was
// already observed this run (duplicate delivery).
func (t *seenTracker) observe(naturalID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.encountered[naturalID]; dup {
		return false
	}
	t.encountered[naturalID] = struct{}{}
	delete(t.candidates, naturalID)
	return true
}

// orphans returns the ids that were in the start-of-run snapshot but never
// observed. Only meaningful after the worker barrier; sorted for
// deterministic sweep order.
func (t *seenTracker) orphans() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.candidates))
	for id := range t.candidates {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
