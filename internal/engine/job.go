package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the sync job state machine:
//
//	PENDING → RUNNING → {COMPLETED, FAILED, CANCELLED}
//
// Terminal states never transition again.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Counters holds the per-job decision counts. For a completed job,
// Inserted+Updated+Kept+Skipped accounts for every source record observed
// and Deleted for every orphaned hash entry removed.
type Counters struct {
	Inserted int64 `json:"inserted"`
	Updated  int64 `json:"updated"`
	Deleted  int64 `json:"deleted"`
	Kept     int64 `json:"kept"`
	Skipped  int64 `json:"skipped"`
}

// Scope identifies the (source, destination collection) a job syncs.
// Orphan detection and single-flight admission both key on it.
type Scope struct {
	SourceID   string `json:"source_id"`
	Collection string `json:"collection"`
}

func (s Scope) String() string {
	return s.SourceID + ":" + s.Collection
}

// Job is one sync run. Created PENDING, mutated only by the orchestrator
// while RUNNING, immutable once terminal.
type Job struct {
	ID          string     `json:"id"`
	Scope       Scope      `json:"scope"`
	Status      Status     `json:"status"`
	Counters    Counters   `json:"counters"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Error carries the causing failure for FAILED jobs; empty otherwise.
	Error string `json:"error,omitempty"`
}

// IDGenerator produces job IDs. Implemented by UUIDv7Generator (production)
// and FixedIDGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 job IDs.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedIDGenerator returns predetermined IDs in order. Deterministic job
// IDs keep test assertions and golden output stable.
// Safe for concurrent use via internal mutex.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator creates a generator that returns ids in order.
// Generate panics once the ids are exhausted: a test asking for more jobs
// than it declared is misconfigured, and failing fast surfaces that.
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedIDGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
