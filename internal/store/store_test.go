package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weft.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"record_hashes", "sync_jobs", "routed_records"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestHashes_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetHash(ctx, "files", "docs", "a"); err != nil || ok {
		t.Fatalf("GetHash on empty store = ok=%v err=%v, want absent", ok, err)
	}

	if err := s.PutHash(ctx, "files", "docs", "a", "h1"); err != nil {
		t.Fatalf("PutHash failed: %v", err)
	}
	hash, ok, err := s.GetHash(ctx, "files", "docs", "a")
	if err != nil || !ok || hash != "h1" {
		t.Fatalf("GetHash = %q ok=%v err=%v, want h1", hash, ok, err)
	}

	// Replace
	if err := s.PutHash(ctx, "files", "docs", "a", "h2"); err != nil {
		t.Fatalf("PutHash replace failed: %v", err)
	}
	hash, _, _ = s.GetHash(ctx, "files", "docs", "a")
	if hash != "h2" {
		t.Errorf("GetHash after replace = %q, want h2", hash)
	}
}

func TestHashes_ListScopedAndSorted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, e := range []struct{ src, col, id string }{
		{"files", "docs", "b"},
		{"files", "docs", "a"},
		{"files", "other", "x"},
		{"jira", "docs", "y"},
	} {
		if err := s.PutHash(ctx, e.src, e.col, e.id, "h"); err != nil {
			t.Fatalf("PutHash failed: %v", err)
		}
	}

	ids, err := s.ListNaturalIDs(ctx, "files", "docs")
	if err != nil {
		t.Fatalf("ListNaturalIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ListNaturalIDs = %v, want [a b]", ids)
	}
}

func TestHashes_RemoveIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutHash(ctx, "files", "docs", "a", "h1"); err != nil {
		t.Fatalf("PutHash failed: %v", err)
	}
	if err := s.RemoveHash(ctx, "files", "docs", "a"); err != nil {
		t.Fatalf("RemoveHash failed: %v", err)
	}
	if err := s.RemoveHash(ctx, "files", "docs", "a"); err != nil {
		t.Errorf("second RemoveHash failed: %v", err)
	}
	if _, ok, _ := s.GetHash(ctx, "files", "docs", "a"); ok {
		t.Error("hash still present after RemoveHash")
	}
}

func TestJobs_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Second)
	job := &engine.Job{
		ID:          "job-1",
		Scope:       engine.Scope{SourceID: "files", Collection: "docs"},
		Status:      engine.StatusCompleted,
		Counters:    engine.Counters{Inserted: 3, Kept: 2, Deleted: 1},
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob failed: %v", err)
	}

	got, ok, err := s.GetJob(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("GetJob = ok=%v err=%v", ok, err)
	}
	if got.Status != engine.StatusCompleted {
		t.Errorf("Status = %v, want COMPLETED", got.Status)
	}
	if got.Counters != job.Counters {
		t.Errorf("Counters = %+v, want %+v", got.Counters, job.Counters)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
}

func TestJobs_PutJobUpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &engine.Job{
		ID:     "job-1",
		Scope:  engine.Scope{SourceID: "files", Collection: "docs"},
		Status: engine.StatusPending,
	}
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob pending failed: %v", err)
	}

	job.Status = engine.StatusFailed
	job.Error = "source \"files\" failed: reset"
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob terminal failed: %v", err)
	}

	got, _, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != engine.StatusFailed || got.Error == "" {
		t.Errorf("got status=%v error=%q, want FAILED with message", got.Status, got.Error)
	}
}

func TestJobs_GetJobMissing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.GetJob(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if ok {
		t.Error("GetJob reported a job that does not exist")
	}
}

func TestJobs_ListMostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	scope := engine.Scope{SourceID: "files", Collection: "docs"}

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"job-1", "job-2", "job-3"} {
		started := base.Add(time.Duration(i) * time.Minute)
		job := &engine.Job{ID: id, Scope: scope, Status: engine.StatusCompleted, StartedAt: &started}
		if err := s.PutJob(ctx, job); err != nil {
			t.Fatalf("PutJob failed: %v", err)
		}
	}

	jobs, err := s.ListJobs(ctx, scope, 2)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "job-3" || jobs[1].ID != "job-2" {
		ids := make([]string, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
		t.Errorf("ListJobs = %v, want [job-3 job-2]", ids)
	}
}

func TestTableDestination_UpsertDeleteRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	d := s.NewTableDestination("out")

	rec := record.RoutedRecord{
		Lineage:   "files/a",
		SourceID:  "files",
		NaturalID: "a",
		Payload:   record.Object{"id": record.String("a"), "rev": record.Int(1)},
		Targets:   []string{"out"},
	}
	if err := d.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	// Replay is idempotent.
	if err := d.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert replay failed: %v", err)
	}

	rows, err := d.Records(ctx)
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Records = %d rows, want 1", len(rows))
	}
	if rows[0].Payload != `{"id":"a","rev":1}` {
		t.Errorf("Payload = %s, want canonical JSON", rows[0].Payload)
	}

	if err := d.Delete(ctx, "files", "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	n, err := d.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count after delete = %d, want 0", n)
	}
	// Deleting again is not an error.
	if err := d.Delete(ctx, "files", "a"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestTableDestination_FanOutRowsCoexist(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	d := s.NewTableDestination("out")

	for _, variant := range []string{"upper", "lower"} {
		rec := record.RoutedRecord{
			Lineage:   "files/a",
			SourceID:  "files",
			NaturalID: "a",
			Payload:   record.Object{"id": record.String("a"), "variant": record.String(variant)},
			Targets:   []string{"out"},
		}
		if err := d.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert %s failed: %v", variant, err)
		}
	}

	n, err := d.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2 fan-out rows", n)
	}

	// One delete clears both siblings.
	if err := d.Delete(ctx, "files", "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := d.Count(ctx); n != 0 {
		t.Errorf("Count after delete = %d, want 0", n)
	}
}

func TestMemoryHashStore_MatchesSQLiteContract(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryHashStore()

	if err := m.PutHash(ctx, "files", "docs", "a", "h1"); err != nil {
		t.Fatalf("PutHash failed: %v", err)
	}
	if err := m.PutHash(ctx, "files", "docs", "b", "h2"); err != nil {
		t.Fatalf("PutHash failed: %v", err)
	}
	if err := m.PutHash(ctx, "files", "other", "c", "h3"); err != nil {
		t.Fatalf("PutHash failed: %v", err)
	}

	ids, err := m.ListNaturalIDs(ctx, "files", "docs")
	if err != nil {
		t.Fatalf("ListNaturalIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ListNaturalIDs = %v, want [a b]", ids)
	}

	if err := m.RemoveHash(ctx, "files", "docs", "a"); err != nil {
		t.Fatalf("RemoveHash failed: %v", err)
	}
	if _, ok, _ := m.GetHash(ctx, "files", "docs", "a"); ok {
		t.Error("hash still present after RemoveHash")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}
