// Package service coordinates sync jobs: admission with single-flight per
// scope, asynchronous execution, status lookup, and cancellation. The
// engine runs jobs; the service owns their lifecycle around it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/dag"
	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/progress"
	"github.com/weftlabs/weft/internal/source"
	"github.com/weftlabs/weft/internal/stream"
	"github.com/weftlabs/weft/internal/transform"
)

var (
	// ErrScopeBusy rejects a start request while the scope already has a
	// running job. Concurrent jobs over one scope would race the orphan
	// sweep against each other's writes.
	ErrScopeBusy = errors.New("a sync job is already running for this scope")

	// ErrJobNotFound is returned by Status and Await for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotRunning is returned by Cancel when the job has already
	// reached a terminal state or never existed.
	ErrJobNotRunning = errors.New("job is not running")
)

// JobStore persists job records. Implemented by store.Store.
type JobStore interface {
	PutJob(ctx context.Context, job *engine.Job) error
	GetJob(ctx context.Context, id string) (*engine.Job, bool, error)
	ListJobs(ctx context.Context, scope engine.Scope, limit int) ([]*engine.Job, error)
}

// SourceFactory builds a record source from its pipeline declaration.
type SourceFactory func(spec config.SourceSpec) (stream.Source, error)

// DestinationFactory builds a destination handle for one declared
// destination node.
type DestinationFactory func(spec config.DestinationSpec) (engine.Destination, error)

// Options wires a Service. Jobs, Hashes, and Destinations are required;
// the rest defaults.
type Options struct {
	Jobs         JobStore
	Hashes       engine.RecordHashStore
	Destinations DestinationFactory

	Sources  SourceFactory        // defaults to DefaultSourceFactory
	Registry *transform.Registry  // defaults to transform.Builtin()
	IDs      engine.IDGenerator   // defaults to UUIDv7
	Sink     progress.Sink        // defaults to a LogSink
	Logger   *slog.Logger         // defaults to slog.Default()
}

// Service admits and tracks sync jobs.
type Service struct {
	jobs     JobStore
	hashes   engine.RecordHashStore
	dests    DestinationFactory
	sources  SourceFactory
	registry *transform.Registry
	ids      engine.IDGenerator
	sink     progress.Sink
	logger   *slog.Logger

	mu      sync.Mutex
	byScope map[engine.Scope]*liveJob
	byID    map[string]*liveJob
}

// liveJob is the in-flight bookkeeping for one running job. The engine
// owns the job record until done closes; status queries read the tracker,
// never the record.
type liveJob struct {
	id      string
	scope   engine.Scope
	tracker *progress.Tracker
	runCtx  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(opts Options) (*Service, error) {
	if opts.Jobs == nil || opts.Hashes == nil || opts.Destinations == nil {
		return nil, fmt.Errorf("service: Jobs, Hashes, and Destinations are required")
	}
	s := &Service{
		jobs:     opts.Jobs,
		hashes:   opts.Hashes,
		dests:    opts.Destinations,
		sources:  opts.Sources,
		registry: opts.Registry,
		ids:      opts.IDs,
		sink:     opts.Sink,
		logger:   opts.Logger,
		byScope:  make(map[engine.Scope]*liveJob),
		byID:     make(map[string]*liveJob),
	}
	if s.sources == nil {
		s.sources = DefaultSourceFactory
	}
	if s.registry == nil {
		s.registry = transform.Builtin()
	}
	if s.ids == nil {
		s.ids = engine.UUIDv7Generator{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.sink == nil {
		s.sink = &progress.LogSink{Logger: s.logger}
	}
	return s, nil
}

// DefaultSourceFactory builds the built-in source types.
func DefaultSourceFactory(spec config.SourceSpec) (stream.Source, error) {
	switch spec.Type {
	case "jsonl":
		return source.NewJSONL(source.JSONLConfig{
			SourceID:    spec.ID,
			Path:        stringParam(spec.Params, "path"),
			IDField:     stringParam(spec.Params, "id_field"),
			KindField:   stringParam(spec.Params, "kind_field"),
			DefaultKind: stringParam(spec.Params, "default_kind"),
		})
	case "memory":
		return &source.Memory{SourceID: spec.ID}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", spec.Type)
	}
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

// Start validates the pipeline, admits a job under single-flight, persists
// it PENDING, and launches the run asynchronously. The returned job record
// is a snapshot; poll Status or block on Await for progress.
//
// ctx covers admission only. The run itself gets a detached context so an
// expired request cannot kill a job it successfully started; Cancel is the
// one way to stop it.
func (s *Service) Start(ctx context.Context, p *config.Pipeline) (engine.Job, error) {
	sc, lj, err := s.admit(ctx, p)
	if err != nil {
		return engine.Job{}, err
	}

	// Snapshot before launch: the engine owns sc.Job once the goroutine
	// starts.
	admitted := *sc.Job

	go func() {
		defer lj.cancel()
		final := engine.Run(lj.runCtx, sc)

		if err := s.jobs.PutJob(context.Background(), final); err != nil {
			s.logger.Error("persisting terminal job failed",
				slog.String("job_id", final.ID),
				slog.String("error", err.Error()))
		}

		s.mu.Lock()
		delete(s.byScope, lj.scope)
		delete(s.byID, lj.id)
		s.mu.Unlock()
		close(lj.done)
	}()

	return admitted, nil
}

// admit does everything up to (but not including) launching the goroutine:
// graph construction, scope reservation, PENDING persistence, context
// assembly.
func (s *Service) admit(ctx context.Context, p *config.Pipeline) (*engine.SyncContext, *liveJob, error) {
	nodes, edges := p.GraphSpecs()
	graph, err := dag.Build(nodes, edges, s.registry.Resolver())
	if err != nil {
		return nil, nil, err
	}

	src, err := s.sources(p.Source)
	if err != nil {
		return nil, nil, err
	}

	dests := make(map[string]engine.Destination, len(p.Destinations))
	for _, d := range p.Destinations {
		handle, err := s.dests(d)
		if err != nil {
			return nil, nil, fmt.Errorf("destination %q: %w", d.Name, err)
		}
		dests[d.Name] = handle
	}

	timeout, err := p.JobTimeout()
	if err != nil {
		return nil, nil, err
	}

	scope := p.Scope()
	job := &engine.Job{
		ID:     s.ids.Generate(),
		Scope:  scope,
		Status: engine.StatusPending,
	}
	tracker := progress.NewTracker(job.ID, s.sink, progress.DefaultPublishThreshold)

	// The run gets a detached context: it must survive the admission
	// request and stop only through Cancel or its own timeout.
	runCtx, cancel := context.WithCancel(context.Background())
	lj := &liveJob{
		id:      job.ID,
		scope:   scope,
		tracker: tracker,
		runCtx:  runCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if _, busy := s.byScope[scope]; busy {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("scope %s: %w", scope, ErrScopeBusy)
	}
	s.byScope[scope] = lj
	s.byID[job.ID] = lj
	s.mu.Unlock()

	if err := s.jobs.PutJob(ctx, job); err != nil {
		s.mu.Lock()
		delete(s.byScope, scope)
		delete(s.byID, job.ID)
		s.mu.Unlock()
		cancel()
		return nil, nil, fmt.Errorf("persisting job: %w", err)
	}

	sc := &engine.SyncContext{
		Job:          job,
		Source:       src,
		Graph:        graph,
		Destinations: dests,
		Hashes:       s.hashes,
		Tracker:      tracker,
		Logger:       s.logger,

		Concurrency:      p.Job.Concurrency,
		QueueDepth:       p.Job.QueueDepth,
		FailureThreshold: p.Job.FailureThreshold,
		RetryAttempts:    p.Job.RetryAttempts,
		Timeout:          timeout,
	}
	return sc, lj, nil
}

// Status returns the job record: a live snapshot built from the progress
// tracker while the job runs, the persisted terminal record afterwards.
func (s *Service) Status(ctx context.Context, jobID string) (engine.Job, error) {
	s.mu.Lock()
	lj, live := s.byID[jobID]
	s.mu.Unlock()

	if live {
		snap := lj.tracker.Snapshot()
		return engine.Job{
			ID:     lj.id,
			Scope:  lj.scope,
			Status: engine.StatusRunning,
			Counters: engine.Counters{
				Inserted: snap.Inserted,
				Updated:  snap.Updated,
				Deleted:  snap.Deleted,
				Kept:     snap.Kept,
				Skipped:  snap.Skipped,
			},
		}, nil
	}

	job, ok, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return engine.Job{}, err
	}
	if !ok {
		return engine.Job{}, fmt.Errorf("%s: %w", jobID, ErrJobNotFound)
	}
	return *job, nil
}

// Cancel requests cancellation of a running job. The job drains
// cooperatively and lands CANCELLED; Cancel does not wait for that.
func (s *Service) Cancel(jobID string) error {
	s.mu.Lock()
	lj, live := s.byID[jobID]
	s.mu.Unlock()

	if !live {
		return fmt.Errorf("%s: %w", jobID, ErrJobNotRunning)
	}
	lj.cancel()
	return nil
}

// Await blocks until the job reaches a terminal state, then returns its
// persisted record. Returns early with ctx's error on expiry.
func (s *Service) Await(ctx context.Context, jobID string) (engine.Job, error) {
	s.mu.Lock()
	lj, live := s.byID[jobID]
	s.mu.Unlock()

	if live {
		select {
		case <-lj.done:
		case <-ctx.Done():
			return engine.Job{}, ctx.Err()
		}
	}

	job, ok, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return engine.Job{}, err
	}
	if !ok {
		return engine.Job{}, fmt.Errorf("%s: %w", jobID, ErrJobNotFound)
	}
	return *job, nil
}

// History returns the persisted jobs for a scope, most recent first.
func (s *Service) History(ctx context.Context, scope engine.Scope, limit int) ([]*engine.Job, error) {
	return s.jobs.ListJobs(ctx, scope, limit)
}

// Running reports whether the scope currently has a job in flight.
func (s *Service) Running(scope engine.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.byScope[scope]
	return busy
}

// Shutdown cancels every running job and waits for them to land, up to
// ctx's deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	live := make([]*liveJob, 0, len(s.byID))
	for _, lj := range s.byID {
		live = append(live, lj)
	}
	s.mu.Unlock()

	for _, lj := range live {
		lj.cancel()
	}
	for _, lj := range live {
		select {
		case <-lj.done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown: %w", ctx.Err())
		}
	}
	return nil
}
