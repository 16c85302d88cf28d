package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/weftlabs/weft/internal/record"
)

// DefaultDepth is the queue depth used when the caller does not configure
// one. It matches the default worker concurrency so a full queue always
// means every worker is busy, not that buffering is unbounded.
const DefaultDepth = 20

// Source produces the lazy, finite, non-restartable sequence of records for
// one sync run. Implementations call emit once per record; emit blocks while
// the stream's queue is full, which is the backpressure mechanism. Returning
// a non-nil error fails the whole run (source errors are always fatal).
type Source interface {
	// ID returns the source identifier carried on every record.
	ID() string

	// Produce streams records via emit until the sequence is exhausted.
	// Implementations must return promptly once ctx is cancelled; emit
	// returns ctx.Err() in that case so a plain `return err` suffices.
	Produce(ctx context.Context, emit func(record.SourceRecord) error) error
}

// ErrStopped is returned by emit when the stream has been stopped and no
// further records will be accepted.
var ErrStopped = errors.New("stream: stopped")

// Stream decouples record production from consumption through a bounded
// queue. One producer goroutine runs Source.Produce; workers call Next.
//
// Invariants:
//   - at most depth records are buffered at any instant
//   - end-of-stream is observed by every consumer as Next returning ok=false
//   - after a producer failure no further records are delivered, pending
//     consumers are released, and Err returns the failure
type Stream struct {
	source Source
	ch     chan record.SourceRecord

	mu       sync.Mutex
	err      error
	started  bool
	produced int

	logger *slog.Logger
}

// New creates a stream over the given source. depth <= 0 selects
// DefaultDepth.
func New(source Source, depth int, logger *slog.Logger) *Stream {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		source: source,
		ch:     make(chan record.SourceRecord, depth),
		logger: logger,
	}
}

// Start launches the producer goroutine. Must be called exactly once.
// The producer stops early when ctx is cancelled.
func (s *Stream) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		panic("stream: Start called twice")
	}
	s.started = true
	s.mu.Unlock()

	go s.produce(ctx)
}

func (s *Stream) produce(ctx context.Context) {
	// The channel close is the end-of-stream sentinel. It must happen
	// after the error is recorded so consumers that observe the close
	// also observe the error.
	defer close(s.ch)

	emit := func(rec record.SourceRecord) error {
		select {
		case s.ch <- rec:
			s.mu.Lock()
			s.produced++
			n := s.produced
			s.mu.Unlock()
			if n%50 == 0 {
				s.logger.Debug("stream producer progress",
					"produced", n,
					"queued", len(s.ch),
					"depth", cap(s.ch),
				)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := s.source.Produce(ctx, emit)
	switch {
	case err == nil:
		s.mu.Lock()
		n := s.produced
		s.mu.Unlock()
		s.logger.Debug("stream source exhausted", "produced", n)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Cooperative stop, not a source failure.
		s.logger.Debug("stream producer stopped", "reason", err)
	default:
		s.logger.Error("stream producer failed", "error", err)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}

// Next pulls one record. ok=false means end-of-stream: the source is
// exhausted, the producer failed (check Err), or ctx was cancelled. Workers
// must treat ok=false as their exit signal.
func (s *Stream) Next(ctx context.Context) (record.SourceRecord, bool) {
	select {
	case <-ctx.Done():
		return record.SourceRecord{}, false
	case rec, ok := <-s.ch:
		if !ok {
			return record.SourceRecord{}, false
		}
		return rec, true
	}
}

// Err reports the producer failure, if any. Reliable once Next has returned
// ok=false for end-of-stream reasons (the error is recorded before the
// sentinel close).
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Queued returns the number of records currently buffered. Never exceeds
// the configured depth.
func (s *Stream) Queued() int {
	return len(s.ch)
}

// Produced returns how many records the producer has queued so far.
func (s *Stream) Produced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.produced
}
