package source

import (
	"context"

	"github.com/weftlabs/weft/internal/record"
)

// Memory emits a fixed slice of records, then stops. FailAfter and Err
// inject a producer failure partway through for tests; BeforeEmit, when
// set, runs before each emit and can block or observe.
type Memory struct {
	SourceID string
	Records  []record.SourceRecord

	// FailAfter, when Err is set, is how many records to emit before
	// failing. Err alone fails after the full slice.
	FailAfter int
	Err       error

	BeforeEmit func(ctx context.Context, i int) error
}

func (m *Memory) ID() string { return m.SourceID }

func (m *Memory) Produce(ctx context.Context, emit func(record.SourceRecord) error) error {
	for i, rec := range m.Records {
		if m.Err != nil && m.FailAfter > 0 && i == m.FailAfter {
			return m.Err
		}
		if m.BeforeEmit != nil {
			if err := m.BeforeEmit(ctx, i); err != nil {
				return err
			}
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	if m.Err != nil && m.FailAfter <= 0 {
		return m.Err
	}
	return nil
}
