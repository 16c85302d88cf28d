package dest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/record"
)

func routed(naturalID, variant string) record.RoutedRecord {
	return record.RoutedRecord{
		Lineage:   "files/" + naturalID,
		SourceID:  "files",
		NaturalID: naturalID,
		Payload:   record.Object{"id": record.String(naturalID), "variant": record.String(variant)},
		Targets:   []string{"out"},
	}
}

func TestMemory_UpsertIdempotent(t *testing.T) {
	m := NewMemory("out")
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, routed("a", "x")))
	require.NoError(t, m.Upsert(ctx, routed("a", "x")))

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, m.Upserts())
}

func TestMemory_FanOutSiblingsCoexist(t *testing.T) {
	m := NewMemory("out")
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, routed("a", "upper")))
	require.NoError(t, m.Upsert(ctx, routed("a", "lower")))
	assert.Equal(t, 2, m.Len())

	// One delete clears both siblings.
	require.NoError(t, m.Delete(ctx, "files", "a"))
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.NaturalIDs())
}

func TestMemory_DeleteAbsentIsNoError(t *testing.T) {
	m := NewMemory("out")
	require.NoError(t, m.Delete(context.Background(), "files", "ghost"))
	assert.Equal(t, 1, m.Deletes())
}

func TestMemory_FailureInjection(t *testing.T) {
	m := NewMemory("out")
	boom := errors.New("refused")
	m.FailUpsert = func(rec record.RoutedRecord) error {
		if rec.NaturalID == "bad" {
			return boom
		}
		return nil
	}

	require.NoError(t, m.Upsert(context.Background(), routed("good", "x")))
	assert.ErrorIs(t, m.Upsert(context.Background(), routed("bad", "x")), boom)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_HonoursCancelledContext(t *testing.T) {
	m := NewMemory("out")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Upsert(ctx, routed("a", "x")), context.Canceled)
	assert.ErrorIs(t, m.Delete(ctx, "files", "a"), context.Canceled)
	assert.Equal(t, 0, m.Len())
}
