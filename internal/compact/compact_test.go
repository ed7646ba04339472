package compact

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/store"
)

func newTestCompactor(t *testing.T) *Compactor {
	t.Helper()
	s, err := store.Open(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, zerolog.Nop())
}

func event(seq uint64, data any) eventmodel.Event {
	return eventmodel.Event{
		StreamID: "s1", Partition: 0, Sequence: seq, Key: "x", EventType: "t", Data: data, Timestamp: time.Now().UTC(),
	}
}

func TestApplyChange_FirstWriteCreatesRow(t *testing.T) {
	c := newTestCompactor(t)
	ctx := context.Background()
	require.NoError(t, c.ApplyChange(ctx, event(1, map[string]any{"v": float64(1)})))

	got, err := c.Get(ctx, "s1", "x")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 1, got.Sequence)
}

func TestApplyChange_MonotonicGuardRejectsOlderSequence(t *testing.T) {
	c := newTestCompactor(t)
	ctx := context.Background()
	require.NoError(t, c.ApplyChange(ctx, event(2, map[string]any{"v": float64(2)})))
	require.NoError(t, c.ApplyChange(ctx, event(1, map[string]any{"v": float64(1)})))

	got, err := c.Get(ctx, "s1", "x")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Sequence)
}

func TestApplyChange_IdempotentUnderReplay(t *testing.T) {
	c := newTestCompactor(t)
	ctx := context.Background()
	e := event(1, map[string]any{"v": float64(1)})
	require.NoError(t, c.ApplyChange(ctx, e))
	require.NoError(t, c.ApplyChange(ctx, e))
	require.NoError(t, c.ApplyChange(ctx, e))

	got, err := c.Get(ctx, "s1", "x")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Sequence)
}

func TestApplyChange_MonotoneUnderReplayOrder212(t *testing.T) {
	c := newTestCompactor(t)
	ctx := context.Background()
	e1 := event(1, map[string]any{"v": float64(1)})
	e2 := event(2, map[string]any{"v": float64(2)})

	require.NoError(t, c.ApplyChange(ctx, e2))
	require.NoError(t, c.ApplyChange(ctx, e1))
	require.NoError(t, c.ApplyChange(ctx, e2))

	got, err := c.Get(ctx, "s1", "x")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Sequence)
	assert.Equal(t, map[string]any{"v": float64(2)}, got.Data)
}

func TestApplyChange_SkipsMalformedRecordWithoutError(t *testing.T) {
	c := newTestCompactor(t)
	ctx := context.Background()
	err := c.ApplyChange(ctx, eventmodel.Event{})
	assert.NoError(t, err)
}

func TestGet_AbsentKeyReturnsNilNoError(t *testing.T) {
	c := newTestCompactor(t)
	got, err := c.Get(context.Background(), "s1", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestList_ReturnsAllCompactedKeys(t *testing.T) {
	c := newTestCompactor(t)
	ctx := context.Background()
	require.NoError(t, c.ApplyChange(ctx, eventmodel.Event{StreamID: "s1", Key: "a", Sequence: 1, EventType: "t", Timestamp: time.Now()}))
	require.NoError(t, c.ApplyChange(ctx, eventmodel.Event{StreamID: "s1", Key: "b", Sequence: 1, EventType: "t", Timestamp: time.Now()}))

	list, err := c.List(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
