package registry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/ledgererr"
	"github.com/tomtom215/cartographus/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestStreamRegistry(t *testing.T) (*StreamRegistry, *store.Store) {
	s := newTestStore(t)
	return NewStreamRegistry(s, zerolog.Nop()), s
}

func TestStreamRegistry_CreateGet(t *testing.T) {
	r, _ := newTestStreamRegistry(t)
	ctx := context.Background()

	stream, err := r.Create(ctx, "orders1", 1, 168)
	require.NoError(t, err)
	assert.Equal(t, "orders1", stream.StreamID)
	assert.EqualValues(t, 1, stream.PartitionCount)

	got, err := r.Get(ctx, "orders1")
	require.NoError(t, err)
	assert.Equal(t, stream.StreamID, got.StreamID)
}

func TestStreamRegistry_GetMissingReturnsStreamNotFound(t *testing.T) {
	r, _ := newTestStreamRegistry(t)
	_, err := r.Get(context.Background(), "nope")
	lerr, ok := ledgererr.As(err)
	require.True(t, ok)
	assert.Equal(t, ledgererr.CodeStreamNotFound, lerr.Code)
}

func TestStreamRegistry_DuplicateCreateFails(t *testing.T) {
	r, _ := newTestStreamRegistry(t)
	ctx := context.Background()
	_, err := r.Create(ctx, "dup1", 3, 168)
	require.NoError(t, err)

	_, err = r.Create(ctx, "dup1", 3, 168)
	lerr, ok := ledgererr.As(err)
	require.True(t, ok)
	assert.Equal(t, ledgererr.CodeStreamAlreadyExists, lerr.Code)

	got, err := r.Get(ctx, "dup1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.PartitionCount)
}

func TestStreamRegistry_ValidationFailures(t *testing.T) {
	r, _ := newTestStreamRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "", 1, 1)
	assert.Error(t, err)

	_, err = r.Create(ctx, "s", 0, 1)
	assert.Error(t, err)

	_, err = r.Create(ctx, "s", 1, 0)
	assert.Error(t, err)
}

func TestStreamRegistry_List(t *testing.T) {
	r, _ := newTestStreamRegistry(t)
	ctx := context.Background()
	_, err := r.Create(ctx, "a", 1, 1)
	require.NoError(t, err)
	_, err = r.Create(ctx, "b", 1, 1)
	require.NoError(t, err)

	streams, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, streams, 2)
}

func TestStreamRegistry_DeleteCascadesDependents(t *testing.T) {
	s := newTestStore(t)
	sr := NewStreamRegistry(s, zerolog.Nop())
	subr := NewSubscriptionRegistry(s, sr, zerolog.Nop())
	ctx := context.Background()

	_, err := sr.Create(ctx, "cascade1", 2, 1)
	require.NoError(t, err)
	_, err = subr.Create(ctx, "cascade1", "sub1", "earliest")
	require.NoError(t, err)

	require.NoError(t, sr.Delete(ctx, "cascade1"))

	_, err = sr.Get(ctx, "cascade1")
	assert.Error(t, err)
	_, err = subr.Get(ctx, "cascade1", "sub1")
	assert.Error(t, err)

	rows, err := s.ScanPrefix(ctx, "STREAM#cascade1", "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamRegistry_DeleteDoesNotTouchPrefixSharingStream(t *testing.T) {
	r, s := newTestStreamRegistry(t)
	ctx := context.Background()
	_, err := r.Create(ctx, "orders", 1, 1)
	require.NoError(t, err)
	_, err = r.Create(ctx, "orders1", 1, 1)
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "orders"))

	_, err = r.Get(ctx, "orders1")
	assert.NoError(t, err)

	rows, err := s.ScanPrefix(ctx, "STREAM#orders1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}
