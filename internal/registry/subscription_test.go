package registry

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/store"
)

func newTestSubRegistry(t *testing.T) (*SubscriptionRegistry, *StreamRegistry, *store.Store) {
	s := newTestStore(t)
	sr := NewStreamRegistry(s, zerolog.Nop())
	subr := NewSubscriptionRegistry(s, sr, zerolog.Nop())
	return subr, sr, s
}

func TestSubscriptionRegistry_CreateEarliestInitializesZeroOffsets(t *testing.T) {
	subr, sr, s := newTestSubRegistry(t)
	ctx := context.Background()
	_, err := sr.Create(ctx, "s1", 3, 1)
	require.NoError(t, err)

	_, err = subr.Create(ctx, "s1", "c1", eventmodel.StartEarliest)
	require.NoError(t, err)

	for p := uint32(0); p < 3; p++ {
		raw, err := s.Get(ctx, eventmodel.OffsetPK("s1", "c1"), eventmodel.OffsetSK(p))
		require.NoError(t, err)
		assert.NotEmpty(t, raw)
		var off eventmodel.Offset
		require.NoError(t, json.Unmarshal(raw, &off))
		assert.EqualValues(t, 0, off.Offset)
	}
}

func TestSubscriptionRegistry_CreateLatestUsesCurrentCounter(t *testing.T) {
	subr, sr, s := newTestSubRegistry(t)
	ctx := context.Background()
	_, err := sr.Create(ctx, "s1", 1, 1)
	require.NoError(t, err)

	_, err = s.Increment(ctx, eventmodel.PartitionPK("s1", 0), eventmodel.CounterSK)
	require.NoError(t, err)

	_, err = subr.Create(ctx, "s1", "c1", eventmodel.StartLatest)
	require.NoError(t, err)

	sub, err := subr.Get(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", sub.SubscriptionID)

	raw, err := s.Get(ctx, eventmodel.OffsetPK("s1", "c1"), eventmodel.OffsetSK(0))
	require.NoError(t, err)
	var off eventmodel.Offset
	require.NoError(t, json.Unmarshal(raw, &off))
	assert.EqualValues(t, 1, off.Offset)
}

func TestSubscriptionRegistry_DuplicateCreateFails(t *testing.T) {
	subr, sr, _ := newTestSubRegistry(t)
	ctx := context.Background()
	_, err := sr.Create(ctx, "s1", 1, 1)
	require.NoError(t, err)

	_, err = subr.Create(ctx, "s1", "c1", eventmodel.StartEarliest)
	require.NoError(t, err)
	_, err = subr.Create(ctx, "s1", "c1", eventmodel.StartEarliest)
	assert.Error(t, err)
}

func TestSubscriptionRegistry_UnknownStreamFails(t *testing.T) {
	subr, _, _ := newTestSubRegistry(t)
	_, err := subr.Create(context.Background(), "missing", "c1", eventmodel.StartEarliest)
	assert.Error(t, err)
}
