package poll

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/publish"
	"github.com/tomtom215/cartographus/internal/registry"
	"github.com/tomtom215/cartographus/internal/store"
)

type harness struct {
	engine *Engine
	pub    *publish.Publisher
	sr     *registry.StreamRegistry
	subr   *registry.SubscriptionRegistry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := store.Open(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	sr := registry.NewStreamRegistry(s, zerolog.Nop())
	subr := registry.NewSubscriptionRegistry(s, sr, zerolog.Nop())
	pub := publish.New(s, sr, nil, zerolog.Nop())
	engine := New(s, sr, subr, zerolog.Nop())
	return &harness{engine: engine, pub: pub, sr: sr, subr: subr}
}

func TestPollCommitRoundTrip_SinglePartition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.sr.Create(ctx, "orders1", 1, 1)
	require.NoError(t, err)
	_, err = h.subr.Create(ctx, "orders1", "s1", eventmodel.StartEarliest)
	require.NoError(t, err)

	events := make([]eventmodel.PublishEvent, 5)
	for i := range events {
		events[i] = eventmodel.PublishEvent{Key: "k1", EventType: "counter.incremented", Data: map[string]any{"value": i + 1}}
	}
	_, err = h.pub.Publish(ctx, "orders1", events)
	require.NoError(t, err)

	res, err := h.engine.Poll(ctx, "orders1", "s1", 10)
	require.NoError(t, err)
	require.Len(t, res.Events, 5)
	for i, ev := range res.Events {
		assert.EqualValues(t, i+1, ev.Sequence)
		assert.Equal(t, "k1", ev.Key)
	}

	require.NoError(t, h.engine.Commit(ctx, "orders1", "s1", res.Cursor))

	res2, err := h.engine.Poll(ctx, "orders1", "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, res2.Events)
}

func TestPoll_LatestStartSeesOnlyNewEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.sr.Create(ctx, "late1", 1, 1)
	require.NoError(t, err)

	_, err = h.pub.Publish(ctx, "late1", []eventmodel.PublishEvent{{Key: "a", EventType: "t", Data: 1}})
	require.NoError(t, err)

	_, err = h.subr.Create(ctx, "late1", "s1", eventmodel.StartLatest)
	require.NoError(t, err)

	res, err := h.engine.Poll(ctx, "late1", "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	_, err = h.pub.Publish(ctx, "late1", []eventmodel.PublishEvent{{Key: "b", EventType: "t", Data: 2}})
	require.NoError(t, err)

	res2, err := h.engine.Poll(ctx, "late1", "s1", 10)
	require.NoError(t, err)
	require.Len(t, res2.Events, 1)
	assert.Equal(t, "b", res2.Events[0].Key)
}

func TestCursor_RoundTripsThroughJSON(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.sr.Create(ctx, "s1", 1, 1)
	require.NoError(t, err)
	_, err = h.subr.Create(ctx, "s1", "c1", eventmodel.StartEarliest)
	require.NoError(t, err)
	_, err = h.pub.Publish(ctx, "s1", []eventmodel.PublishEvent{{Key: "a", EventType: "t", Data: 1}})
	require.NoError(t, err)

	res, err := h.engine.Poll(ctx, "s1", "c1", 10)
	require.NoError(t, err)

	decoded, err := Decode(res.Cursor)
	require.NoError(t, err)
	require.Len(t, decoded.Offsets, 1)
	assert.EqualValues(t, 0, decoded.Offsets[0].Partition)

	reEncoded, err := Encode(decoded)
	require.NoError(t, err)
	assert.NoError(t, h.engine.Commit(ctx, "s1", "c1", reEncoded))
}

func TestCommit_RejectsCursorWithOutOfRangePartition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.sr.Create(ctx, "s1", 2, 1)
	require.NoError(t, err)
	_, err = h.subr.Create(ctx, "s1", "c1", eventmodel.StartEarliest)
	require.NoError(t, err)

	cursor, err := Encode(Cursor{Offsets: []PartitionOffset{{Partition: 5, Offset: 1}}})
	require.NoError(t, err)

	err = h.engine.Commit(ctx, "s1", "c1", cursor)
	assert.Error(t, err)
}

func TestCommit_RejectsMalformedCursor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.sr.Create(ctx, "s1", 1, 1)
	require.NoError(t, err)
	_, err = h.subr.Create(ctx, "s1", "c1", eventmodel.StartEarliest)
	require.NoError(t, err)

	err = h.engine.Commit(ctx, "s1", "c1", "not-valid-base64url!!!")
	assert.Error(t, err)
}

func TestCommit_AllowsRewind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.sr.Create(ctx, "s1", 1, 1)
	require.NoError(t, err)
	_, err = h.subr.Create(ctx, "s1", "c1", eventmodel.StartEarliest)
	require.NoError(t, err)

	forward, err := Encode(Cursor{Offsets: []PartitionOffset{{Partition: 0, Offset: 5}}})
	require.NoError(t, err)
	require.NoError(t, h.engine.Commit(ctx, "s1", "c1", forward))

	backward, err := Encode(Cursor{Offsets: []PartitionOffset{{Partition: 0, Offset: 1}}})
	require.NoError(t, err)
	assert.NoError(t, h.engine.Commit(ctx, "s1", "c1", backward))
}
