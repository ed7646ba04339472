package publish

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/cartographus/internal/eventmodel"
	"github.com/tomtom215/cartographus/internal/registry"
	"github.com/tomtom215/cartographus/internal/store"
)

type recordingNotifier struct {
	changes []eventmodel.Event
}

func (r *recordingNotifier) Notify(_ context.Context, change eventmodel.Event) error {
	r.changes = append(r.changes, change)
	return nil
}

func newHarness(t *testing.T) (*Publisher, *registry.StreamRegistry, *recordingNotifier) {
	t.Helper()
	s, err := store.Open(t.TempDir(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	sr := registry.NewStreamRegistry(s, zerolog.Nop())
	notifier := &recordingNotifier{}
	pub := New(s, sr, notifier, zerolog.Nop())
	return pub, sr, notifier
}

func TestPublish_SinglePartitionContiguousSequences(t *testing.T) {
	pub, sr, _ := newHarness(t)
	ctx := context.Background()
	_, err := sr.Create(ctx, "orders1", 1, 1)
	require.NoError(t, err)

	events := make([]eventmodel.PublishEvent, 5)
	for i := range events {
		events[i] = eventmodel.PublishEvent{Key: "k1", EventType: "counter.incremented", Data: map[string]any{"value": i + 1}}
	}
	refs, err := pub.Publish(ctx, "orders1", events)
	require.NoError(t, err)
	require.Len(t, refs, 5)
	for i, ref := range refs {
		assert.EqualValues(t, i+1, ref.Sequence)
		assert.Equal(t, uint32(0), ref.Partition)
	}
}

func TestPublish_KeyAffinity(t *testing.T) {
	pub, sr, _ := newHarness(t)
	ctx := context.Background()
	_, err := sr.Create(ctx, "aff1", 10, 1)
	require.NoError(t, err)

	events := make([]eventmodel.PublishEvent, 10)
	for i := range events {
		events[i] = eventmodel.PublishEvent{Key: "abc", EventType: "t", Data: nil}
	}
	refs, err := pub.Publish(ctx, "aff1", events)
	require.NoError(t, err)
	first := refs[0].Partition
	for _, r := range refs {
		assert.Equal(t, first, r.Partition)
	}
}

func TestPublish_UnknownStreamFails(t *testing.T) {
	pub, _, _ := newHarness(t)
	_, err := pub.Publish(context.Background(), "nope", []eventmodel.PublishEvent{{Key: "k", EventType: "t"}})
	assert.Error(t, err)
}

func TestPublish_EmptyBatchRejected(t *testing.T) {
	pub, sr, _ := newHarness(t)
	ctx := context.Background()
	_, err := sr.Create(ctx, "s1", 1, 1)
	require.NoError(t, err)
	_, err = pub.Publish(ctx, "s1", nil)
	assert.Error(t, err)
}

func TestPublish_EmptyKeyRejected(t *testing.T) {
	pub, sr, _ := newHarness(t)
	ctx := context.Background()
	_, err := sr.Create(ctx, "s1", 1, 1)
	require.NoError(t, err)
	_, err = pub.Publish(ctx, "s1", []eventmodel.PublishEvent{{Key: "", EventType: "t"}})
	assert.Error(t, err)
}

func TestPublish_NotifiesChangeOnEachEvent(t *testing.T) {
	pub, sr, notifier := newHarness(t)
	ctx := context.Background()
	_, err := sr.Create(ctx, "s1", 1, 1)
	require.NoError(t, err)
	_, err = pub.Publish(ctx, "s1", []eventmodel.PublishEvent{{Key: "k", EventType: "t", Data: 1}})
	require.NoError(t, err)
	require.Len(t, notifier.changes, 1)
	assert.Equal(t, "k", notifier.changes[0].Key)
}

func TestPublish_ValidatesWholeBatchBeforeWritingAny(t *testing.T) {
	pub, sr, _ := newHarness(t)
	ctx := context.Background()
	_, err := sr.Create(ctx, "s1", 1, 1)
	require.NoError(t, err)

	events := []eventmodel.PublishEvent{
		{Key: "k1", EventType: "t", Data: 1},
		{Key: "", EventType: "t", Data: 2},
	}
	refs, err := pub.Publish(ctx, "s1", events)
	assert.Error(t, err)
	assert.Empty(t, refs)
}
