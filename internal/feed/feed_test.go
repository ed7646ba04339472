package feed

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/tomtom215/cartographus/internal/eventmodel"
)

func TestSubjectFor_ScopesByStream(t *testing.T) {
	assert.Equal(t, "eventledger.changes.orders1", subjectFor("orders1"))
	assert.NotEqual(t, subjectFor("a"), subjectFor("b"))
}

func TestNewPublisher_RejectsIncompleteConfig(t *testing.T) {
	_, err := NewPublisher(PublisherConfig{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewSubscriber_RejectsIncompleteConfig(t *testing.T) {
	_, err := NewSubscriber(SubscriberConfig{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPublisher_NilPublishChangeIsSafe(t *testing.T) {
	var p *Publisher
	err := p.PublishChange(context.Background(), eventmodel.Event{StreamID: "s1"})
	assert.ErrorIs(t, err, ErrNilPublisher)
}
