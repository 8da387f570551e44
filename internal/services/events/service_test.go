package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/interfaces"
)

func TestPublishSubscribe(t *testing.T) {
	service := NewService(arbor.NewLogger())

	var received []interfaces.Event
	unsubscribe := service.Subscribe(func(e interfaces.Event) {
		received = append(received, e)
	})

	service.Publish(context.Background(), interfaces.Event{Type: "run.started", RunID: "run-1"})
	assert.Len(t, received, 1)
	assert.Equal(t, "run.started", received[0].Type)

	unsubscribe()
	service.Publish(context.Background(), interfaces.Event{Type: "run.finished"})
	assert.Len(t, received, 1, "no delivery after unsubscribe")
}

func TestPublish_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	service := NewService(arbor.NewLogger())

	delivered := 0
	service.Subscribe(func(e interfaces.Event) {
		panic("bad handler")
	})
	service.Subscribe(func(e interfaces.Event) {
		delivered++
	})

	service.Publish(context.Background(), interfaces.Event{Type: "run.started"})
	assert.Equal(t, 1, delivered)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	service := NewService(arbor.NewLogger())
	unsubscribe := service.Subscribe(func(e interfaces.Event) {})
	unsubscribe()
	unsubscribe()
}
