package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/interfaces"
)

// Service is an in-process pub/sub bus for run lifecycle events.
// Handlers run synchronously on the publisher's goroutine; they must not
// block.
type Service struct {
	mu       sync.RWMutex
	handlers map[int]func(interfaces.Event)
	nextID   int
	logger   arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		handlers: make(map[int]func(interfaces.Event)),
		logger:   logger,
	}
}

// Publish delivers the event to all current subscribers
func (s *Service) Publish(ctx context.Context, event interfaces.Event) {
	s.mu.RLock()
	handlers := make([]func(interfaces.Event), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().
						Str("event_type", event.Type).
						Str("panic", fmt.Sprint(r)).
						Msg("Event handler panicked")
				}
			}()
			h(event)
		}()
	}
}

// Subscribe registers a handler and returns its unsubscribe function
func (s *Service) Subscribe(handler func(interfaces.Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}
