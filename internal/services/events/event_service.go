package events

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

// Service implements EventService with an in-process pub/sub pattern.
// Handlers are keyed by a monotonic id so subscriptions can be released
// individually.
type Service struct {
	mu          sync.RWMutex
	nextID      int64
	subscribers map[models.EventType]map[int64]interfaces.EventHandler
	closed      bool
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[models.EventType]map[int64]interfaces.EventHandler),
		logger:      logger,
	}
}

type subscription struct {
	svc       *Service
	eventType models.EventType
	id        int64
	once      sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.svc.mu.Lock()
		defer s.svc.mu.Unlock()
		if handlers, ok := s.svc.subscribers[s.eventType]; ok {
			delete(handlers, s.id)
			if len(handlers) == 0 {
				delete(s.svc.subscribers, s.eventType)
			}
		}
	})
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType models.EventType, handler interfaces.EventHandler) interfaces.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.subscribers[eventType] == nil {
		s.subscribers[eventType] = make(map[int64]interfaces.EventHandler)
	}
	s.subscribers[eventType][id] = handler

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return &subscription{svc: s, eventType: eventType, id: id}
}

func (s *Service) snapshot(eventType models.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	handlers := make([]interfaces.EventHandler, 0, len(s.subscribers[eventType]))
	for _, h := range s.subscribers[eventType] {
		handlers = append(handlers, h)
	}
	return handlers
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event models.Event) {
	handlers := s.snapshot(event.Type)
	if len(handlers) == 0 {
		return
	}

	s.logger.Debug().
		Str("event_type", string(event.Type)).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing event")

	for _, handler := range handlers {
		go handler(ctx, event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (s *Service) PublishSync(ctx context.Context, event models.Event) {
	handlers := s.snapshot(event.Type)
	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			h(ctx, event)
		}(handler)
	}
	wg.Wait()
}

// Close shuts down the event service; later publishes are dropped
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subscribers = make(map[models.EventType]map[int64]interfaces.EventHandler)
	return nil
}
