package sinks

import (
	"context"
	"sync"

	"decharge/gateway/logging"
)

// MemorySink keeps every event in memory. Tests use it to assert on what the
// gateway published.
type MemorySink struct {
	mu     sync.RWMutex
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, logging.CloneEvent(event))
	return nil
}

// Events returns a copy of everything written so far, oldest first.
func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]logging.Event(nil), s.events...)
}

// ByType returns the events of one type, oldest first.
func (s *MemorySink) ByType(eventType logging.EventType) []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []logging.Event
	for _, event := range s.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// Types lists the type of every event in write order.
func (s *MemorySink) Types() []logging.EventType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]logging.EventType, len(s.events))
	for i, event := range s.events {
		types[i] = event.Type
	}
	return types
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
