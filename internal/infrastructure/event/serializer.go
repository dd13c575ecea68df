package event

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/erp/inventory/internal/domain/shared"
)

// EventSerializer encodes domain events as JSON and decodes them through a
// fixed table of factories keyed by event type
type EventSerializer struct {
	factories map[string]eventFactory
}

// NewEventSerializer creates a serializer for every known event type
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: eventFactories}
}

// Serialize serializes a domain event to JSON bytes
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if _, ok := s.factories[event.EventType()]; !ok {
		return nil, fmt.Errorf("unknown event type: %s", event.EventType())
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes JSON bytes into the event type's concrete struct
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	factory, ok := s.factories[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event %s: %w", eventType, err)
	}
	if event.EventType() != eventType {
		return nil, fmt.Errorf("payload carries event type %q, expected %q", event.EventType(), eventType)
	}
	return event, nil
}

// IsRegistered checks if an event type can be deserialized
func (s *EventSerializer) IsRegistered(eventType string) bool {
	_, ok := s.factories[eventType]
	return ok
}

// RegisteredTypes returns all known event types, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	types := make([]string, 0, len(s.factories))
	for t := range s.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
