// internal/registry/attributes.go
package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// AttributeStore holds device-level attributes, separate from data registers.
type AttributeStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Attribute
	sink  Sink
}

func NewAttributeStore(sink Sink) *AttributeStore {
	return &AttributeStore{
		items: make(map[uuid.UUID]Attribute),
		sink:  sinkOrNop(sink),
	}
}

func (s *AttributeStore) Get(id uuid.UUID) (Attribute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.items[id]
	return a, ok
}

// GetByType finds the attribute of the given type on a device.
func (s *AttributeStore) GetByType(deviceID uuid.UUID, t AttributeType) (Attribute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.items {
		if a.DeviceID == deviceID && a.Type == t {
			return a, true
		}
	}
	return Attribute{}, false
}

func (s *AttributeStore) AllForDevice(deviceID uuid.UUID) []Attribute {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attribute
	for _, a := range s.items {
		if a.DeviceID == deviceID {
			out = append(out, a)
		}
	}
	return out
}

func (s *AttributeStore) AllByType(t AttributeType) []Attribute {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attribute
	for _, a := range s.items {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// Append inserts an attribute. A device carries at most one attribute per type.
func (s *AttributeStore) Append(deviceID, id uuid.UUID, t AttributeType, value any) (Attribute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.ID != id && existing.DeviceID == deviceID && existing.Type == t {
			return Attribute{}, fmt.Errorf("%w: device=%s type=%s", ErrDuplicateAttribute, deviceID, t)
		}
	}

	a := Attribute{ID: id, DeviceID: deviceID, Type: t, Value: value}
	s.items[id] = a
	return a, nil
}

func (s *AttributeStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// Reset removes every attribute of a device, or all of them for uuid.Nil.
func (s *AttributeStore) Reset(deviceID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deviceID == uuid.Nil {
		s.items = make(map[uuid.UUID]Attribute)
		return
	}
	for id, a := range s.items {
		if a.DeviceID == deviceID {
			delete(s.items, id)
		}
	}
}

// SetValue replaces the attribute value and publishes the change.
func (s *AttributeStore) SetValue(id uuid.UUID, value any) (Attribute, error) {
	s.mu.Lock()

	prev, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return Attribute{}, fmt.Errorf("%w: %s", ErrAttributeNotFound, id)
	}

	next := prev
	next.Value = value
	s.items[id] = next
	s.mu.Unlock()

	s.sink.AttributeChanged(AttributeEvent{Previous: &prev, Updated: next})

	return next, nil
}
