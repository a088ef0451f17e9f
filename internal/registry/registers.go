// internal/registry/registers.go
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RegisterStore holds all register records of all devices.
// It is the single source of truth; callers only ever see value snapshots.
type RegisterStore struct {
	mu     sync.RWMutex
	items  map[uuid.UUID]Register
	byAddr map[slot]uuid.UUID
	sink   Sink
}

// slot is the unique position of a register on its device.
type slot struct {
	device  uuid.UUID
	typ     RegisterType
	address uint16
}

func slotOf(r Register) slot {
	return slot{device: r.DeviceID, typ: r.Type, address: r.Address}
}

// NewRegisterStore creates an empty store publishing changes into sink.
func NewRegisterStore(sink Sink) *RegisterStore {
	return &RegisterStore{
		items:  make(map[uuid.UUID]Register),
		byAddr: make(map[slot]uuid.UUID),
		sink:   sinkOrNop(sink),
	}
}

// ---- lookups ----

func (s *RegisterStore) Get(id uuid.UUID) (Register, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.items[id]
	return r, ok
}

// GetByAddress finds a register by its device, address space and address.
func (s *RegisterStore) GetByAddress(deviceID uuid.UUID, t RegisterType, address uint16) (Register, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddr[slot{device: deviceID, typ: t, address: address}]
	if !ok {
		return Register{}, false
	}
	return s.items[id], true
}

// AllForDevice lists the registers of one address space ordered by address.
func (s *RegisterStore) AllForDevice(deviceID uuid.UUID, t RegisterType) []Register {
	s.mu.RLock()
	out := make([]Register, 0)
	for _, r := range s.items {
		if r.DeviceID == deviceID && r.Type == t {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Count returns how many registers of one address space a device has.
func (s *RegisterStore) Count(deviceID uuid.UUID, t RegisterType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.items {
		if r.DeviceID == deviceID && r.Type == t {
			n++
		}
	}
	return n
}

func (s *RegisterStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// ---- constructors (one per address space) ----

func (s *RegisterStore) AppendDiscrete(deviceID, id uuid.UUID, address uint16) (Register, error) {
	return s.append(Register{
		ID:       id,
		DeviceID: deviceID,
		Type:     RegisterTypeDiscrete,
		Address:  address,
		DataType: DataTypeBoolean,
	})
}

func (s *RegisterStore) AppendCoil(deviceID, id uuid.UUID, address uint16) (Register, error) {
	return s.append(Register{
		ID:       id,
		DeviceID: deviceID,
		Type:     RegisterTypeCoil,
		Address:  address,
		DataType: DataTypeBoolean,
	})
}

func (s *RegisterStore) AppendInput(deviceID, id uuid.UUID, address uint16, dt DataType, decimals int) (Register, error) {
	return s.append(Register{
		ID:       id,
		DeviceID: deviceID,
		Type:     RegisterTypeInput,
		Address:  address,
		DataType: dt,
		Decimals: decimals,
	})
}

func (s *RegisterStore) AppendHolding(deviceID, id uuid.UUID, address uint16, dt DataType, decimals int) (Register, error) {
	return s.append(Register{
		ID:       id,
		DeviceID: deviceID,
		Type:     RegisterTypeHolding,
		Address:  address,
		DataType: dt,
		Decimals: decimals,
	})
}

func (s *RegisterStore) append(r Register) (Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byAddr[slotOf(r)]; ok && owner != r.ID {
		return Register{}, fmt.Errorf("%w: device=%s type=%s address=%d",
			ErrDuplicateRegister, r.DeviceID, r.Type, r.Address)
	}

	if old, ok := s.items[r.ID]; ok {
		delete(s.byAddr, slotOf(old))
	}
	s.items[r.ID] = r
	s.byAddr[slotOf(r)] = r.ID
	return r, nil
}

// ---- removal ----

func (s *RegisterStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.items[id]; ok {
		delete(s.byAddr, slotOf(r))
		delete(s.items, id)
	}
}

// Reset removes registers matching the filter.
// uuid.Nil matches every device, RegisterTypeNone matches every address space.
func (s *RegisterStore) Reset(deviceID uuid.UUID, t RegisterType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deviceID == uuid.Nil && t == RegisterTypeNone {
		s.items = make(map[uuid.UUID]Register)
		s.byAddr = make(map[slot]uuid.UUID)
		return
	}

	for id, r := range s.items {
		if deviceID != uuid.Nil && r.DeviceID != deviceID {
			continue
		}
		if t != RegisterTypeNone && r.Type != t {
			continue
		}
		delete(s.byAddr, slotOf(r))
		delete(s.items, id)
	}
}

// ---- value mutation ----

// SetActualValue stores an observed value. Allowed for every address space.
func (s *RegisterStore) SetActualValue(id uuid.UUID, v any) (Register, error) {
	return s.update(id, func(r *Register) error {
		r.ActualValue = v
		return nil
	})
}

// SetExpectedValue stores a value waiting to be written, or clears it with nil.
// Any assignment clears the pending marker.
func (s *RegisterStore) SetExpectedValue(id uuid.UUID, v any) (Register, error) {
	return s.update(id, func(r *Register) error {
		if !r.Type.Writable() && v != nil {
			return fmt.Errorf("%w: %s register %s", ErrReadOnlyRegister, r.Type, r.ID)
		}
		r.ExpectedValue = v
		r.ExpectedPendingAt = time.Time{}
		return nil
	})
}

// SetExpectedPending marks the expected value as dispatched at ts.
func (s *RegisterStore) SetExpectedPending(id uuid.UUID, ts time.Time) (Register, error) {
	return s.update(id, func(r *Register) error {
		r.ExpectedPendingAt = ts
		return nil
	})
}

func (s *RegisterStore) update(id uuid.UUID, fn func(r *Register) error) (Register, error) {
	s.mu.Lock()

	prev, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return Register{}, fmt.Errorf("%w: %s", ErrRegisterNotFound, id)
	}

	next := prev
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return prev, err
	}
	s.items[id] = next
	s.mu.Unlock()

	// publish after the new record is visible
	s.sink.RegisterChanged(RegisterEvent{Previous: &prev, Updated: next})

	return next, nil
}
