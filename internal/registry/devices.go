// internal/registry/devices.go
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/modbus-master/internal/status"
)

// MaxSlaveAddress is the highest unicast Modbus slave id.
const MaxSlaveAddress = 247

// DeviceStore holds per-device runtime state.
// Connection state and bus address live in the AttributeStore and are
// reached through this store only.
type DeviceStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Device
	order []uuid.UUID

	attributes *AttributeStore
	registers  *RegisterStore
	clock      Clock
}

// DeviceOption customises a device at registration time.
type DeviceOption func(*Device)

// WithEnabled sets the initial enabled flag.
func WithEnabled(enabled bool) DeviceOption {
	return func(d *Device) { d.Enabled = enabled }
}

// WithSamplingTime sets the interval between read scans.
func WithSamplingTime(d time.Duration) DeviceOption {
	return func(dev *Device) { dev.SamplingTime = d }
}

func NewDeviceStore(attributes *AttributeStore, registers *RegisterStore, clock Clock) *DeviceStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &DeviceStore{
		items:      make(map[uuid.UUID]Device),
		attributes: attributes,
		registers:  registers,
		clock:      clock,
	}
}

// ---- lookups ----

func (s *DeviceStore) Get(id uuid.UUID) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.items[id]
	return d, ok
}

// All returns a snapshot of every device in registration order.
func (s *DeviceStore) All() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Device, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

func (s *DeviceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// ---- lifecycle ----

// Append registers a device. Devices start disabled unless WithEnabled says otherwise.
func (s *DeviceStore) Append(id uuid.UUID, opts ...DeviceOption) Device {
	d := Device{ID: id}
	for _, opt := range opts {
		opt(&d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = d
	return d
}

// Remove deletes a device together with its attributes and registers.
func (s *DeviceStore) Remove(id uuid.UUID) {
	s.mu.Lock()
	_, ok := s.items[id]
	if ok {
		delete(s.items, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.attributes.Reset(id)
	s.registers.Reset(id, RegisterTypeNone)
}

// Reset removes every device and everything that belongs to them.
func (s *DeviceStore) Reset() {
	s.mu.Lock()
	ids := s.order
	s.items = make(map[uuid.UUID]Device)
	s.order = nil
	s.mu.Unlock()

	for _, id := range ids {
		s.attributes.Reset(id)
		s.registers.Reset(id, RegisterTypeNone)
	}
}

func (s *DeviceStore) Enable(id uuid.UUID) (Device, error) {
	return s.update(id, func(d *Device) { d.Enabled = true })
}

func (s *DeviceStore) Disable(id uuid.UUID) (Device, error) {
	return s.update(id, func(d *Device) { d.Enabled = false })
}

// ---- attributes ----

// Address resolves the slave id from the ADDRESS attribute.
// It reports false when the attribute is missing, not an integer or out of range.
func (s *DeviceStore) Address(id uuid.UUID) (uint8, bool) {
	a, ok := s.attributes.GetByType(id, AttributeAddress)
	if !ok {
		return 0, false
	}

	v, ok := asInt(a.Value)
	if !ok || v < 0 || v > MaxSlaveAddress {
		return 0, false
	}
	return uint8(v), true
}

// State reads the STATE attribute. Missing or unparsable values read as unknown.
func (s *DeviceStore) State(id uuid.UUID) status.State {
	a, ok := s.attributes.GetByType(id, AttributeState)
	if !ok {
		return status.StateUnknown
	}
	st, _ := status.Parse(a.Value)
	return st
}

// SetState writes the STATE attribute.
//
// A real change of state clears the lost timestamp, the transmit attempts and
// both packet timestamps. Entering LOST additionally stamps LostAt with now.
func (s *DeviceStore) SetState(id uuid.UUID, st status.State) (Device, error) {
	if _, ok := s.Get(id); !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	attr, ok := s.attributes.GetByType(id, AttributeState)
	if !ok {
		return Device{}, fmt.Errorf("%w: device %s has no state attribute", ErrAttributeNotFound, id)
	}

	current, _ := status.Parse(attr.Value)
	changed := current != st
	if changed {
		if _, err := s.attributes.SetValue(attr.ID, string(st)); err != nil {
			return Device{}, err
		}
	}

	now := s.clock.Now()

	return s.update(id, func(d *Device) {
		if changed {
			resetCommunication(d, time.Time{})
		}
		if st == status.StateLost {
			resetCommunication(d, now)
		}
	})
}

// ResetCommunication is the device-lost reset path: attempts and packet
// timestamps are cleared and the lost backoff restarts from now.
// The STATE attribute is left untouched.
func (s *DeviceStore) ResetCommunication(id uuid.UUID) (Device, error) {
	now := s.clock.Now()
	return s.update(id, func(d *Device) { resetCommunication(d, now) })
}

func resetCommunication(d *Device, lostAt time.Time) {
	d.LostAt = lostAt
	d.TransmitAttempts = 0
	d.LastWriteAt = time.Time{}
	d.LastReadAt = time.Time{}
}

// ---- timers & counters ----

// RecordWriteAttempt stamps the write packet time and updates the failure counter.
func (s *DeviceStore) RecordWriteAttempt(id uuid.UUID, success bool) (Device, error) {
	now := s.clock.Now()
	return s.update(id, func(d *Device) {
		d.LastWriteAt = now
		countAttempt(d, success)
	})
}

// StampWrite records that a write packet went out without touching the
// failure counter.
func (s *DeviceStore) StampWrite(id uuid.UUID) (Device, error) {
	now := s.clock.Now()
	return s.update(id, func(d *Device) { d.LastWriteAt = now })
}

// RecordReadAttempt stamps the read packet time and updates the failure counter.
func (s *DeviceStore) RecordReadAttempt(id uuid.UUID, success bool) (Device, error) {
	now := s.clock.Now()
	return s.update(id, func(d *Device) {
		d.LastReadAt = now
		countAttempt(d, success)
	})
}

func countAttempt(d *Device, success bool) {
	if success {
		d.TransmitAttempts = 0
		return
	}
	d.TransmitAttempts++
}

// ---- reading cursor ----

func (s *DeviceStore) SetReadingCursor(id uuid.UUID, t RegisterType, address uint16) (Device, error) {
	return s.update(id, func(d *Device) { d.Cursor = Cursor{Type: t, Address: address} })
}

func (s *DeviceStore) ClearReadingCursor(id uuid.UUID) (Device, error) {
	return s.update(id, func(d *Device) { d.Cursor = Cursor{} })
}

func (s *DeviceStore) update(id uuid.UUID, fn func(d *Device)) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.items[id]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	fn(&d)
	s.items[id] = d
	return d, nil
}
