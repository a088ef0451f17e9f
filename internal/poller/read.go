// internal/poller/read.go
package poller

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	pmodbus "github.com/tamzrod/modbus-master/internal/poller/modbus"
	"github.com/tamzrod/modbus-master/internal/registry"
)

// read fetches the next chunk of registers the device's cursor points at.
func (p *Poller) read(d registry.Device) error {
	slave, err := p.resolveAddress(d.ID)
	if err != nil {
		return err
	}

	count := func(t registry.RegisterType) int { return p.registers.Count(d.ID, t) }

	t, start := d.Cursor.Type, int(d.Cursor.Address)
	if t == registry.RegisterTypeNone || count(t) == 0 {
		var ok bool
		if t, ok = firstNonEmpty(registry.RegisterTypeNone, count); !ok {
			// nothing configured to read
			if !d.Cursor.IsZero() {
				_, err = p.devices.ClearReadingCursor(d.ID)
			}
			return err
		}
		start = 0
	}

	size := count(t)
	length := chunkLength(size, start, p.cfg.MaxReadableRegisters)
	if length <= 0 {
		_, err = p.devices.ClearReadingCursor(d.ID)
		return err
	}
	length, words := p.widen(d.ID, t, start, length)

	log := p.log.With().
		Str("device", d.ID.String()).
		Uint8("address", slave).
		Str("type", t.String()).
		Int("start", start).
		Int("length", length).
		Logger()

	values, err := p.fetch(slave, t, uint16(start), uint16(words))
	if err != nil {
		if errors.Is(err, pmodbus.ErrNoResponse) {
			log.Debug().Err(err).Msg("read not answered")
		} else {
			log.Error().Err(err).Msg("read failed")
		}

		if _, recErr := p.devices.RecordReadAttempt(d.ID, false); recErr != nil {
			return errors.Join(err, recErr)
		}
		return err
	}

	for i := 0; i < length && i < len(values); i++ {
		reg, ok := p.registers.GetByAddress(d.ID, t, uint16(start+i))
		if !ok {
			continue
		}

		value, ok := decode(reg, values, i)
		if !ok {
			log.Warn().Str("register", reg.ID.String()).Msg("register value incomplete in chunk")
			continue
		}
		if err := p.store(reg, value); err != nil {
			log.Error().Err(err).Str("register", reg.ID.String()).Msg("value not stored")
		}
	}

	log.Debug().Msg("chunk read")

	p.markConnected(d.ID)

	if _, err := p.devices.RecordReadAttempt(d.ID, true); err != nil {
		return err
	}

	next := nextCursor(t, start+length, size, count)
	if next.IsZero() {
		_, err = p.devices.ClearReadingCursor(d.ID)
	} else {
		_, err = p.devices.SetReadingCursor(d.ID, next.Type, next.Address)
	}
	return err
}

// fetch issues the read for one address space. Bit reads are widened to any
// so both shapes share the store path.
func (p *Poller) fetch(slave uint8, t registry.RegisterType, start, length uint16) ([]any, error) {
	switch t {
	case registry.RegisterTypeDiscrete, registry.RegisterTypeCoil:
		fn := pmodbus.FuncReadDiscreteInputs
		if t == registry.RegisterTypeCoil {
			fn = pmodbus.FuncReadCoils
		}

		bits, err := p.client.ReadBits(slave, start, length, fn)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(bits))
		for i, b := range bits {
			out[i] = b
		}
		return out, nil

	case registry.RegisterTypeInput, registry.RegisterTypeHolding:
		fn := pmodbus.FuncReadInputRegisters
		if t == registry.RegisterTypeHolding {
			fn = pmodbus.FuncReadHoldingRegisters
		}

		regs, err := p.client.ReadRegisters(slave, start, length, fn)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(regs))
		for i, r := range regs {
			out[i] = r
		}
		return out, nil

	default:
		return nil, fmt.Errorf("poller: cannot read %s registers", t)
	}
}

// widen returns the chunk length and the number of words to request. A chunk
// ending on the high word of a 32-bit register reads one word more; a full
// chunk is shortened instead so that register starts the next one.
func (p *Poller) widen(deviceID uuid.UUID, t registry.RegisterType, start, length int) (int, int) {
	if t.Bits() {
		return length, length
	}

	last, ok := p.registers.GetByAddress(deviceID, t, uint16(start+length-1))
	if !ok || last.DataType.Words() < 2 {
		return length, length
	}
	if length < p.cfg.MaxReadableRegisters || length == 1 {
		return length, length + 1
	}
	return length - 1, length - 1
}

// decode turns the raw value at values[i] into the register's value.
// 32-bit registers also consume values[i+1].
func decode(reg registry.Register, values []any, i int) (any, bool) {
	switch v := values[i].(type) {
	case bool:
		return registry.DecodeBit(v), true
	case uint16:
		if reg.DataType.Words() < 2 {
			return registry.DecodeRegister(reg, v), true
		}
		if i+1 >= len(values) {
			return nil, false
		}
		lo, ok := values[i+1].(uint16)
		if !ok {
			return nil, false
		}
		return registry.DecodeWords(reg, v, lo), true
	default:
		return nil, false
	}
}

// store writes the decoded value into the register and confirms a pending
// write when the device now reports the expected value.
func (p *Poller) store(reg registry.Register, value any) error {
	if _, err := p.registers.SetActualValue(reg.ID, value); err != nil {
		return err
	}

	if reg.Pending() && registry.Equal(reg.ExpectedValue, value) {
		_, err := p.registers.SetExpectedValue(reg.ID, nil)
		return err
	}
	return nil
}
