// internal/poller/write.go
package poller

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	pmodbus "github.com/tamzrod/modbus-master/internal/poller/modbus"
	"github.com/tamzrod/modbus-master/internal/registry"
)

// nextWrite finds the first register, coils before holdings, with an expected
// value that has not been dispatched yet.
func (p *Poller) nextWrite(deviceID uuid.UUID) (registry.Register, bool) {
	for _, t := range registry.WriteOrder {
		for _, r := range p.registers.AllForDevice(deviceID, t) {
			if r.HasExpected() && !r.Pending() {
				return r, true
			}
		}
	}
	return registry.Register{}, false
}

// write sends one expected value to the device.
func (p *Poller) write(d registry.Device, reg registry.Register) error {
	slave, err := p.resolveAddress(d.ID)
	if err != nil {
		return err
	}

	log := p.log.With().
		Str("device", d.ID.String()).
		Uint8("address", slave).
		Str("register", reg.ID.String()).
		Str("type", reg.Type.String()).
		Uint16("register_address", reg.Address).
		Logger()

	err = p.dispatch(slave, reg)

	switch {
	case errors.Is(err, registry.ErrUnsupportedValue):
		log.Error().Err(err).Interface("value", reg.ExpectedValue).Msg("value could not be written")

		if _, clearErr := p.registers.SetExpectedValue(reg.ID, nil); clearErr != nil {
			return errors.Join(err, clearErr)
		}
		return err

	case errors.Is(err, pmodbus.ErrNoResponse):
		// slaves may apply a write without answering
		log.Debug().Err(err).Msg("write not acknowledged, marking as pending")

		if _, err := p.devices.StampWrite(d.ID); err != nil {
			return err
		}
		_, err := p.registers.SetExpectedPending(reg.ID, p.clock.Now())
		return err

	case err != nil:
		log.Error().Err(err).Msg("write failed")

		if _, recErr := p.devices.RecordWriteAttempt(d.ID, false); recErr != nil {
			return errors.Join(err, recErr)
		}
		return err
	}

	log.Debug().Interface("value", reg.ExpectedValue).Msg("value written")

	p.markConnected(d.ID)

	if _, err := p.devices.RecordWriteAttempt(d.ID, true); err != nil {
		return err
	}
	_, err = p.registers.SetExpectedPending(reg.ID, p.clock.Now())
	return err
}

// dispatch encodes the expected value and issues the matching transport call.
// Encoding failures are returned before anything goes on the wire.
func (p *Poller) dispatch(slave uint8, reg registry.Register) error {
	switch reg.Type {
	case registry.RegisterTypeCoil:
		v, err := registry.EncodeCoil(reg.ExpectedValue)
		if err != nil {
			return err
		}
		return p.client.WriteBit(slave, reg.Address, v, pmodbus.FuncWriteSingleCoil)

	case registry.RegisterTypeHolding:
		enc, err := registry.EncodeHolding(reg, reg.ExpectedValue)
		if err != nil {
			return err
		}

		switch enc.Kind {
		case registry.WriteFloat:
			return p.client.WriteFloat(slave, reg.Address, enc.Float)
		case registry.WriteLong:
			return p.client.WriteLong(slave, reg.Address, enc.Long)
		default:
			return p.client.WriteRegister(slave, reg.Address, enc.Word, pmodbus.FuncWriteSingleRegister)
		}

	default:
		return fmt.Errorf("%w: %s register %s", registry.ErrReadOnlyRegister, reg.Type, reg.ID)
	}
}
