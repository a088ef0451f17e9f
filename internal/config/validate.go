// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/tamzrod/modbus-master/internal/registry"
	"github.com/tamzrod/modbus-master/internal/status"
)

const maxDecimals = 9

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	m := cfg.Master

	// ------------------------------------------------------------
	// SERIAL BUS
	// ------------------------------------------------------------

	switch strings.ToUpper(m.Serial.Parity) {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("serial: parity must be N, E or O, got %q", m.Serial.Parity)
	}
	if m.Serial.BaudRate < 0 || m.Serial.DataBits < 0 || m.Serial.StopBits < 0 || m.Serial.TimeoutMs < 0 {
		return fmt.Errorf("serial: numeric settings must not be negative")
	}
	if m.Serial.DataBits != 0 && (m.Serial.DataBits < 5 || m.Serial.DataBits > 8) {
		return fmt.Errorf("serial: data_bits must be 5..8, got %d", m.Serial.DataBits)
	}
	if m.Serial.StopBits > 2 {
		return fmt.Errorf("serial: stop_bits must be 1 or 2, got %d", m.Serial.StopBits)
	}

	// ------------------------------------------------------------
	// POLL / LOGGING
	// ------------------------------------------------------------

	p := m.Poll
	if p.IntervalMs < 0 || p.MaxTransmitAttempts < 0 || p.CommunicationDelayMs < 0 || p.LostDelayMs < 0 {
		return fmt.Errorf("poll: settings must not be negative")
	}
	if p.MaxReadableRegisters < 0 || p.MaxReadableRegisters > 125 {
		return fmt.Errorf("poll: max_readable_registers must be 1..125, got %d", p.MaxReadableRegisters)
	}

	switch strings.ToLower(m.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging: format must be console or json, got %q", m.Logging.Format)
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	devices := make(map[string]string)

	for i, d := range m.Devices {
		label := d.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		id, err := DeviceID(d)
		if err != nil {
			return fmt.Errorf("device %s: %w", label, err)
		}
		if prev, exists := devices[id.String()]; exists {
			return fmt.Errorf("device %s: id %s already used by device %s", label, id, prev)
		}
		devices[id.String()] = label

		if d.Address != nil && (*d.Address < 0 || *d.Address > registry.MaxSlaveAddress) {
			return fmt.Errorf("device %s: address must be 0..%d, got %d", label, registry.MaxSlaveAddress, *d.Address)
		}
		if d.State != "" {
			if _, ok := status.Parse(d.State); !ok {
				return fmt.Errorf("device %s: unknown state %q", label, d.State)
			}
		}
		if d.SamplingMs < 0 {
			return fmt.Errorf("device %s: sampling_ms must not be negative", label)
		}

		if err := validateRegisters(d.Registers); err != nil {
			return fmt.Errorf("device %s: %w", label, err)
		}
	}

	return nil
}

func validateRegisters(regs []RegisterConfig) error {
	type slot struct {
		t       registry.RegisterType
		address uint16
	}
	used := make(map[slot]struct{})

	for _, r := range regs {
		t, ok := registry.ParseRegisterType(r.Type)
		if !ok {
			return fmt.Errorf("register %d: unknown type %q", r.Address, r.Type)
		}

		key := slot{t: t, address: r.Address}
		if _, exists := used[key]; exists {
			return fmt.Errorf("register %s/%d: defined twice", t, r.Address)
		}
		used[key] = struct{}{}

		if r.ID != "" {
			if _, err := parseUUID(r.ID); err != nil {
				return fmt.Errorf("register %s/%d: %w", t, r.Address, err)
			}
		}

		if r.DataType != "" {
			dt, ok := registry.ParseDataType(r.DataType)
			if !ok {
				return fmt.Errorf("register %s/%d: unknown data type %q", t, r.Address, r.DataType)
			}
			if t.Bits() && dt != registry.DataTypeBoolean {
				return fmt.Errorf("register %s/%d: bit registers are boolean only", t, r.Address)
			}
		}

		if r.Decimals < 0 || r.Decimals > maxDecimals {
			return fmt.Errorf("register %s/%d: decimals must be 0..%d", t, r.Address, maxDecimals)
		}
		if r.Decimals > 0 && t.Bits() {
			return fmt.Errorf("register %s/%d: decimals apply to input/holding registers only", t, r.Address)
		}

		if r.Expected != nil && !t.Writable() {
			return fmt.Errorf("register %s/%d: expected value on a read-only register", t, r.Address)
		}
	}

	return nil
}
