// internal/poller/builder.go
package poller

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/modbus-master/internal/config"
	pmodbus "github.com/tamzrod/modbus-master/internal/poller/modbus"
	"github.com/tamzrod/modbus-master/internal/registry"
)

// Stores groups the registries a poller works on.
type Stores struct {
	Devices    *registry.DeviceStore
	Attributes *registry.AttributeStore
	Registers  *registry.RegisterStore
}

// Build opens the serial bus and constructs a Poller over the stores.
// The returned closer releases the serial interface.
func Build(m cfg.MasterConfig, st Stores, clock registry.Clock, log zerolog.Logger) (*Poller, func() error, error) {
	client, err := pmodbus.New(pmodbus.Config{
		Interface: m.Serial.Interface,
		BaudRate:  m.Serial.BaudRate,
		DataBits:  m.Serial.DataBits,
		Parity:    m.Serial.Parity,
		StopBits:  m.Serial.StopBits,
		Timeout:   ms(m.Serial.TimeoutMs),
	})
	if err != nil {
		return nil, nil, err
	}

	p, err := New(PollerConfig(m.Poll), client, st.Devices, st.Registers, clock, log)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return p, client.Close, nil
}

// PollerConfig converts the poll section into engine settings.
func PollerConfig(p cfg.PollConfig) Config {
	return Config{
		Interval:             ms(p.IntervalMs),
		MaxTransmitAttempts:  p.MaxTransmitAttempts,
		CommunicationDelay:   ms(p.CommunicationDelayMs),
		LostRetryDelay:       ms(p.LostDelayMs),
		MaxReadableRegisters: p.MaxReadableRegisters,
	}
}

// Seed registers the configured devices with their attributes and registers.
// The configuration must be validated and normalized.
func Seed(devices []cfg.DeviceConfig, st Stores) error {
	for _, d := range devices {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return fmt.Errorf("device %s: %w", d.Name, err)
		}

		enabled := d.Enabled == nil || *d.Enabled
		st.Devices.Append(id,
			registry.WithEnabled(enabled),
			registry.WithSamplingTime(ms(d.SamplingMs)),
		)

		if err := seedAttributes(id, d, st.Attributes); err != nil {
			return fmt.Errorf("device %s: %w", d.Name, err)
		}
		if err := seedRegisters(id, d.Registers, st.Registers); err != nil {
			return fmt.Errorf("device %s: %w", d.Name, err)
		}
	}
	return nil
}

func seedAttributes(deviceID uuid.UUID, d cfg.DeviceConfig, attrs *registry.AttributeStore) error {
	values := map[registry.AttributeType]any{
		registry.AttributeState: d.State,
	}
	if d.Address != nil {
		values[registry.AttributeAddress] = *d.Address
	}
	if d.SerialNumber != "" {
		values[registry.AttributeSerialNumber] = d.SerialNumber
	}
	if d.FirmwareVersion != "" {
		values[registry.AttributeFirmwareVersion] = d.FirmwareVersion
	}
	if d.HardwareVersion != "" {
		values[registry.AttributeHardwareVersion] = d.HardwareVersion
	}

	for t, v := range values {
		id := uuid.NewSHA1(deviceID, []byte("attribute/"+string(t)))
		if _, err := attrs.Append(deviceID, id, t, v); err != nil {
			return err
		}
	}
	return nil
}

func seedRegisters(deviceID uuid.UUID, regs []cfg.RegisterConfig, store *registry.RegisterStore) error {
	for _, r := range regs {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return fmt.Errorf("register %s/%d: %w", r.Type, r.Address, err)
		}

		t, _ := registry.ParseRegisterType(r.Type)
		dt, _ := registry.ParseDataType(r.DataType)

		var reg registry.Register
		switch t {
		case registry.RegisterTypeDiscrete:
			reg, err = store.AppendDiscrete(deviceID, id, r.Address)
		case registry.RegisterTypeCoil:
			reg, err = store.AppendCoil(deviceID, id, r.Address)
		case registry.RegisterTypeInput:
			reg, err = store.AppendInput(deviceID, id, r.Address, dt, r.Decimals)
		case registry.RegisterTypeHolding:
			reg, err = store.AppendHolding(deviceID, id, r.Address, dt, r.Decimals)
		default:
			err = fmt.Errorf("unknown register type %q", r.Type)
		}
		if err != nil {
			return err
		}

		if r.Expected != nil {
			if _, err := store.SetExpectedValue(reg.ID, r.Expected); err != nil {
				return err
			}
		}
	}
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
