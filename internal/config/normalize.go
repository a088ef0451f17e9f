// internal/config/normalize.go
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tamzrod/modbus-master/internal/registry"
	"github.com/tamzrod/modbus-master/internal/status"
)

// Defaults applied by Normalize.
const (
	DefaultInterface  = "/dev/ttyAMA0"
	DefaultBaudRate   = 9600
	DefaultDataBits   = 8
	DefaultParity     = "N"
	DefaultStopBits   = 1
	DefaultTimeoutMs  = 200
	DefaultSamplingMs = 1000

	DefaultIntervalMs           = 10
	DefaultMaxTransmitAttempts  = 5
	DefaultCommunicationDelayMs = 500
	DefaultLostDelayMs          = 15000
	DefaultMaxReadableRegisters = 125

	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
	DefaultNotifyPrefix = "modbus"
	DefaultMQTTClientID = "modbus-master"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	m := &cfg.Master

	// ---- serial ----
	setDefault(&m.Serial.Interface, DefaultInterface)
	setDefaultInt(&m.Serial.BaudRate, DefaultBaudRate)
	setDefaultInt(&m.Serial.DataBits, DefaultDataBits)
	setDefault(&m.Serial.Parity, DefaultParity)
	m.Serial.Parity = strings.ToUpper(m.Serial.Parity)
	setDefaultInt(&m.Serial.StopBits, DefaultStopBits)
	setDefaultInt(&m.Serial.TimeoutMs, DefaultTimeoutMs)

	// ---- poll ----
	setDefaultInt(&m.Poll.IntervalMs, DefaultIntervalMs)
	setDefaultInt(&m.Poll.MaxTransmitAttempts, DefaultMaxTransmitAttempts)
	setDefaultInt(&m.Poll.CommunicationDelayMs, DefaultCommunicationDelayMs)
	setDefaultInt(&m.Poll.LostDelayMs, DefaultLostDelayMs)
	setDefaultInt(&m.Poll.MaxReadableRegisters, DefaultMaxReadableRegisters)

	// ---- logging / notify ----
	setDefault(&m.Logging.Level, DefaultLogLevel)
	setDefault(&m.Logging.Format, DefaultLogFormat)
	m.Logging.Format = strings.ToLower(m.Logging.Format)
	setDefault(&m.Notify.NATS.SubjectPrefix, DefaultNotifyPrefix)
	setDefault(&m.Notify.MQTT.TopicPrefix, DefaultNotifyPrefix)
	setDefault(&m.Notify.MQTT.ClientID, DefaultMQTTClientID)

	// ---- devices ----
	for di := range m.Devices {
		d := &m.Devices[di]

		id, _ := DeviceID(*d) // validated
		d.ID = id.String()

		if d.Enabled == nil {
			enabled := true
			d.Enabled = &enabled
		}
		if d.State == "" {
			d.State = string(status.StateUnknown)
		} else {
			st, _ := status.Parse(d.State)
			d.State = string(st)
		}
		setDefaultInt(&d.SamplingMs, DefaultSamplingMs)

		for ri := range d.Registers {
			r := &d.Registers[ri]

			t, _ := registry.ParseRegisterType(r.Type)
			r.Type = t.String()

			if r.ID == "" {
				r.ID = RegisterID(id, t, r.Address).String()
			}

			switch {
			case t.Bits():
				r.DataType = string(registry.DataTypeBoolean)
			case r.DataType == "":
				r.DataType = string(registry.DataTypeUShort)
			default:
				dt, _ := registry.ParseDataType(r.DataType)
				r.DataType = string(dt)
			}
		}
	}
}

// DeviceID returns the configured device id, or one derived from the name.
func DeviceID(d DeviceConfig) (uuid.UUID, error) {
	if d.ID != "" {
		return parseUUID(d.ID)
	}
	if d.Name == "" {
		return uuid.Nil, errors.New("either id or name is required")
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(d.Name)), nil
}

// RegisterID derives a stable register id from its device and slot.
func RegisterID(deviceID uuid.UUID, t registry.RegisterType, address uint16) uuid.UUID {
	return uuid.NewSHA1(deviceID, []byte(fmt.Sprintf("%s/%d", t, address)))
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: nil uuid", s)
	}
	return id, nil
}

func setDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setDefaultInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
