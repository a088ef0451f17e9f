// internal/config/load.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MODBUS_SERIAL_INTERFACE.
const EnvPrefix = "MODBUS"

// envOverrides carries the environment variables that may replace file values.
// Unset variables keep the file value.
type envOverrides struct {
	SerialInterface string        `envconfig:"SERIAL_INTERFACE"`
	SerialBaudRate  int           `envconfig:"SERIAL_BAUD_RATE"`
	SerialTimeout   time.Duration `envconfig:"SERIAL_TIMEOUT"`
	LogLevel        string        `envconfig:"LOG_LEVEL"`
	LogFormat       string        `envconfig:"LOG_FORMAT"`
	NATSURL         string        `envconfig:"NATS_URL"`
	MQTTBroker      string        `envconfig:"MQTT_BROKER"`
}

// Load reads the YAML file at path and applies environment overrides.
// The result is neither validated nor normalized.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays MODBUS_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("unable to parse environment overrides: %w", err)
	}

	m := &cfg.Master

	if env.SerialInterface != "" {
		m.Serial.Interface = env.SerialInterface
	}
	if env.SerialBaudRate != 0 {
		m.Serial.BaudRate = env.SerialBaudRate
	}
	if env.SerialTimeout != 0 {
		m.Serial.TimeoutMs = int(env.SerialTimeout / time.Millisecond)
	}
	if env.LogLevel != "" {
		m.Logging.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		m.Logging.Format = env.LogFormat
	}
	if env.NATSURL != "" {
		m.Notify.NATS.URL = env.NATSURL
	}
	if env.MQTTBroker != "" {
		m.Notify.MQTT.Broker = env.MQTTBroker
	}

	return nil
}
