// internal/config/config.go
package config

type Config struct {
	Master MasterConfig `yaml:"master"`
}

type MasterConfig struct {
	Serial  SerialConfig   `yaml:"serial"`
	Poll    PollConfig     `yaml:"poll"`
	Logging LoggingConfig  `yaml:"logging"`
	Notify  NotifyConfig   `yaml:"notify"`
	Devices []DeviceConfig `yaml:"devices"`
}

// ---- SERIAL BUS ----

type SerialConfig struct {
	Interface string `yaml:"interface"`
	BaudRate  int    `yaml:"baud_rate"`
	DataBits  int    `yaml:"data_bits"`
	Parity    string `yaml:"parity"` // N, E or O
	StopBits  int    `yaml:"stop_bits"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs           int `yaml:"interval_ms"`
	MaxTransmitAttempts  int `yaml:"max_transmit_attempts"`
	CommunicationDelayMs int `yaml:"communication_delay_ms"`
	LostDelayMs          int `yaml:"lost_delay_ms"`
	MaxReadableRegisters int `yaml:"max_readable_registers"`
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// ---- NOTIFY ----

// NotifyConfig selects where register and attribute changes are published.
// Empty URL / broker disables the sink.
type NotifyConfig struct {
	NATS NATSConfig `yaml:"nats"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// ---- DEVICES ----

type DeviceConfig struct {
	ID         string           `yaml:"id"` // optional, derived from name
	Name       string           `yaml:"name"`
	Address    *int             `yaml:"address"` // nil = device unreachable
	Enabled    *bool            `yaml:"enabled"` // nil = true
	State      string           `yaml:"state"`   // initial STATE attribute
	SamplingMs int              `yaml:"sampling_ms"`
	Registers  []RegisterConfig `yaml:"registers"`

	SerialNumber    string `yaml:"serial_number"`
	FirmwareVersion string `yaml:"firmware_version"`
	HardwareVersion string `yaml:"hardware_version"`
}

type RegisterConfig struct {
	ID       string `yaml:"id"` // optional, derived from device + type + address
	Type     string `yaml:"type"`
	Address  uint16 `yaml:"address"`
	DataType string `yaml:"data_type"`
	Decimals int    `yaml:"decimals"`

	// Expected is written to the device once polling starts (coil/holding only).
	Expected any `yaml:"expected"`
}
