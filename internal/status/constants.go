// internal/status/constants.go
package status

// State is the connection state of one device.
// It is stored verbatim as the value of the device STATE attribute.
type State string

// ---- CONNECTION STATES ----

const (
	StateUnknown      State = "unknown"
	StateInit         State = "init"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReady        State = "ready"
	StateRunning      State = "running"
	StateSleeping     State = "sleeping"
	StateStopped      State = "stopped"
	StateLost         State = "lost"
	StateAlert        State = "alert"
)

// ---- HEALTH CODES ----
// Numeric projection of State used by status consumers.
// These values MUST NOT be renumbered.

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a device answering on the bus.
const HealthOK uint16 = 1

// HealthError represents a device in alert.
const HealthError uint16 = 2

// HealthLost represents a device that exhausted its transmit attempts.
const HealthLost uint16 = 3

// HealthDisabled represents a device excluded from polling.
const HealthDisabled uint16 = 4
