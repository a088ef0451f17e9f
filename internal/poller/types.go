// internal/poller/types.go
package poller

import (
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/modbus-master/internal/status"
)

// Action is what the poller did with a device during one tick.
type Action string

const (
	ActionSkipped Action = "skipped" // disabled
	ActionLost    Action = "lost"    // transmit attempts exhausted
	ActionBackoff Action = "backoff" // lost, waiting for the retry delay
	ActionDelay   Action = "delay"   // inter-packet delay not elapsed
	ActionWrite   Action = "write"
	ActionRead    Action = "read"
	ActionIdle    Action = "idle" // nothing to write, sampling time not elapsed
)

// DeviceOutcome is the result of one device within a tick.
type DeviceOutcome struct {
	DeviceID uuid.UUID
	Action   Action
	Err      error // non-nil when the action failed

	Status status.Snapshot
}

// TickResult is a snapshot produced by one poll cycle.
type TickResult struct {
	At      time.Time
	Devices []DeviceOutcome
}

// Failed returns the outcomes that carry an error.
func (r TickResult) Failed() []DeviceOutcome {
	var out []DeviceOutcome
	for _, d := range r.Devices {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}
