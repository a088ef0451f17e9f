// internal/status/snapshot.go
package status

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the externally visible status of one device after a tick.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	DeviceID         uuid.UUID
	State            State
	Health           uint16
	TransmitAttempts int
	LostAt           time.Time
}
