// internal/status/parse.go
package status

import "strings"

var known = map[State]struct{}{
	StateUnknown:      {},
	StateInit:         {},
	StateConnected:    {},
	StateDisconnected: {},
	StateReady:        {},
	StateRunning:      {},
	StateSleeping:     {},
	StateStopped:      {},
	StateLost:         {},
	StateAlert:        {},
}

// Parse converts a STATE attribute value into a State.
// Anything that is not a known state string yields StateUnknown, false.
func Parse(v any) (State, bool) {
	var raw string

	switch s := v.(type) {
	case State:
		raw = string(s)
	case string:
		raw = s
	default:
		return StateUnknown, false
	}

	st := State(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := known[st]; !ok {
		return StateUnknown, false
	}
	return st, true
}

// Health maps a connection state onto its numeric health code.
// No IO. No side effects.
func Health(st State, enabled bool) uint16 {
	if !enabled {
		return HealthDisabled
	}

	switch st {
	case StateConnected, StateReady, StateRunning, StateSleeping:
		return HealthOK
	case StateAlert:
		return HealthError
	case StateLost:
		return HealthLost
	default:
		return HealthUnknown
	}
}
