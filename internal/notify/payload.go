// internal/notify/payload.go
package notify

import (
	"time"

	"github.com/tamzrod/modbus-master/internal/registry"
)

// RegisterPayload is the wire form of a register change.
type RegisterPayload struct {
	ID            string    `json:"id"`
	Device        string    `json:"device"`
	Type          string    `json:"type"`
	Address       uint16    `json:"address"`
	DataType      string    `json:"data_type"`
	ActualValue   any       `json:"actual_value"`
	ExpectedValue any       `json:"expected_value"`
	Pending       bool      `json:"pending"`
	Previous      any       `json:"previous_value,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// AttributePayload is the wire form of an attribute change.
type AttributePayload struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	Type      string    `json:"type"`
	Value     any       `json:"value"`
	Previous  any       `json:"previous_value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRegisterPayload(ev registry.RegisterEvent, at time.Time) RegisterPayload {
	r := ev.Updated

	p := RegisterPayload{
		ID:            r.ID.String(),
		Device:        r.DeviceID.String(),
		Type:          r.Type.String(),
		Address:       r.Address,
		DataType:      string(r.DataType),
		ActualValue:   r.ActualValue,
		ExpectedValue: r.ExpectedValue,
		Pending:       r.Pending(),
		Timestamp:     at.UTC(),
	}
	if ev.Previous != nil {
		p.Previous = ev.Previous.ActualValue
	}
	return p
}

func NewAttributePayload(ev registry.AttributeEvent, at time.Time) AttributePayload {
	a := ev.Updated

	p := AttributePayload{
		ID:        a.ID.String(),
		Device:    a.DeviceID.String(),
		Type:      string(a.Type),
		Value:     a.Value,
		Timestamp: at.UTC(),
	}
	if ev.Previous != nil {
		p.Previous = ev.Previous.Value
	}
	return p
}
