// internal/registry/events.go
package registry

// RegisterEvent announces a register value change.
// Previous is nil when the record had no prior snapshot.
type RegisterEvent struct {
	Previous *Register
	Updated  Register
}

// AttributeEvent announces an attribute value change.
type AttributeEvent struct {
	Previous *Attribute
	Updated  Attribute
}

// Sink receives change events from the stores.
// Calls are synchronous and happen after the mutation is visible to readers.
type Sink interface {
	RegisterChanged(ev RegisterEvent)
	AttributeChanged(ev AttributeEvent)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) RegisterChanged(RegisterEvent)   {}
func (NopSink) AttributeChanged(AttributeEvent) {}

func sinkOrNop(s Sink) Sink {
	if s == nil {
		return NopSink{}
	}
	return s
}
