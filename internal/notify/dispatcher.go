// internal/notify/dispatcher.go
package notify

import (
	"sync"

	"github.com/tamzrod/modbus-master/internal/registry"
)

// Dispatcher fans store change events out to every attached sink.
// Sinks are called synchronously in the order they were added.
type Dispatcher struct {
	mu    sync.RWMutex
	sinks []registry.Sink
}

func NewDispatcher(sinks ...registry.Sink) *Dispatcher {
	d := &Dispatcher{}
	for _, s := range sinks {
		d.Add(s)
	}
	return d
}

// Add attaches a sink. Nil sinks are ignored.
func (d *Dispatcher) Add(s registry.Sink) {
	if s == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) RegisterChanged(ev registry.RegisterEvent) {
	for _, s := range d.snapshot() {
		s.RegisterChanged(ev)
	}
}

func (d *Dispatcher) AttributeChanged(ev registry.AttributeEvent) {
	for _, s := range d.snapshot() {
		s.AttributeChanged(ev)
	}
}

func (d *Dispatcher) snapshot() []registry.Sink {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]registry.Sink, len(d.sinks))
	copy(out, d.sinks)
	return out
}
