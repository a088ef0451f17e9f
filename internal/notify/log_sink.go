// internal/notify/log_sink.go
package notify

import (
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-master/internal/registry"
)

// LogSink writes every change as a debug line.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "notify").Logger()}
}

func (s *LogSink) RegisterChanged(ev registry.RegisterEvent) {
	r := ev.Updated

	s.log.Debug().
		Str("device", r.DeviceID.String()).
		Str("register", r.ID.String()).
		Str("type", r.Type.String()).
		Uint16("address", r.Address).
		Interface("actual_value", r.ActualValue).
		Interface("expected_value", r.ExpectedValue).
		Bool("pending", r.Pending()).
		Msg("register updated")
}

func (s *LogSink) AttributeChanged(ev registry.AttributeEvent) {
	a := ev.Updated

	s.log.Debug().
		Str("device", a.DeviceID.String()).
		Str("attribute", string(a.Type)).
		Interface("value", a.Value).
		Msg("attribute updated")
}
