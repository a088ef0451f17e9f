// internal/notify/publish_sink.go
package notify

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-master/internal/registry"
)

// Publisher delivers one encoded message to a topic or subject.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// PublishSink encodes change events as JSON and hands them to a Publisher.
// Delivery failures are logged and dropped.
type PublishSink struct {
	pub    Publisher
	prefix string
	sep    string
	clock  registry.Clock
	log    zerolog.Logger
}

func newPublishSink(pub Publisher, prefix, sep, name string, clock registry.Clock, log zerolog.Logger) *PublishSink {
	if clock == nil {
		clock = registry.SystemClock{}
	}
	return &PublishSink{
		pub:    pub,
		prefix: prefix,
		sep:    sep,
		clock:  clock,
		log:    log.With().Str("component", "notify").Str("sink", name).Logger(),
	}
}

// RegisterTopic is <prefix><sep><device><sep>registers<sep><register>.
func (s *PublishSink) RegisterTopic(r registry.Register) string {
	return s.join(r.DeviceID.String(), "registers", r.ID.String())
}

// AttributeTopic is <prefix><sep><device><sep>attributes<sep><type>.
func (s *PublishSink) AttributeTopic(a registry.Attribute) string {
	return s.join(a.DeviceID.String(), "attributes", string(a.Type))
}

func (s *PublishSink) RegisterChanged(ev registry.RegisterEvent) {
	s.send(s.RegisterTopic(ev.Updated), NewRegisterPayload(ev, s.clock.Now()))
}

func (s *PublishSink) AttributeChanged(ev registry.AttributeEvent) {
	s.send(s.AttributeTopic(ev.Updated), NewAttributePayload(ev, s.clock.Now()))
}

func (s *PublishSink) send(topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("failed to encode change")
		return
	}

	if err := s.pub.Publish(topic, body); err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("failed to publish change")
	}
}

func (s *PublishSink) join(parts ...string) string {
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return strings.Join(parts, s.sep)
}
