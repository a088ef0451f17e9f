// internal/notify/nats.go
package notify

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-master/internal/registry"
)

// ConnectNATS dials the NATS server with reconnect logging.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("modbus-master"),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("nats error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNATSSink publishes changes on <prefix>.<device>.registers.<register> subjects.
// *nats.Conn satisfies Publisher.
func NewNATSSink(pub Publisher, prefix string, clock registry.Clock, log zerolog.Logger) *PublishSink {
	return newPublishSink(pub, prefix, ".", "nats", clock, log)
}
