// cmd/master/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-master/internal/config"
	"github.com/tamzrod/modbus-master/internal/logger"
	"github.com/tamzrod/modbus-master/internal/notify"
	"github.com/tamzrod/modbus-master/internal/poller"
	"github.com/tamzrod/modbus-master/internal/registry"
)

func main() {
	boot := logger.New(logger.LevelInfo, logger.FormatConsole)

	if len(os.Args) < 2 {
		boot.Fatal().Msg("usage: master <config.yaml>")
	}

	if err := run(os.Args[1]); err != nil {
		boot.Fatal().Err(err).Msg("modbus master failed")
	}
}

// run wires the master and blocks until SIGINT/SIGTERM. Every resource opened
// here is released through its defer before run returns.
func run(cfgPath string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)

	m := cfg.Master
	log := logger.New(m.Logging.Level, m.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Change notification
	// --------------------

	clock := registry.SystemClock{}
	dispatcher := notify.NewDispatcher(notify.NewLogSink(log))

	if m.Notify.NATS.URL != "" {
		nc, err := notify.ConnectNATS(m.Notify.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("nats connect failed: %w", err)
		}
		defer nc.Close()
		defer func() { _ = nc.Drain() }()

		q := notify.NewQueueSink(notify.NewNATSSink(nc, m.Notify.NATS.SubjectPrefix, clock, log), notify.DefaultQueueSize, log)
		defer q.Close()
		dispatcher.Add(q)
	}

	if m.Notify.MQTT.Broker != "" {
		mc, err := notify.ConnectMQTT(notify.MQTTConfig{
			Broker:   m.Notify.MQTT.Broker,
			ClientID: m.Notify.MQTT.ClientID,
		}, log)
		if err != nil {
			return fmt.Errorf("mqtt connect failed: %w", err)
		}
		defer mc.Disconnect(250)

		q := notify.NewQueueSink(notify.NewMQTTSink(mc, m.Notify.MQTT.TopicPrefix, clock, log), notify.DefaultQueueSize, log)
		defer q.Close()
		dispatcher.Add(q)
	}

	// --------------------
	// Registries + poller
	// --------------------

	attrs := registry.NewAttributeStore(dispatcher)
	regs := registry.NewRegisterStore(dispatcher)
	stores := poller.Stores{
		Devices:    registry.NewDeviceStore(attrs, regs, clock),
		Attributes: attrs,
		Registers:  regs,
	}

	if err := poller.Seed(m.Devices, stores); err != nil {
		return fmt.Errorf("device seed failed: %w", err)
	}

	p, closePoller, err := poller.Build(m, stores, clock, log)
	if err != nil {
		return fmt.Errorf("poller build failed (interface=%s): %w", m.Serial.Interface, err)
	}
	defer func() { _ = closePoller() }()

	log.Info().
		Str("interface", m.Serial.Interface).
		Int("baud_rate", m.Serial.BaudRate).
		Int("devices", stores.Devices.Len()).
		Msg("modbus master started")

	out := make(chan poller.TickResult)
	go watch(ctx, out, log)

	p.Run(ctx, out)

	log.Info().Msg("modbus master stopped")
	return nil
}

// watch consumes tick results and logs per-device health transitions and failures.
func watch(ctx context.Context, in <-chan poller.TickResult, log zerolog.Logger) {
	health := make(map[uuid.UUID]uint16)

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			for _, d := range res.Devices {
				prev, seen := health[d.DeviceID]
				if !seen || prev != d.Status.Health {
					health[d.DeviceID] = d.Status.Health
					log.Info().
						Str("device", d.DeviceID.String()).
						Str("state", string(d.Status.State)).
						Uint16("health", d.Status.Health).
						Msg("device health changed")
				}
			}

			for _, d := range res.Failed() {
				log.Warn().
					Err(d.Err).
					Str("device", d.DeviceID.String()).
					Str("action", string(d.Action)).
					Int("attempts", d.Status.TransmitAttempts).
					Msg("device poll failed")
			}
		}
	}
}
