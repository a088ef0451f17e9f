// internal/poller/poller.go
package poller

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-master/internal/registry"
	"github.com/tamzrod/modbus-master/internal/status"
)

// Client abstracts the Modbus RTU operations needed by the poller.
// fn is the Modbus function code to use for the request.
type Client interface {
	ReadBits(slave uint8, address, count uint16, fn uint8) ([]bool, error)        // FC 1, 2
	ReadRegisters(slave uint8, address, count uint16, fn uint8) ([]uint16, error) // FC 3, 4
	WriteBit(slave uint8, address uint16, value bool, fn uint8) error             // FC 5
	WriteRegister(slave uint8, address, value uint16, fn uint8) error             // FC 6
	WriteLong(slave uint8, address uint16, value uint32) error                    // FC 16
	WriteFloat(slave uint8, address uint16, value float32) error                  // FC 16
}

const (
	DefaultInterval             = 10 * time.Millisecond
	DefaultMaxTransmitAttempts  = 5
	DefaultCommunicationDelay   = 500 * time.Millisecond
	DefaultLostRetryDelay       = 15 * time.Second
	DefaultMaxReadableRegisters = 125
)

// ErrNoAddress is reported for devices that were disabled because they
// carry no usable slave address.
var ErrNoAddress = errors.New("poller: device has no valid address")

// Config holds the timing and sizing knobs of the polling engine.
// Zero values are replaced by the defaults above.
type Config struct {
	Interval             time.Duration
	MaxTransmitAttempts  int
	CommunicationDelay   time.Duration
	LostRetryDelay       time.Duration
	MaxReadableRegisters int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxTransmitAttempts <= 0 {
		c.MaxTransmitAttempts = DefaultMaxTransmitAttempts
	}
	if c.CommunicationDelay <= 0 {
		c.CommunicationDelay = DefaultCommunicationDelay
	}
	if c.LostRetryDelay <= 0 {
		c.LostRetryDelay = DefaultLostRetryDelay
	}
	if c.MaxReadableRegisters <= 0 {
		c.MaxReadableRegisters = DefaultMaxReadableRegisters
	}
	return c
}

// Poller drives one serial bus: at most one request per device per tick,
// writes before reads.
type Poller struct {
	cfg       Config
	client    Client
	devices   *registry.DeviceStore
	registers *registry.RegisterStore
	clock     registry.Clock
	log       zerolog.Logger
}

// New creates a poller over the given stores and transport.
func New(
	cfg Config,
	client Client,
	devices *registry.DeviceStore,
	registers *registry.RegisterStore,
	clock registry.Clock,
	log zerolog.Logger,
) (*Poller, error) {
	if client == nil {
		return nil, errors.New("poller: client required")
	}
	if devices == nil || registers == nil {
		return nil, errors.New("poller: device and register stores required")
	}
	if clock == nil {
		clock = registry.SystemClock{}
	}

	return &Poller{
		cfg:       cfg.withDefaults(),
		client:    client,
		devices:   devices,
		registers: registers,
		clock:     clock,
		log:       log.With().Str("component", "poller").Logger(),
	}, nil
}

// PollOnce performs exactly one tick over every registered device.
// A device that fails does not stop the tick for the others.
func (p *Poller) PollOnce() TickResult {
	res := TickResult{At: p.clock.Now()}

	processed := make(map[uuid.UUID]struct{})

	for _, d := range p.devices.All() {
		if _, done := processed[d.ID]; done {
			continue
		}
		processed[d.ID] = struct{}{}

		action, err := p.pollDevice(d)

		res.Devices = append(res.Devices, DeviceOutcome{
			DeviceID: d.ID,
			Action:   action,
			Err:      err,
			Status:   p.snapshot(d.ID),
		})
	}

	return res
}

func (p *Poller) pollDevice(d registry.Device) (Action, error) {
	if !d.Enabled {
		return ActionSkipped, nil
	}

	now := p.clock.Now()

	if d.TransmitAttempts >= p.cfg.MaxTransmitAttempts {
		return ActionLost, p.markLost(d)
	}

	if p.devices.State(d.ID) == status.StateLost && now.Sub(d.LostAt) < p.cfg.LostRetryDelay {
		return ActionBackoff, nil
	}

	if last := d.LastPacketAt(); !last.IsZero() && now.Sub(last) < p.cfg.CommunicationDelay {
		return ActionDelay, nil
	}

	if reg, ok := p.nextWrite(d.ID); ok {
		return ActionWrite, p.write(d, reg)
	}

	if d.LastReadAt.IsZero() || now.Sub(d.LastReadAt) >= d.SamplingTime {
		return ActionRead, p.read(d)
	}

	return ActionIdle, nil
}

// ---- state transitions ----

func (p *Poller) markLost(d registry.Device) error {
	log := p.deviceLog(d.ID)

	if _, err := p.devices.ResetCommunication(d.ID); err != nil {
		return err
	}

	if p.devices.State(d.ID) == status.StateLost {
		log.Debug().Msg("device is still lost")
		return nil
	}

	log.Warn().Int("attempts", d.TransmitAttempts).Msg("device is lost")

	_, err := p.devices.SetState(d.ID, status.StateLost)
	return err
}

// markConnected moves a device that just answered back to CONNECTED.
func (p *Poller) markConnected(id uuid.UUID) {
	if p.devices.State(id) == status.StateConnected {
		return
	}

	if _, err := p.devices.SetState(id, status.StateConnected); err != nil {
		p.deviceLog(id).Debug().Err(err).Msg("state not updated")
		return
	}
	p.deviceLog(id).Info().Msg("device is connected")
}

// resolveAddress returns the slave id, disabling the device when it has none.
func (p *Poller) resolveAddress(id uuid.UUID) (uint8, error) {
	slave, ok := p.devices.Address(id)
	if ok {
		return slave, nil
	}

	p.deviceLog(id).Error().Msg("device address is missing, disabling device")

	if _, err := p.devices.Disable(id); err != nil {
		return 0, err
	}
	return 0, ErrNoAddress
}

func (p *Poller) snapshot(id uuid.UUID) status.Snapshot {
	d, _ := p.devices.Get(id)
	st := p.devices.State(id)

	return status.Snapshot{
		DeviceID:         id,
		State:            st,
		Health:           status.Health(st, d.Enabled),
		TransmitAttempts: d.TransmitAttempts,
		LostAt:           d.LostAt,
	}
}

func (p *Poller) deviceLog(id uuid.UUID) *zerolog.Logger {
	l := p.log.With().Str("device", id.String()).Logger()
	return &l
}
