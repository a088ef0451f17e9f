// internal/poller/modbus/client.go
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
)

// Function codes used by the master.
const (
	FuncReadCoils              uint8 = 1
	FuncReadDiscreteInputs     uint8 = 2
	FuncReadHoldingRegisters   uint8 = 3
	FuncReadInputRegisters     uint8 = 4
	FuncWriteSingleCoil        uint8 = 5
	FuncWriteSingleRegister    uint8 = 6
	FuncWriteMultipleRegisters uint8 = 16
)

var (
	// ErrNoResponse means the slave stayed silent until the serial timeout.
	ErrNoResponse = errors.New("modbus: no response from slave")

	ErrUnsupportedFunction = errors.New("modbus: unsupported function code")
)

const coilOn = 0xFF00

// Config is the serial line setup of one RTU bus.
type Config struct {
	Interface string
	BaudRate  int
	DataBits  int
	Parity    string
	StopBits  int
	Timeout   time.Duration
}

// Client implements poller.Client over one Modbus RTU serial bus.
// Requests are serialized because the slave id lives on the shared handler.
type Client struct {
	mu       sync.Mutex
	handler  *modbus.RTUClientHandler
	bus      modbus.Client
	setSlave func(byte)
}

// New opens the serial interface and returns a ready client.
func New(cfg Config) (*Client, error) {
	if cfg.Interface == "" {
		return nil, errors.New("modbus rtu: serial interface required")
	}

	h := modbus.NewRTUClientHandler(cfg.Interface)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus rtu: open %s: %w", cfg.Interface, err)
	}

	c := newClient(modbus.NewClient(h), func(id byte) { h.SlaveId = id })
	c.handler = h
	return c, nil
}

func newClient(bus modbus.Client, setSlave func(byte)) *Client {
	return &Client{bus: bus, setSlave: setSlave}
}

// Close releases the serial interface.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler == nil {
		return nil
	}
	return c.handler.Close()
}

// ---- poller.Client interface ----

// ReadBits reads count coils (FC1) or discrete inputs (FC2).
func (c *Client) ReadBits(slave uint8, address, count uint16, fn uint8) ([]bool, error) {
	if count == 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSlave(slave)

	var (
		raw []byte
		err error
	)
	switch fn {
	case FuncReadCoils:
		raw, err = c.bus.ReadCoils(address, count)
	case FuncReadDiscreteInputs:
		raw, err = c.bus.ReadDiscreteInputs(address, count)
	default:
		return nil, fmt.Errorf("%w: %d for bit read", ErrUnsupportedFunction, fn)
	}
	if err != nil {
		return nil, classify(err)
	}
	if len(raw)*8 < int(count) {
		return nil, fmt.Errorf("modbus: short bit payload: %d bytes for %d bits", len(raw), count)
	}
	return unpackBits(raw, int(count)), nil
}

// ReadRegisters reads count holding (FC3) or input (FC4) registers.
func (c *Client) ReadRegisters(slave uint8, address, count uint16, fn uint8) ([]uint16, error) {
	if count == 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSlave(slave)

	var (
		raw []byte
		err error
	)
	switch fn {
	case FuncReadHoldingRegisters:
		raw, err = c.bus.ReadHoldingRegisters(address, count)
	case FuncReadInputRegisters:
		raw, err = c.bus.ReadInputRegisters(address, count)
	default:
		return nil, fmt.Errorf("%w: %d for register read", ErrUnsupportedFunction, fn)
	}
	if err != nil {
		return nil, classify(err)
	}
	if len(raw) < int(count)*2 {
		return nil, fmt.Errorf("modbus: short register payload: %d bytes for %d registers", len(raw), count)
	}
	return unpackRegisters(raw[:int(count)*2]), nil
}

// WriteBit writes a single coil (FC5).
func (c *Client) WriteBit(slave uint8, address uint16, value bool, fn uint8) error {
	if fn != FuncWriteSingleCoil {
		return fmt.Errorf("%w: %d for bit write", ErrUnsupportedFunction, fn)
	}

	var v uint16
	if value {
		v = coilOn
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSlave(slave)

	_, err := c.bus.WriteSingleCoil(address, v)
	return classify(err)
}

// WriteRegister writes one holding register (FC6).
func (c *Client) WriteRegister(slave uint8, address, value uint16, fn uint8) error {
	if fn != FuncWriteSingleRegister {
		return fmt.Errorf("%w: %d for register write", ErrUnsupportedFunction, fn)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSlave(slave)

	_, err := c.bus.WriteSingleRegister(address, value)
	return classify(err)
}

// WriteLong writes a 32-bit integer into two registers, high word first (FC16).
func (c *Client) WriteLong(slave uint8, address uint16, value uint32) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, value)
	return c.writeMultiple(slave, address, payload)
}

// WriteFloat writes an IEEE754 single into two registers, high word first (FC16).
func (c *Client) WriteFloat(slave uint8, address uint16, value float32) error {
	return c.WriteLong(slave, address, math.Float32bits(value))
}

func (c *Client) writeMultiple(slave uint8, address uint16, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSlave(slave)

	_, err := c.bus.WriteMultipleRegisters(address, uint16(len(payload)/2), payload)
	return classify(err)
}

// ---- error classification ----

// classify folds every "slave did not answer" flavour into ErrNoResponse.
// Exceptions and framing errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isNoResponse(err) {
		return fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	return err
}

func isNoResponse(err error) bool {
	if errors.Is(err, serial.ErrTimeout) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// ---- helpers ----

func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		out[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return out
}
