// internal/poller/poller_test.go
package poller

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	pmodbus "github.com/tamzrod/modbus-master/internal/poller/modbus"
	"github.com/tamzrod/modbus-master/internal/registry"
	"github.com/tamzrod/modbus-master/internal/status"
)

// ---- fakes ----

type call struct {
	op      string
	slave   uint8
	address uint16
	count   uint16
	fn      uint8
	value   any
}

type fakeClient struct {
	calls []call

	bits map[uint16]bool
	regs map[uint16]uint16

	readErr  error
	writeErr error
}

func (f *fakeClient) ReadBits(slave uint8, address, count uint16, fn uint8) ([]bool, error) {
	f.calls = append(f.calls, call{op: "read-bits", slave: slave, address: address, count: count, fn: fn})
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]bool, count)
	for i := range out {
		out[i] = f.bits[address+uint16(i)]
	}
	return out, nil
}

func (f *fakeClient) ReadRegisters(slave uint8, address, count uint16, fn uint8) ([]uint16, error) {
	f.calls = append(f.calls, call{op: "read-registers", slave: slave, address: address, count: count, fn: fn})
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = f.regs[address+uint16(i)]
	}
	return out, nil
}

func (f *fakeClient) WriteBit(slave uint8, address uint16, value bool, fn uint8) error {
	f.calls = append(f.calls, call{op: "write-bit", slave: slave, address: address, fn: fn, value: value})
	return f.writeErr
}

func (f *fakeClient) WriteRegister(slave uint8, address, value uint16, fn uint8) error {
	f.calls = append(f.calls, call{op: "write-register", slave: slave, address: address, fn: fn, value: value})
	return f.writeErr
}

func (f *fakeClient) WriteLong(slave uint8, address uint16, value uint32) error {
	f.calls = append(f.calls, call{op: "write-long", slave: slave, address: address, value: value})
	return f.writeErr
}

func (f *fakeClient) WriteFloat(slave uint8, address uint16, value float32) error {
	f.calls = append(f.calls, call{op: "write-float", slave: slave, address: address, value: value})
	return f.writeErr
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type attributeCounter struct {
	registry.NopSink
	attributes int
}

func (a *attributeCounter) AttributeChanged(registry.AttributeEvent) { a.attributes++ }

// ---- harness ----

type harness struct {
	clock     *fakeClock
	client    *fakeClient
	sink      *attributeCounter
	devices   *registry.DeviceStore
	attrs     *registry.AttributeStore
	registers *registry.RegisterStore
	poller    *Poller
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:  &fakeClock{now: time.Unix(1_000_000, 0)},
		client: &fakeClient{bits: map[uint16]bool{}, regs: map[uint16]uint16{}},
		sink:   &attributeCounter{},
	}
	h.attrs = registry.NewAttributeStore(h.sink)
	h.registers = registry.NewRegisterStore(nil)
	h.devices = registry.NewDeviceStore(h.attrs, h.registers, h.clock)

	p, err := New(Config{}, h.client, h.devices, h.registers, h.clock, zerolog.Nop())
	require.NoError(t, err)
	h.poller = p

	return h
}

func (h *harness) addDevice(t *testing.T, state status.State, address any, sampling time.Duration) uuid.UUID {
	t.Helper()

	id := uuid.New()
	h.devices.Append(id, registry.WithEnabled(true), registry.WithSamplingTime(sampling))

	_, err := h.attrs.Append(id, uuid.New(), registry.AttributeState, string(state))
	require.NoError(t, err)
	if address != nil {
		_, err = h.attrs.Append(id, uuid.New(), registry.AttributeAddress, address)
		require.NoError(t, err)
	}
	return id
}

func (h *harness) addRegisters(t *testing.T, dev uuid.UUID, rt registry.RegisterType, n int, dt registry.DataType) []registry.Register {
	t.Helper()

	out := make([]registry.Register, 0, n)
	for i := 0; i < n; i++ {
		var (
			r   registry.Register
			err error
		)
		addr := uint16(i)
		switch rt {
		case registry.RegisterTypeDiscrete:
			r, err = h.registers.AppendDiscrete(dev, uuid.New(), addr)
		case registry.RegisterTypeCoil:
			r, err = h.registers.AppendCoil(dev, uuid.New(), addr)
		case registry.RegisterTypeInput:
			r, err = h.registers.AppendInput(dev, uuid.New(), addr, dt, 0)
		case registry.RegisterTypeHolding:
			r, err = h.registers.AppendHolding(dev, uuid.New(), addr, dt, 0)
		}
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func (h *harness) tick(t *testing.T) DeviceOutcome {
	t.Helper()

	res := h.poller.PollOnce()
	require.Len(t, res.Devices, 1)
	return res.Devices[0]
}

func (h *harness) device(t *testing.T, id uuid.UUID) registry.Device {
	t.Helper()

	d, ok := h.devices.Get(id)
	require.True(t, ok)
	return d
}

// ---- chunking ----

func TestChunkLength(t *testing.T) {
	cases := []struct {
		size, start, want int
	}{
		{size: 300, start: 0, want: 125},
		{size: 300, start: 125, want: 125},
		{size: 300, start: 250, want: 50},
		{size: 300, start: 300, want: 0},
		{size: 125, start: 0, want: 125},
		{size: 10, start: 0, want: 10},
		{size: 10, start: 20, want: -10},
	}

	for _, tc := range cases {
		if got := chunkLength(tc.size, tc.start, 125); got != tc.want {
			t.Fatalf("chunkLength(%d, %d)=%d want=%d", tc.size, tc.start, got, tc.want)
		}
	}
}

func TestNextCursor(t *testing.T) {
	counts := map[registry.RegisterType]int{
		registry.RegisterTypeDiscrete: 3,
		registry.RegisterTypeHolding:  300,
	}
	count := func(t registry.RegisterType) int { return counts[t] }

	require.Equal(t, registry.Cursor{Type: registry.RegisterTypeHolding, Address: 125},
		nextCursor(registry.RegisterTypeHolding, 125, 300, count))
	require.Equal(t, registry.Cursor{Type: registry.RegisterTypeHolding, Address: 0},
		nextCursor(registry.RegisterTypeDiscrete, 3, 3, count))
	require.True(t, nextCursor(registry.RegisterTypeHolding, 300, 300, count).IsZero())
}

// ---- reads ----

func TestPollOnce_ChunkedScanAcrossTypes(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 7, 0)
	h.addRegisters(t, dev, registry.RegisterTypeDiscrete, 3, "")
	h.addRegisters(t, dev, registry.RegisterTypeHolding, 300, registry.DataTypeUShort)

	want := []call{
		{op: "read-bits", slave: 7, address: 0, count: 3, fn: pmodbus.FuncReadDiscreteInputs},
		{op: "read-registers", slave: 7, address: 0, count: 125, fn: pmodbus.FuncReadHoldingRegisters},
		{op: "read-registers", slave: 7, address: 125, count: 125, fn: pmodbus.FuncReadHoldingRegisters},
		{op: "read-registers", slave: 7, address: 250, count: 50, fn: pmodbus.FuncReadHoldingRegisters},
		{op: "read-bits", slave: 7, address: 0, count: 3, fn: pmodbus.FuncReadDiscreteInputs},
	}

	for i := range want {
		out := h.tick(t)
		require.Equal(t, ActionRead, out.Action)
		require.NoError(t, out.Err)
		h.clock.advance(time.Second)

		if i == 3 {
			require.True(t, h.device(t, dev).Cursor.IsZero(), "cursor clears after the last chunk")
		}
	}

	require.Equal(t, want, h.client.calls)
}

func TestPollOnce_StoresDecodedValues(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	inputs := h.addRegisters(t, dev, registry.RegisterTypeInput, 2, registry.DataTypeShort)

	h.client.regs[0] = 0xFFFF
	h.client.regs[1] = 42

	out := h.tick(t)
	require.NoError(t, out.Err)

	r0, _ := h.registers.Get(inputs[0].ID)
	r1, _ := h.registers.Get(inputs[1].ID)
	require.Equal(t, int64(-1), r0.ActualValue)
	require.Equal(t, int64(42), r1.ActualValue)
}

func TestPollOnce_ReadFailureDoesNotAdvance(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	h.addRegisters(t, dev, registry.RegisterTypeHolding, 300, registry.DataTypeUShort)

	_, err := h.devices.SetReadingCursor(dev, registry.RegisterTypeHolding, 125)
	require.NoError(t, err)

	h.client.readErr = errors.New("crc mismatch")

	out := h.tick(t)
	require.Equal(t, ActionRead, out.Action)
	require.Error(t, out.Err)

	d := h.device(t, dev)
	require.Equal(t, registry.Cursor{Type: registry.RegisterTypeHolding, Address: 125}, d.Cursor)
	require.Equal(t, 1, d.TransmitAttempts)
	require.Equal(t, 1, out.Status.TransmitAttempts)
}

func TestPollOnce_NoResponseReadCountsAttempt(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	h.client.readErr = fmt.Errorf("%w: serial timeout", pmodbus.ErrNoResponse)

	out := h.tick(t)
	require.ErrorIs(t, out.Err, pmodbus.ErrNoResponse)
	require.Equal(t, 1, h.device(t, dev).TransmitAttempts)
}

func TestPollOnce_CursorFallsBackWhenTypeEmpty(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	h.addRegisters(t, dev, registry.RegisterTypeCoil, 2, "")

	_, err := h.devices.SetReadingCursor(dev, registry.RegisterTypeInput, 10)
	require.NoError(t, err)

	out := h.tick(t)
	require.NoError(t, out.Err)
	require.Equal(t, []call{
		{op: "read-bits", slave: 1, address: 0, count: 2, fn: pmodbus.FuncReadCoils},
	}, h.client.calls)
}

func TestPollOnce_NoRegistersIsNoop(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, status.StateConnected, 1, 0)

	out := h.tick(t)
	require.NoError(t, out.Err)
	require.Empty(t, h.client.calls)
}

func TestPollOnce_SamplingTime(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 10*time.Second)
	h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	require.Equal(t, ActionRead, h.tick(t).Action)

	h.clock.advance(time.Second)
	require.Equal(t, ActionIdle, h.tick(t).Action)

	h.clock.advance(9 * time.Second)
	require.Equal(t, ActionRead, h.tick(t).Action)
	require.Len(t, h.client.calls, 2)
}

func TestPollOnce_CommunicationDelay(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	require.Equal(t, ActionRead, h.tick(t).Action)

	h.clock.advance(400 * time.Millisecond)
	require.Equal(t, ActionDelay, h.tick(t).Action)

	h.clock.advance(100 * time.Millisecond)
	require.Equal(t, ActionRead, h.tick(t).Action)
}

func TestPollOnce_ReconcilesConfirmedWrite(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	regs := h.addRegisters(t, dev, registry.RegisterTypeHolding, 1, registry.DataTypeUShort)

	_, err := h.registers.SetExpectedValue(regs[0].ID, 5)
	require.NoError(t, err)
	_, err = h.registers.SetExpectedPending(regs[0].ID, h.clock.Now())
	require.NoError(t, err)

	h.client.regs[0] = 5

	out := h.tick(t)
	require.Equal(t, ActionRead, out.Action)

	r, _ := h.registers.Get(regs[0].ID)
	require.Equal(t, int64(5), r.ActualValue)
	require.False(t, r.HasExpected())
	require.False(t, r.Pending())
}

func TestPollOnce_PendingMismatchKeepsExpected(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	regs := h.addRegisters(t, dev, registry.RegisterTypeHolding, 1, registry.DataTypeUShort)

	_, err := h.registers.SetExpectedValue(regs[0].ID, 5)
	require.NoError(t, err)
	_, err = h.registers.SetExpectedPending(regs[0].ID, h.clock.Now())
	require.NoError(t, err)

	h.client.regs[0] = 4
	h.tick(t)

	r, _ := h.registers.Get(regs[0].ID)
	require.Equal(t, 5, r.ExpectedValue)
	require.True(t, r.Pending())
}

func TestPollOnce_FloatWriteReadsBackAndReconciles(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	regs := h.addRegisters(t, dev, registry.RegisterTypeHolding, 1, registry.DataTypeFloat)

	_, err := h.registers.SetExpectedValue(regs[0].ID, 21.5)
	require.NoError(t, err)

	require.Equal(t, ActionWrite, h.tick(t).Action)
	require.Len(t, h.client.calls, 1)

	// device now holds what was written, high word first
	bits := math.Float32bits(h.client.calls[0].value.(float32))
	h.client.regs[0] = uint16(bits >> 16)
	h.client.regs[1] = uint16(bits)

	h.clock.advance(time.Second)
	require.Equal(t, ActionRead, h.tick(t).Action)
	require.Equal(t, call{op: "read-registers", slave: 1, address: 0, count: 2, fn: pmodbus.FuncReadHoldingRegisters}, h.client.calls[1])

	r, _ := h.registers.Get(regs[0].ID)
	require.Equal(t, 21.5, r.ActualValue)
	require.False(t, r.HasExpected())
	require.False(t, r.Pending())
}

func TestPollOnce_WideRegisterNotSplitAcrossChunks(t *testing.T) {
	h := newHarness(t)
	h.poller.cfg.MaxReadableRegisters = 2

	dev := h.addDevice(t, status.StateConnected, 1, 0)
	_, err := h.registers.AppendHolding(dev, uuid.New(), 0, registry.DataTypeUShort, 0)
	require.NoError(t, err)
	long, err := h.registers.AppendHolding(dev, uuid.New(), 1, registry.DataTypeInt, 0)
	require.NoError(t, err)

	h.client.regs[0] = 7
	h.client.regs[1] = 0xFFFF
	h.client.regs[2] = 0xFFFB

	require.Equal(t, ActionRead, h.tick(t).Action)
	require.Equal(t, uint16(1), h.client.calls[0].count)
	require.Equal(t, registry.Cursor{Type: registry.RegisterTypeHolding, Address: 1}, h.device(t, dev).Cursor)

	h.clock.advance(time.Second)
	require.Equal(t, ActionRead, h.tick(t).Action)
	require.Equal(t, uint16(1), h.client.calls[1].address)
	require.Equal(t, uint16(2), h.client.calls[1].count)

	r, _ := h.registers.Get(long.ID)
	require.Equal(t, int64(-5), r.ActualValue)
}

// ---- writes ----

func TestPollOnce_WriteBeforeRead(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 3, 0)
	coils := h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")
	holdings := h.addRegisters(t, dev, registry.RegisterTypeHolding, 1, registry.DataTypeUShort)

	_, err := h.registers.SetExpectedValue(holdings[0].ID, 300)
	require.NoError(t, err)
	_, err = h.registers.SetExpectedValue(coils[0].ID, true)
	require.NoError(t, err)

	out := h.tick(t)
	require.Equal(t, ActionWrite, out.Action)
	require.NoError(t, out.Err)

	h.clock.advance(time.Second)
	require.Equal(t, ActionWrite, h.tick(t).Action)

	h.clock.advance(time.Second)
	require.Equal(t, ActionRead, h.tick(t).Action)

	require.Len(t, h.client.calls, 3)
	require.Equal(t, call{op: "write-bit", slave: 3, address: 0, fn: pmodbus.FuncWriteSingleCoil, value: true}, h.client.calls[0])
	require.Equal(t, call{op: "write-register", slave: 3, address: 0, fn: pmodbus.FuncWriteSingleRegister, value: uint16(300)}, h.client.calls[1])
	require.Equal(t, "read-bits", h.client.calls[2].op)

	coil, _ := h.registers.Get(coils[0].ID)
	require.True(t, coil.Pending())
}

func TestPollOnce_WriteSuccessKeepsExpectedPending(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	coils := h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	_, err := h.registers.SetExpectedValue(coils[0].ID, true)
	require.NoError(t, err)

	h.tick(t)

	r, _ := h.registers.Get(coils[0].ID)
	require.Equal(t, true, r.ExpectedValue)
	require.Equal(t, h.clock.Now(), r.ExpectedPendingAt)

	d := h.device(t, dev)
	require.Zero(t, d.TransmitAttempts)
	require.Equal(t, h.clock.Now(), d.LastWriteAt)
}

func TestPollOnce_WriteNoResponseIsOptimistic(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	coils := h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	_, err := h.registers.SetExpectedValue(coils[0].ID, false)
	require.NoError(t, err)

	h.client.writeErr = fmt.Errorf("%w: serial timeout", pmodbus.ErrNoResponse)

	out := h.tick(t)
	require.Equal(t, ActionWrite, out.Action)
	require.NoError(t, out.Err)

	r, _ := h.registers.Get(coils[0].ID)
	require.True(t, r.Pending())
	require.Zero(t, h.device(t, dev).TransmitAttempts)
}

func TestPollOnce_WriteNoResponseHonoursDelay(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	coils := h.addRegisters(t, dev, registry.RegisterTypeCoil, 3, "")

	for _, c := range coils {
		_, err := h.registers.SetExpectedValue(c.ID, true)
		require.NoError(t, err)
	}

	h.client.writeErr = fmt.Errorf("%w: serial timeout", pmodbus.ErrNoResponse)

	require.Equal(t, ActionWrite, h.tick(t).Action)
	require.Equal(t, h.clock.Now(), h.device(t, dev).LastWriteAt)

	h.clock.advance(10 * time.Millisecond)
	require.Equal(t, ActionDelay, h.tick(t).Action)

	h.clock.advance(480 * time.Millisecond)
	require.Equal(t, ActionDelay, h.tick(t).Action)
	require.Len(t, h.client.calls, 1)

	h.clock.advance(10 * time.Millisecond)
	require.Equal(t, ActionWrite, h.tick(t).Action)
	require.Len(t, h.client.calls, 2)
	require.Zero(t, h.device(t, dev).TransmitAttempts)
}

func TestPollOnce_WriteProtocolErrorCountsFailure(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	holdings := h.addRegisters(t, dev, registry.RegisterTypeHolding, 1, registry.DataTypeUShort)

	_, err := h.registers.SetExpectedValue(holdings[0].ID, 1)
	require.NoError(t, err)

	h.client.writeErr = errors.New("modbus: exception 2")

	out := h.tick(t)
	require.Error(t, out.Err)

	r, _ := h.registers.Get(holdings[0].ID)
	require.True(t, r.HasExpected())
	require.False(t, r.Pending())
	require.Equal(t, 1, h.device(t, dev).TransmitAttempts)
}

func TestPollOnce_UnsupportedWriteClearsExpected(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	holdings := h.addRegisters(t, dev, registry.RegisterTypeHolding, 1, registry.DataTypeUShort)

	_, err := h.registers.SetExpectedValue(holdings[0].ID, "on")
	require.NoError(t, err)

	out := h.tick(t)
	require.Equal(t, ActionWrite, out.Action)
	require.ErrorIs(t, out.Err, registry.ErrUnsupportedValue)
	require.Empty(t, h.client.calls)

	r, _ := h.registers.Get(holdings[0].ID)
	require.False(t, r.HasExpected())
}

func TestPollOnce_HoldingWriteKinds(t *testing.T) {
	cases := []struct {
		name  string
		dt    registry.DataType
		value any
		want  call
	}{
		{
			name:  "signed single",
			dt:    registry.DataTypeShort,
			value: -2,
			want:  call{op: "write-register", slave: 1, fn: pmodbus.FuncWriteSingleRegister, value: uint16(0xFFFE)},
		},
		{
			name:  "32-bit long",
			dt:    registry.DataTypeUInt,
			value: 70000,
			want:  call{op: "write-long", slave: 1, value: uint32(70000)},
		},
		{
			name:  "float",
			dt:    registry.DataTypeFloat,
			value: 1.5,
			want:  call{op: "write-float", slave: 1, value: float32(1.5)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			dev := h.addDevice(t, status.StateConnected, 1, 0)
			regs := h.addRegisters(t, dev, registry.RegisterTypeHolding, 1, tc.dt)

			_, err := h.registers.SetExpectedValue(regs[0].ID, tc.value)
			require.NoError(t, err)

			out := h.tick(t)
			require.NoError(t, out.Err)
			require.Equal(t, []call{tc.want}, h.client.calls)
		})
	}
}

// ---- addressing / enablement ----

func TestPollOnce_MissingAddressDisablesDevice(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, nil, 0)
	h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	out := h.tick(t)
	require.ErrorIs(t, out.Err, ErrNoAddress)
	require.Empty(t, h.client.calls)
	require.False(t, h.device(t, dev).Enabled)
	require.Equal(t, status.HealthDisabled, out.Status.Health)

	h.clock.advance(time.Second)
	require.Equal(t, ActionSkipped, h.tick(t).Action)
	require.Empty(t, h.client.calls)
}

func TestPollOnce_WrongTypedAddressDisablesDevice(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, "7", 0)
	coils := h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	_, err := h.registers.SetExpectedValue(coils[0].ID, true)
	require.NoError(t, err)

	out := h.tick(t)
	require.Equal(t, ActionWrite, out.Action)
	require.ErrorIs(t, out.Err, ErrNoAddress)
	require.Empty(t, h.client.calls)
	require.False(t, h.device(t, dev).Enabled)
}

func TestPollOnce_DisabledDeviceSkipped(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	_, err := h.devices.Disable(dev)
	require.NoError(t, err)

	require.Equal(t, ActionSkipped, h.tick(t).Action)
	require.Empty(t, h.client.calls)
}

func TestPollOnce_EachDeviceOncePerTick(t *testing.T) {
	h := newHarness(t)
	a := h.addDevice(t, status.StateConnected, 1, 0)
	b := h.addDevice(t, status.StateConnected, 2, 0)
	h.addRegisters(t, a, registry.RegisterTypeCoil, 1, "")
	h.addRegisters(t, b, registry.RegisterTypeCoil, 1, "")

	res := h.poller.PollOnce()
	require.Len(t, res.Devices, 2)
	require.Equal(t, a, res.Devices[0].DeviceID)
	require.Equal(t, b, res.Devices[1].DeviceID)
	require.Len(t, h.client.calls, 2)
	require.Equal(t, uint8(1), h.client.calls[0].slave)
	require.Equal(t, uint8(2), h.client.calls[1].slave)
	require.Empty(t, res.Failed())
}

// ---- lost detection ----

func TestPollOnce_LostAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	for i := 0; i < DefaultMaxTransmitAttempts; i++ {
		_, err := h.devices.RecordReadAttempt(dev, false)
		require.NoError(t, err)
	}

	out := h.tick(t)
	require.Equal(t, ActionLost, out.Action)
	require.NoError(t, out.Err)
	require.Empty(t, h.client.calls)

	d := h.device(t, dev)
	require.Equal(t, status.StateLost, h.devices.State(dev))
	require.Zero(t, d.TransmitAttempts)
	require.Equal(t, h.clock.Now(), d.LostAt)
	require.Equal(t, status.HealthLost, out.Status.Health)
	require.Equal(t, 1, h.sink.attributes)
}

func TestPollOnce_LostIsIdempotent(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateLost, 1, 0)

	for i := 0; i < DefaultMaxTransmitAttempts; i++ {
		_, err := h.devices.RecordReadAttempt(dev, false)
		require.NoError(t, err)
	}

	out := h.tick(t)
	require.Equal(t, ActionLost, out.Action)
	require.Equal(t, status.StateLost, h.devices.State(dev))
	require.Zero(t, h.sink.attributes, "state attribute must not be rewritten")

	d := h.device(t, dev)
	require.Zero(t, d.TransmitAttempts)
	require.Equal(t, h.clock.Now(), d.LostAt)
}

func TestPollOnce_LostBackoffAndRecovery(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")

	_, err := h.devices.SetState(dev, status.StateLost)
	require.NoError(t, err)

	h.clock.advance(14 * time.Second)
	require.Equal(t, ActionBackoff, h.tick(t).Action)
	require.Empty(t, h.client.calls)

	h.clock.advance(time.Second)
	out := h.tick(t)
	require.Equal(t, ActionRead, out.Action)
	require.NoError(t, out.Err)
	require.Len(t, h.client.calls, 1)

	require.Equal(t, status.StateConnected, h.devices.State(dev))
	require.True(t, h.device(t, dev).LostAt.IsZero())
	require.Equal(t, status.HealthOK, out.Status.Health)
}

func TestPollOnce_LostDeviceRetriesAfterBackoff(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, status.StateConnected, 1, 0)
	h.addRegisters(t, dev, registry.RegisterTypeCoil, 1, "")
	h.client.readErr = fmt.Errorf("%w: silent", pmodbus.ErrNoResponse)

	for i := 0; i < DefaultMaxTransmitAttempts; i++ {
		require.Equal(t, ActionRead, h.tick(t).Action)
		h.clock.advance(time.Second)
	}
	require.Equal(t, ActionLost, h.tick(t).Action)

	h.clock.advance(DefaultLostRetryDelay)
	require.Equal(t, ActionRead, h.tick(t).Action)
	require.Len(t, h.client.calls, DefaultMaxTransmitAttempts+1)
	require.Equal(t, status.StateLost, h.devices.State(dev))
}

// ---- construction ----

func TestNew_Validation(t *testing.T) {
	regs := registry.NewRegisterStore(nil)
	devs := registry.NewDeviceStore(registry.NewAttributeStore(nil), regs, nil)

	_, err := New(Config{}, nil, devs, regs, nil, zerolog.Nop())
	require.Error(t, err)

	_, err = New(Config{}, &fakeClient{}, nil, regs, nil, zerolog.Nop())
	require.Error(t, err)

	p, err := New(Config{}, &fakeClient{}, devs, regs, nil, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, DefaultInterval, p.cfg.Interval)
	require.Equal(t, DefaultMaxReadableRegisters, p.cfg.MaxReadableRegisters)
	require.Equal(t, DefaultLostRetryDelay, p.cfg.LostRetryDelay)
}
