// internal/registry/types.go
package registry

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDeviceNotFound     = errors.New("registry: device not found")
	ErrRegisterNotFound   = errors.New("registry: register not found")
	ErrAttributeNotFound  = errors.New("registry: attribute not found")
	ErrReadOnlyRegister   = errors.New("registry: register is read-only")
	ErrDuplicateRegister  = errors.New("registry: register address already used")
	ErrDuplicateAttribute = errors.New("registry: attribute type already used")
	ErrUnsupportedValue   = errors.New("registry: unsupported value for register")
)

// Clock supplies wall-clock time to the stores and the poller.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ---- REGISTER TYPES ----

// RegisterType is one of the four Modbus address spaces.
type RegisterType uint8

const (
	RegisterTypeNone RegisterType = iota
	RegisterTypeDiscrete
	RegisterTypeCoil
	RegisterTypeInput
	RegisterTypeHolding
)

// ScanOrder is the fixed priority in which register blocks are read.
var ScanOrder = [...]RegisterType{
	RegisterTypeDiscrete,
	RegisterTypeCoil,
	RegisterTypeInput,
	RegisterTypeHolding,
}

// WriteOrder is the priority in which pending writes are dispatched.
var WriteOrder = [...]RegisterType{
	RegisterTypeCoil,
	RegisterTypeHolding,
}

func (t RegisterType) String() string {
	switch t {
	case RegisterTypeDiscrete:
		return "discrete"
	case RegisterTypeCoil:
		return "coil"
	case RegisterTypeInput:
		return "input"
	case RegisterTypeHolding:
		return "holding"
	default:
		return "none"
	}
}

// Writable reports whether the master may write into this address space.
func (t RegisterType) Writable() bool {
	return t == RegisterTypeCoil || t == RegisterTypeHolding
}

// Bits reports whether the address space carries single bits.
func (t RegisterType) Bits() bool {
	return t == RegisterTypeDiscrete || t == RegisterTypeCoil
}

// ParseRegisterType accepts the config spelling of a register type.
func ParseRegisterType(s string) (RegisterType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "discrete", "discrete_input", "di":
		return RegisterTypeDiscrete, true
	case "coil", "co":
		return RegisterTypeCoil, true
	case "input", "input_register", "ir":
		return RegisterTypeInput, true
	case "holding", "holding_register", "hr":
		return RegisterTypeHolding, true
	default:
		return RegisterTypeNone, false
	}
}

// ---- DATA TYPES ----

// DataType is the value kind carried by an input or holding register.
type DataType string

const (
	DataTypeUnknown DataType = "unknown"
	DataTypeChar    DataType = "char"
	DataTypeUChar   DataType = "uchar"
	DataTypeShort   DataType = "short"
	DataTypeUShort  DataType = "ushort"
	DataTypeInt     DataType = "int"
	DataTypeUInt    DataType = "uint"
	DataTypeFloat   DataType = "float"
	DataTypeBoolean DataType = "boolean"
	DataTypeString  DataType = "string"
)

// Signed reports whether raw register content is two's complement.
func (d DataType) Signed() bool {
	return d == DataTypeChar || d == DataTypeShort || d == DataTypeInt
}

// Words is the number of consecutive 16-bit registers one value occupies.
// INT, UINT and FLOAT are 32-bit, high word first.
func (d DataType) Words() int {
	switch d {
	case DataTypeInt, DataTypeUInt, DataTypeFloat:
		return 2
	default:
		return 1
	}
}

// Numeric reports whether values of this type may be written to a holding register.
func (d DataType) Numeric() bool {
	switch d {
	case DataTypeChar, DataTypeUChar, DataTypeShort, DataTypeUShort,
		DataTypeInt, DataTypeUInt, DataTypeFloat, DataTypeBoolean:
		return true
	default:
		return false
	}
}

// ParseDataType accepts the config spelling of a data type.
func ParseDataType(s string) (DataType, bool) {
	d := DataType(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DataTypeChar, DataTypeUChar, DataTypeShort, DataTypeUShort,
		DataTypeInt, DataTypeUInt, DataTypeFloat, DataTypeBoolean, DataTypeString:
		return d, true
	default:
		return DataTypeUnknown, false
	}
}

// ---- ATTRIBUTE TYPES ----

// AttributeType names a device-level attribute slot.
type AttributeType string

const (
	AttributeState           AttributeType = "state"
	AttributeAddress         AttributeType = "address"
	AttributeSerialNumber    AttributeType = "serial_number"
	AttributeFirmwareVersion AttributeType = "firmware_version"
	AttributeHardwareVersion AttributeType = "hardware_version"
)

// ---- RECORDS ----

// Cursor points at the next register block to read.
// Type RegisterTypeNone means no scan is in progress.
type Cursor struct {
	Type    RegisterType
	Address uint16
}

// IsZero reports whether the cursor is cleared.
func (c Cursor) IsZero() bool { return c.Type == RegisterTypeNone }

// Device is the runtime state of one polled slave.
type Device struct {
	ID               uuid.UUID
	Enabled          bool
	LostAt           time.Time
	TransmitAttempts int
	LastWriteAt      time.Time
	LastReadAt       time.Time
	SamplingTime     time.Duration
	Cursor           Cursor
}

// LastPacketAt is the most recent packet timestamp of either kind.
func (d Device) LastPacketAt() time.Time {
	if d.LastWriteAt.After(d.LastReadAt) {
		return d.LastWriteAt
	}
	return d.LastReadAt
}

// Attribute is a device-level metadata slot.
type Attribute struct {
	ID       uuid.UUID
	DeviceID uuid.UUID
	Type     AttributeType
	Value    any
}

// Register is one addressable data slot on a device.
//
// DataType and Decimals are only meaningful for input and holding registers;
// discrete inputs and coils always carry DataTypeBoolean.
// A zero ExpectedPendingAt means no write is in flight.
type Register struct {
	ID                uuid.UUID
	DeviceID          uuid.UUID
	Type              RegisterType
	Address           uint16
	DataType          DataType
	Decimals          int
	ActualValue       any
	ExpectedValue     any
	ExpectedPendingAt time.Time
}

// Pending reports whether a write of the expected value is in flight.
func (r Register) Pending() bool { return !r.ExpectedPendingAt.IsZero() }

// HasExpected reports whether a write is waiting to be dispatched or confirmed.
func (r Register) HasExpected() bool { return r.ExpectedValue != nil }
