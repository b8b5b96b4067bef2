package sbwcli

import "fmt"

// Kind identifies the payload schema of a TLV record (TL-1.0 type IDs).
type Kind uint8

const (
	KindIMU         Kind = 0x01
	KindTemperature Kind = 0x02
	KindHealth      Kind = 0x03
	KindSession     Kind = 0x04
	KindTimestamp   Kind = 0x05
)

func (k Kind) String() string {
	switch k {
	case KindIMU:
		return "imu"
	case KindTemperature:
		return "temperature"
	case KindHealth:
		return "health"
	case KindSession:
		return "session"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(k))
	}
}

// Provenance ties a decoded record back to the block and cursor position it
// was produced from. TimestampMicros is nil for records that precede the
// first timestamp record of their block.
type Provenance struct {
	BlockID         uint16
	RecordIndex     int
	TimestampMicros *uint64
}

// IMURecord is a decoded inertial sample: accelerometer in m/s², gyroscope
// in rad/s.
type IMURecord struct {
	Provenance
	AccelX float32
	AccelY float32
	AccelZ float32
	GyroX  float32
	GyroY  float32
	GyroZ  float32
}

// TemperatureRecord is a decoded temperature sample in °C from a single
// sensor.
type TemperatureRecord struct {
	Provenance
	Temperature float32
	SensorID    uint32
}

// HealthRecord is a decoded system health sample.
type HealthRecord struct {
	Provenance
	BatteryVoltage float32
	CPUTemperature float32
	MemoryUsage    uint32
	ErrorCode      uint32
}

// SessionRecord is decoded session metadata. Reserved holds the trailing
// bytes after the firmware version; their layout is not defined by TL-1.0,
// so they are preserved opaquely.
type SessionRecord struct {
	Provenance
	SessionID       [16]byte
	FirmwareVersion uint32
	Reserved        []byte
}

// TimestampRecord is a decoded time reference in microseconds since the Unix
// epoch. It also becomes the timestamp context for subsequent records in the
// same block.
type TimestampRecord struct {
	Provenance
	Micros uint64
}

// RawRecord preserves a TLV record of a type the scanner does not recognize.
type RawRecord struct {
	Provenance
	Type    uint8
	Payload []byte
}

// MalformedRecord marks a TLV record whose payload length does not match its
// declared schema. The payload is dropped; the surrounding block keeps
// parsing.
type MalformedRecord struct {
	Provenance
	Type   uint8
	Length uint16
	Reason string
}
