package sbwcli

import (
	"encoding/binary"
	"fmt"
	"math"
)

const tlvHeaderSize = 3 // type u8 + length u16 LE

// Fixed payload sizes per TL-1.0 schema.
const (
	imuPayloadSize         = 24
	temperaturePayloadSize = 8
	healthPayloadSize      = 16
	sessionPayloadMin      = 20
	timestampPayloadSize   = 8
)

// TLV tail-skip reasons.
const (
	ReasonTruncatedRecordHeader = "truncated_record_header"
	ReasonLengthOverrun         = "length_overrun"
)

// TailSkip reports why a TLV scan stopped before consuming the whole block.
// Records decoded before the stop are retained.
type TailSkip struct {
	Reason string
	Type   uint8  // set for length overruns
	Length uint16 // set for length overruns
	Offset int    // cursor position of the offending record
}

// ScanResult holds the records decoded from one block, split per kind but
// counted in cursor order.
type ScanResult struct {
	IMU          []IMURecord
	Temperatures []TemperatureRecord
	Health       []HealthRecord
	Sessions     []SessionRecord
	Timestamps   []TimestampRecord
	Raw          []RawRecord
	Malformed    []MalformedRecord

	Records int // total records produced, in cursor order
	Tail    *TailSkip
}

// ScanBlock walks the inflated block and decodes TLV records. The cursor
// advances by exactly 3+length per record; a malformed payload keeps the
// walk going, a length that overruns the block ends it with a tail skip.
func ScanBlock(data []byte, blockID uint16) ScanResult {
	var res ScanResult
	var tsContext *uint64
	cursor := 0

	for {
		remaining := len(data) - cursor
		if remaining == 0 {
			return res
		}
		if remaining < tlvHeaderSize {
			res.Tail = &TailSkip{Reason: ReasonTruncatedRecordHeader, Offset: cursor}
			return res
		}

		recordType := data[cursor]
		length := binary.LittleEndian.Uint16(data[cursor+1 : cursor+tlvHeaderSize])
		if int(length) > remaining-tlvHeaderSize {
			res.Tail = &TailSkip{Reason: ReasonLengthOverrun, Type: recordType, Length: length, Offset: cursor}
			return res
		}

		payload := data[cursor+tlvHeaderSize : cursor+tlvHeaderSize+int(length)]
		prov := Provenance{BlockID: blockID, RecordIndex: res.Records, TimestampMicros: tsContext}

		switch Kind(recordType) {
		case KindIMU:
			if len(payload) != imuPayloadSize {
				res.Malformed = append(res.Malformed, malformed(prov, recordType, length, imuPayloadSize))
			} else {
				res.IMU = append(res.IMU, IMURecord{
					Provenance: prov,
					AccelX:     float32LE(payload[0:]),
					AccelY:     float32LE(payload[4:]),
					AccelZ:     float32LE(payload[8:]),
					GyroX:      float32LE(payload[12:]),
					GyroY:      float32LE(payload[16:]),
					GyroZ:      float32LE(payload[20:]),
				})
			}
		case KindTemperature:
			if len(payload) != temperaturePayloadSize {
				res.Malformed = append(res.Malformed, malformed(prov, recordType, length, temperaturePayloadSize))
			} else {
				res.Temperatures = append(res.Temperatures, TemperatureRecord{
					Provenance:  prov,
					Temperature: float32LE(payload[0:]),
					SensorID:    binary.LittleEndian.Uint32(payload[4:8]),
				})
			}
		case KindHealth:
			if len(payload) != healthPayloadSize {
				res.Malformed = append(res.Malformed, malformed(prov, recordType, length, healthPayloadSize))
			} else {
				res.Health = append(res.Health, HealthRecord{
					Provenance:     prov,
					BatteryVoltage: float32LE(payload[0:]),
					CPUTemperature: float32LE(payload[4:]),
					MemoryUsage:    binary.LittleEndian.Uint32(payload[8:12]),
					ErrorCode:      binary.LittleEndian.Uint32(payload[12:16]),
				})
			}
		case KindSession:
			if len(payload) < sessionPayloadMin {
				res.Malformed = append(res.Malformed, MalformedRecord{
					Provenance: prov,
					Type:       recordType,
					Length:     length,
					Reason:     fmt.Sprintf("payload too short: got %d bytes, want at least %d", len(payload), sessionPayloadMin),
				})
			} else {
				rec := SessionRecord{
					Provenance:      prov,
					FirmwareVersion: binary.LittleEndian.Uint32(payload[16:20]),
					Reserved:        append([]byte(nil), payload[20:]...),
				}
				copy(rec.SessionID[:], payload[:16])
				res.Sessions = append(res.Sessions, rec)
			}
		case KindTimestamp:
			if len(payload) != timestampPayloadSize {
				res.Malformed = append(res.Malformed, malformed(prov, recordType, length, timestampPayloadSize))
			} else {
				micros := binary.LittleEndian.Uint64(payload[:8])
				res.Timestamps = append(res.Timestamps, TimestampRecord{Provenance: prov, Micros: micros})
				ts := micros
				tsContext = &ts
			}
		default:
			res.Raw = append(res.Raw, RawRecord{
				Provenance: prov,
				Type:       recordType,
				Payload:    append([]byte(nil), payload...),
			})
		}

		res.Records++
		cursor += tlvHeaderSize + int(length)
	}
}

func malformed(prov Provenance, recordType uint8, length uint16, want int) MalformedRecord {
	return MalformedRecord{
		Provenance: prov,
		Type:       recordType,
		Length:     length,
		Reason:     fmt.Sprintf("payload length mismatch: got %d bytes, want %d", length, want),
	}
}

func float32LE(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:4]))
}
