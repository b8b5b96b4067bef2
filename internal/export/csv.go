package export

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	sbwcli "github.com/sbwlabs/sbw-cli"
)

// CSVExporter writes one CSV file per record kind into Dir, skipping kinds
// with no records. Timestamp records get no file of their own; their values
// appear in the timestamp column of the records that follow them.
type CSVExporter struct {
	Dir       string
	Delimiter rune
}

func (e *CSVExporter) Export(result *sbwcli.Result) ([]string, error) {
	var created []string

	write := func(kind string, header []string, rows [][]string) error {
		if len(rows) == 0 {
			return nil
		}
		path := filepath.Join(e.Dir, kind+"_data.csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if e.Delimiter != 0 {
			w.Comma = e.Delimiter
		}
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := w.WriteAll(rows); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		created = append(created, path)
		return nil
	}

	if err := write(KindIMU,
		[]string{"timestamp", "block_id", "record_index", "accel_x", "accel_y", "accel_z", "gyro_x", "gyro_y", "gyro_z"},
		imuRows(result.IMU)); err != nil {
		return created, err
	}
	if err := write(KindTemperature,
		[]string{"timestamp", "block_id", "record_index", "temperature", "sensor_id"},
		temperatureRows(result.Temperatures)); err != nil {
		return created, err
	}
	if err := write(KindHealth,
		[]string{"timestamp", "block_id", "record_index", "battery_voltage", "cpu_temperature", "memory_usage", "error_code"},
		healthRows(result.Health)); err != nil {
		return created, err
	}
	if err := write(KindSession,
		[]string{"timestamp", "block_id", "record_index", "session_id", "firmware_version", "reserved"},
		sessionRows(result.Sessions)); err != nil {
		return created, err
	}
	if err := write(KindRaw,
		[]string{"timestamp", "block_id", "record_index", "tlv_type", "payload"},
		rawRows(result.Raw)); err != nil {
		return created, err
	}
	if err := write(KindMalformed,
		[]string{"timestamp", "block_id", "record_index", "tlv_type", "tlv_length", "reason"},
		malformedRows(result.Malformed)); err != nil {
		return created, err
	}

	return created, nil
}

func provCols(p sbwcli.Provenance) []string {
	return []string{
		formatMicros(p.TimestampMicros),
		strconv.Itoa(int(p.BlockID)),
		strconv.Itoa(p.RecordIndex),
	}
}

func f32(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func imuRows(records []sbwcli.IMURecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, append(provCols(r.Provenance),
			f32(r.AccelX), f32(r.AccelY), f32(r.AccelZ),
			f32(r.GyroX), f32(r.GyroY), f32(r.GyroZ)))
	}
	return rows
}

func temperatureRows(records []sbwcli.TemperatureRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, append(provCols(r.Provenance),
			f32(r.Temperature), strconv.FormatUint(uint64(r.SensorID), 10)))
	}
	return rows
}

func healthRows(records []sbwcli.HealthRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, append(provCols(r.Provenance),
			f32(r.BatteryVoltage), f32(r.CPUTemperature),
			strconv.FormatUint(uint64(r.MemoryUsage), 10),
			strconv.FormatUint(uint64(r.ErrorCode), 10)))
	}
	return rows
}

func sessionRows(records []sbwcli.SessionRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, append(provCols(r.Provenance),
			hex.EncodeToString(r.SessionID[:]),
			fmt.Sprintf("0x%08X", r.FirmwareVersion),
			hex.EncodeToString(r.Reserved)))
	}
	return rows
}

func rawRows(records []sbwcli.RawRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, append(provCols(r.Provenance),
			fmt.Sprintf("0x%02X", r.Type), hex.EncodeToString(r.Payload)))
	}
	return rows
}

func malformedRows(records []sbwcli.MalformedRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, append(provCols(r.Provenance),
			fmt.Sprintf("0x%02X", r.Type), strconv.Itoa(int(r.Length)), r.Reason))
	}
	return rows
}
