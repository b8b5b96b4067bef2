package export

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sbwcli "github.com/sbwlabs/sbw-cli"
)

// JSONExporter writes a combined export with a metadata envelope plus one
// file per record kind into Dir.
type JSONExporter struct {
	Dir    string
	Indent int
}

type jsonEnvelope struct {
	Metadata jsonMetadata     `json:"metadata"`
	Records  []map[string]any `json:"records"`
}

type jsonMetadata struct {
	ExportTimestamp string `json:"export_timestamp"`
	TotalRecords    int    `json:"total_records"`
	FormatVersion   string `json:"format_version"`
}

func (e *JSONExporter) Export(result *sbwcli.Result) ([]string, error) {
	var created []string

	byKind := map[string][]map[string]any{
		KindIMU:         imuObjects(result.IMU),
		KindTemperature: temperatureObjects(result.Temperatures),
		KindHealth:      healthObjects(result.Health),
		KindSession:     sessionObjects(result.Sessions),
		KindTimestamp:   timestampObjects(result.Timestamps),
		KindRaw:         rawObjects(result.Raw),
		KindMalformed:   malformedObjects(result.Malformed),
	}

	var all []map[string]any
	for _, kind := range []string{KindIMU, KindTemperature, KindHealth, KindSession, KindTimestamp, KindRaw, KindMalformed} {
		all = append(all, byKind[kind]...)
	}

	envelope := jsonEnvelope{
		Metadata: jsonMetadata{
			ExportTimestamp: time.Now().UTC().Format(time.RFC3339),
			TotalRecords:    len(all),
			FormatVersion:   "1.0",
		},
		Records: all,
	}
	if envelope.Records == nil {
		envelope.Records = []map[string]any{}
	}

	completePath := filepath.Join(e.Dir, "sbw_data_complete.json")
	if err := e.writeFile(completePath, envelope); err != nil {
		return created, err
	}
	created = append(created, completePath)

	for kind, objects := range byKind {
		if len(objects) == 0 {
			continue
		}
		path := filepath.Join(e.Dir, kind+"_data.json")
		if err := e.writeFile(path, map[string]any{"data_type": kind, "record_count": len(objects), "data": objects}); err != nil {
			return created, err
		}
		created = append(created, path)
	}

	return created, nil
}

func (e *JSONExporter) writeFile(path string, v any) error {
	indent := e.Indent
	if indent <= 0 {
		indent = 2
	}
	data, err := json.MarshalIndent(v, "", strings.Repeat(" ", indent))
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func provObject(kind string, p sbwcli.Provenance) map[string]any {
	obj := map[string]any{
		"data_type":    kind,
		"block_id":     p.BlockID,
		"record_index": p.RecordIndex,
	}
	if p.TimestampMicros != nil {
		obj["timestamp"] = formatMicros(p.TimestampMicros)
		obj["timestamp_us"] = *p.TimestampMicros
	}
	return obj
}

func imuObjects(records []sbwcli.IMURecord) []map[string]any {
	objects := make([]map[string]any, 0, len(records))
	for _, r := range records {
		obj := provObject(KindIMU, r.Provenance)
		obj["accel_x"] = r.AccelX
		obj["accel_y"] = r.AccelY
		obj["accel_z"] = r.AccelZ
		obj["gyro_x"] = r.GyroX
		obj["gyro_y"] = r.GyroY
		obj["gyro_z"] = r.GyroZ
		objects = append(objects, obj)
	}
	return objects
}

func temperatureObjects(records []sbwcli.TemperatureRecord) []map[string]any {
	objects := make([]map[string]any, 0, len(records))
	for _, r := range records {
		obj := provObject(KindTemperature, r.Provenance)
		obj["temperature"] = r.Temperature
		obj["sensor_id"] = r.SensorID
		objects = append(objects, obj)
	}
	return objects
}

func healthObjects(records []sbwcli.HealthRecord) []map[string]any {
	objects := make([]map[string]any, 0, len(records))
	for _, r := range records {
		obj := provObject(KindHealth, r.Provenance)
		obj["battery_voltage"] = r.BatteryVoltage
		obj["cpu_temperature"] = r.CPUTemperature
		obj["memory_usage"] = r.MemoryUsage
		obj["error_code"] = r.ErrorCode
		objects = append(objects, obj)
	}
	return objects
}

func sessionObjects(records []sbwcli.SessionRecord) []map[string]any {
	objects := make([]map[string]any, 0, len(records))
	for _, r := range records {
		obj := provObject(KindSession, r.Provenance)
		obj["session_id"] = strings.ToUpper(hex.EncodeToString(r.SessionID[:]))
		obj["firmware_version"] = fmt.Sprintf("0x%08X", r.FirmwareVersion)
		if len(r.Reserved) > 0 {
			obj["reserved"] = hex.EncodeToString(r.Reserved)
		}
		objects = append(objects, obj)
	}
	return objects
}

func timestampObjects(records []sbwcli.TimestampRecord) []map[string]any {
	objects := make([]map[string]any, 0, len(records))
	for _, r := range records {
		obj := provObject(KindTimestamp, r.Provenance)
		obj["micros"] = r.Micros
		obj["iso"] = time.UnixMicro(int64(r.Micros)).UTC().Format(time.RFC3339Nano)
		objects = append(objects, obj)
	}
	return objects
}

func rawObjects(records []sbwcli.RawRecord) []map[string]any {
	objects := make([]map[string]any, 0, len(records))
	for _, r := range records {
		obj := provObject(KindRaw, r.Provenance)
		obj["tlv_type"] = r.Type
		obj["payload"] = hex.EncodeToString(r.Payload)
		objects = append(objects, obj)
	}
	return objects
}

func malformedObjects(records []sbwcli.MalformedRecord) []map[string]any {
	objects := make([]map[string]any, 0, len(records))
	for _, r := range records {
		obj := provObject(KindMalformed, r.Provenance)
		obj["tlv_type"] = r.Type
		obj["tlv_length"] = r.Length
		obj["reason"] = r.Reason
		objects = append(objects, obj)
	}
	return objects
}
