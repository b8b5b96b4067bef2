// Package export persists decoded telemetry records. Each exporter consumes
// the per-kind record sequences of a decode result and writes its artifacts
// from them, so a sink never needs to understand the block pipeline.
package export

import (
	"time"

	sbwcli "github.com/sbwlabs/sbw-cli"
)

// Exporter writes a decode result to some destination and reports the
// artifacts it created.
type Exporter interface {
	Export(result *sbwcli.Result) (created []string, err error)
}

// Record kind names used for file naming and KV prefixes.
const (
	KindIMU         = "imu"
	KindTemperature = "temperature"
	KindHealth      = "health"
	KindSession     = "session"
	KindTimestamp   = "timestamp"
	KindRaw         = "raw"
	KindMalformed   = "malformed"
)

// formatMicros renders a record timestamp context; records that precede the
// first timestamp of their block have none.
func formatMicros(micros *uint64) string {
	if micros == nil {
		return ""
	}
	return time.UnixMicro(int64(*micros)).UTC().Format(time.RFC3339Nano)
}
