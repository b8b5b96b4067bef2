package sbwcli

import "github.com/sirupsen/logrus"

// Stage names one pipeline stage of the block state machine.
type Stage string

const (
	StageFrame      Stage = "frame"
	StageCrypto     Stage = "crypto"
	StageDecompress Stage = "decompress"
	StageTLV        Stage = "tlv"
)

// Severity classifies a diagnostic event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is a structured diagnostic emitted by the driver while decoding.
type Event struct {
	BlockID  uint16
	Stage    Stage
	Severity Severity
	Reason   string
}

// Diagnostics receives structured events from the decode driver. Sinks must
// not retain the event past the call.
type Diagnostics interface {
	Emit(Event)
}

// logDiagnostics forwards events to the package logger.
type logDiagnostics struct{}

func (logDiagnostics) Emit(e Event) {
	entry := log.WithFields(logrus.Fields{
		"block_id": e.BlockID,
		"stage":    e.Stage,
	})
	switch e.Severity {
	case SeverityError:
		entry.Error(e.Reason)
	case SeverityWarning:
		entry.Warn(e.Reason)
	default:
		entry.Info(e.Reason)
	}
}
