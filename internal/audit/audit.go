// Package audit records security-relevant events of a decode run: capture
// file access, cryptographic operations, and data exports. Every event
// carries the run ID so trails from concurrent invocations stay separable.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Trail emits structured audit events through a logrus logger.
type Trail struct {
	log   *logrus.Logger
	runID string
}

// New creates a trail with a fresh run ID.
func New(log *logrus.Logger) *Trail {
	return &Trail{log: log, runID: uuid.NewString()}
}

// RunID returns the identifier attached to every event of this trail.
func (t *Trail) RunID() string {
	return t.runID
}

func (t *Trail) entry(operation string) *logrus.Entry {
	return t.log.WithFields(logrus.Fields{
		"audit":     true,
		"run_id":    t.runID,
		"operation": operation,
	})
}

// FileAccess records that a capture file was opened, together with a SHA-256
// content hash for integrity correlation. Hashing failures degrade to "N/A"
// rather than blocking the run.
func (t *Trail) FileAccess(path string, operation string) {
	t.entry("FILE_ACCESS").WithFields(logrus.Fields{
		"file":      path,
		"access":    operation,
		"file_hash": hashFile(path),
	}).Info("file access")
}

// CryptoOperation records the outcome of a cryptographic operation. Key
// material is never logged.
func (t *Trail) CryptoOperation(operation string, success bool) {
	t.entry("CRYPTO_" + operation).WithField("success", success).Info("crypto operation")
}

// ExportOperation records a data export for compliance trails.
func (t *Trail) ExportOperation(exportType string, destination string, recordCount int) {
	t.entry("DATA_EXPORT").WithFields(logrus.Fields{
		"export_type":  exportType,
		"destination":  destination,
		"record_count": recordCount,
	}).Info("data export")
}

func hashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "N/A"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
