package export

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	sbwcli "github.com/sbwlabs/sbw-cli"
)

// Key prefixes for the record kinds stored in BadgerDB.
const (
	IMUPrefix       = "imu:"
	TempPrefix      = "temp:"
	HealthPrefix    = "health:"
	SessionPrefix   = "session:"
	TimestampPrefix = "ts:"
	RawPrefix       = "raw:"
	MalformedPrefix = "malformed:"
	SummaryKey      = "summary:run"
)

// KVWriter is the narrow write surface the record store needs.
type KVWriter interface {
	Set(key, val []byte) error
}

// KVExporter persists decoded records into an embedded BadgerDB so
// downstream tooling can query them without re-decoding the capture.
// Records are keyed by prefix, block ID, and record index, which preserves
// block and cursor order under a lexicographic scan.
type KVExporter struct {
	Dir string
}

func (e *KVExporter) Export(result *sbwcli.Result) ([]string, error) {
	opts := badger.DefaultOptions(e.Dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	defer db.Close()

	err = db.Update(func(txn *badger.Txn) error {
		return storeResult(txn, result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store records: %w", err)
	}

	return []string{e.Dir}, nil
}

// storeResult writes every record sequence plus the run summary through w.
func storeResult(w KVWriter, result *sbwcli.Result) error {
	for _, r := range result.IMU {
		if err := storeRecord(w, IMUPrefix, r.Provenance, r); err != nil {
			return err
		}
	}
	for _, r := range result.Temperatures {
		if err := storeRecord(w, TempPrefix, r.Provenance, r); err != nil {
			return err
		}
	}
	for _, r := range result.Health {
		if err := storeRecord(w, HealthPrefix, r.Provenance, r); err != nil {
			return err
		}
	}
	for _, r := range result.Sessions {
		if err := storeRecord(w, SessionPrefix, r.Provenance, r); err != nil {
			return err
		}
	}
	for _, r := range result.Timestamps {
		if err := storeRecord(w, TimestampPrefix, r.Provenance, r); err != nil {
			return err
		}
	}
	for _, r := range result.Raw {
		if err := storeRecord(w, RawPrefix, r.Provenance, r); err != nil {
			return err
		}
	}
	for _, r := range result.Malformed {
		if err := storeRecord(w, MalformedPrefix, r.Provenance, r); err != nil {
			return err
		}
	}

	summary, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return w.Set([]byte(SummaryKey), summary)
}

func storeRecord(w KVWriter, prefix string, prov sbwcli.Provenance, record any) error {
	val, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	key := fmt.Sprintf("%s%04x:%08x", prefix, prov.BlockID, uint32(prov.RecordIndex))
	if err := w.Set([]byte(key), val); err != nil {
		return fmt.Errorf("failed to store record %s: %w", key, err)
	}
	return nil
}
