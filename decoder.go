package sbwcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// ErrFileTooLarge reports a capture file exceeding limits.max_file_size.
var ErrFileTooLarge = errors.New("capture file exceeds configured size limit")

// Block warning reasons attached to otherwise-successful outcomes.
const (
	WarnReservedFlagBits = "reserved_flag_bits_set"
	WarnSizeMismatch     = "raw_size_mismatch"
)

// BlockOutcome is one ledger entry: what happened to a single block.
type BlockOutcome struct {
	BlockID         uint16
	Ok              bool
	Stage           Stage  // failing stage; empty when Ok
	Reason          string // skip reason; empty when Ok
	RecordsProduced int
	BytesConsumed   int64
	Warnings        []string
}

// Summary aggregates a whole run for reporting.
type Summary struct {
	BlocksSeen     int
	BlocksOK       int
	SkippedByStage map[Stage]int
	RecordsByKind  map[string]int
	TotalRecords   int
	FirstTimestamp *uint64 // microseconds since epoch
	LastTimestamp  *uint64
	BytesRead      int64
}

// Result is the observable output of a decode run: per-kind ordered record
// sequences, the block ledger, and the aggregate summary.
type Result struct {
	IMU          []IMURecord
	Temperatures []TemperatureRecord
	Health       []HealthRecord
	Sessions     []SessionRecord
	Timestamps   []TimestampRecord
	Raw          []RawRecord
	Malformed    []MalformedRecord

	Ledger  []BlockOutcome
	Summary Summary
}

// Decoder runs the block pipeline over capture sources. Construct with Init,
// release key material with Close.
type Decoder struct {
	config       Config
	unsealer     *Unsealer
	decompressor *Decompressor
	diag         Diagnostics
}

// Init validates the configuration and prepares a decoder. The configured
// logger becomes the package logger.
func Init(config *Config) (*Decoder, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log = config.Logger

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for decoder: %w", err)
	}
	for _, w := range config.LoadWarnings {
		log.Warn(w)
	}

	unsealer, err := NewUnsealer(config.Key, config.KeyFailureThreshold)
	if err != nil {
		return nil, err
	}

	diag := config.Diagnostics
	if diag == nil {
		diag = logDiagnostics{}
	}

	return &Decoder{
		config:       *config,
		unsealer:     unsealer,
		decompressor: NewDecompressor(config.Compression),
		diag:         diag,
	}, nil
}

// Close zeroes the key material held by the unsealer.
func (d *Decoder) Close() {
	d.unsealer.Close()
}

// DecodeFile decodes a capture file end-to-end.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat capture file: %w", err)
	}
	if info.Size() > d.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, info.Size(), d.config.MaxFileSize)
	}

	return d.DecodeReaderAt(ctx, f, info.Size())
}

// DecodeBytes decodes an in-memory capture.
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (*Result, error) {
	return d.DecodeReaderAt(ctx, bytes.NewReader(data), int64(len(data)))
}

// DecodeReaderAt pulls frames lazily from src and routes each through
// unseal → inflate → scan, recording every block in the ledger. A single
// block's failure never aborts the run; the only fatal conditions are I/O
// errors, cancellation, and the key_likely_wrong threshold. On fatal errors
// the partial result accumulated so far is returned alongside the error.
func (d *Decoder) DecodeReaderAt(ctx context.Context, src io.ReaderAt, size int64) (*Result, error) {
	reader := NewFrameReader(src, size, d.config.MaxBlockSize)
	res := &Result{}
	d.unsealer.resetCounters()

	for {
		if err := ctx.Err(); err != nil {
			d.finalize(res, reader.BytesConsumed())
			return res, err
		}

		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			d.finalize(res, reader.BytesConsumed())
			return res, err
		}

		d.processFrame(frame, res)

		if d.unsealer.KeyExhausted() {
			d.diag.Emit(Event{Stage: StageCrypto, Severity: SeverityError, Reason: "key_likely_wrong"})
			d.finalize(res, reader.BytesConsumed())
			return res, ErrKeyLikelyWrong
		}
	}

	if skip := reader.Termination(); skip != nil {
		outcome := BlockOutcome{
			Stage:         StageFrame,
			Reason:        skip.Reason,
			BytesConsumed: skip.Remaining,
		}
		if skip.Header != nil {
			outcome.BlockID = skip.Header.BlockID
		}
		res.Ledger = append(res.Ledger, outcome)
		d.diag.Emit(Event{BlockID: outcome.BlockID, Stage: StageFrame, Severity: SeverityWarning, Reason: skip.Reason})
	}

	d.finalize(res, size)
	return res, nil
}

// processFrame advances one block through the crypto, decompression, and TLV
// stages and appends its outcome to the ledger.
func (d *Decoder) processFrame(frame *Frame, res *Result) {
	outcome := BlockOutcome{
		BlockID:       frame.Header.BlockID,
		BytesConsumed: frame.WireSize(),
	}

	if frame.Header.Flags&0xf0 != 0 {
		outcome.Warnings = append(outcome.Warnings, WarnReservedFlagBits)
		d.diag.Emit(Event{BlockID: frame.Header.BlockID, Stage: StageFrame, Severity: SeverityWarning, Reason: WarnReservedFlagBits})
	}

	plaintext, err := d.unsealer.Open(frame)
	if err != nil {
		d.recordSkip(res, outcome, StageCrypto, cryptoReason(err))
		return
	}

	inflated, err := d.decompressor.Inflate(plaintext, frame.Header.Flags)
	if err != nil {
		d.recordSkip(res, outcome, StageDecompress, decompressReason(err))
		return
	}

	if len(inflated) != int(frame.Header.RawSize) {
		outcome.Warnings = append(outcome.Warnings, WarnSizeMismatch)
		d.diag.Emit(Event{BlockID: frame.Header.BlockID, Stage: StageDecompress, Severity: SeverityWarning, Reason: WarnSizeMismatch})
	}

	scan := ScanBlock(inflated, frame.Header.BlockID)

	res.IMU = append(res.IMU, scan.IMU...)
	res.Temperatures = append(res.Temperatures, scan.Temperatures...)
	res.Health = append(res.Health, scan.Health...)
	res.Sessions = append(res.Sessions, scan.Sessions...)
	res.Timestamps = append(res.Timestamps, scan.Timestamps...)
	res.Raw = append(res.Raw, scan.Raw...)
	res.Malformed = append(res.Malformed, scan.Malformed...)

	outcome.RecordsProduced = scan.Records
	if scan.Tail != nil {
		outcome.Stage = StageTLV
		outcome.Reason = scan.Tail.Reason
		d.diag.Emit(Event{BlockID: frame.Header.BlockID, Stage: StageTLV, Severity: SeverityWarning, Reason: scan.Tail.Reason})
	} else {
		outcome.Ok = true
	}
	res.Ledger = append(res.Ledger, outcome)

	log.Debugf("block %d: %d records produced", frame.Header.BlockID, scan.Records)
}

func (d *Decoder) recordSkip(res *Result, outcome BlockOutcome, stage Stage, reason string) {
	outcome.Stage = stage
	outcome.Reason = reason
	res.Ledger = append(res.Ledger, outcome)
	d.diag.Emit(Event{BlockID: outcome.BlockID, Stage: stage, Severity: SeverityError, Reason: reason})
}

func cryptoReason(err error) string {
	if errors.Is(err, ErrNonceLengthInvalid) {
		return ReasonNonceLengthInvalid
	}
	return ReasonWrongKeyOrTampered
}

func decompressReason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return ReasonUnsupportedAlgorithm
	case errors.Is(err, ErrUnknownAlgorithm):
		return ReasonUnknownAlgorithm
	default:
		return ReasonCorruptStream
	}
}

// finalize computes the aggregate summary from the ledger and the per-kind
// sequences.
func (d *Decoder) finalize(res *Result, bytesRead int64) {
	sum := Summary{
		SkippedByStage: make(map[Stage]int),
		RecordsByKind:  make(map[string]int),
		BytesRead:      bytesRead,
	}

	for _, outcome := range res.Ledger {
		sum.BlocksSeen++
		sum.TotalRecords += outcome.RecordsProduced
		if outcome.Ok {
			sum.BlocksOK++
		} else {
			sum.SkippedByStage[outcome.Stage]++
		}
	}

	sum.RecordsByKind[KindIMU.String()] = len(res.IMU)
	sum.RecordsByKind[KindTemperature.String()] = len(res.Temperatures)
	sum.RecordsByKind[KindHealth.String()] = len(res.Health)
	sum.RecordsByKind[KindSession.String()] = len(res.Sessions)
	sum.RecordsByKind[KindTimestamp.String()] = len(res.Timestamps)
	sum.RecordsByKind["raw"] = len(res.Raw)
	sum.RecordsByKind["malformed"] = len(res.Malformed)

	for i := range res.Timestamps {
		micros := res.Timestamps[i].Micros
		if sum.FirstTimestamp == nil || micros < *sum.FirstTimestamp {
			first := micros
			sum.FirstTimestamp = &first
		}
		if sum.LastTimestamp == nil || micros > *sum.LastTimestamp {
			last := micros
			sum.LastTimestamp = &last
		}
	}

	res.Summary = sum
}
