package sbwcli

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// Compression names an inflation algorithm. The empty value selects the
// algorithm declared by the block header flags.
type Compression string

const (
	CompressionAuto       Compression = ""
	CompressionNone       Compression = "none"
	CompressionLZ4        Compression = "lz4"
	CompressionHeatshrink Compression = "heatshrink"
	CompressionZstd       Compression = "zstd"
	CompressionLZMA       Compression = "lzma"
)

// Header flag low-nibble values (LG-1.0).
const (
	flagAlgoNone       = 0x0
	flagAlgoLZ4        = 0x1
	flagAlgoHeatshrink = 0x2
)

// Decompression skip reasons.
const (
	ReasonUnsupportedAlgorithm = "unsupported_algorithm"
	ReasonUnknownAlgorithm     = "unknown_algorithm"
	ReasonCorruptStream        = "corrupt_stream"
)

var (
	// ErrUnsupportedAlgorithm marks an algorithm the format names but this
	// decoder does not implement (heatshrink).
	ErrUnsupportedAlgorithm = errors.New("unsupported compression algorithm")
	// ErrUnknownAlgorithm marks a flag nibble outside the LG-1.0 mapping.
	ErrUnknownAlgorithm = errors.New("unknown compression algorithm")
)

// Decompressor inflates unsealed plaintext. An explicit override from the
// configuration wins over the header flags.
type Decompressor struct {
	override Compression
}

// NewDecompressor returns a decompressor with the given override; pass
// CompressionAuto to follow header flags.
func NewDecompressor(override Compression) *Decompressor {
	return &Decompressor{override: override}
}

// Inflate decompresses data according to the header flags, or the configured
// override when one is set.
func (d *Decompressor) Inflate(data []byte, flags uint8) ([]byte, error) {
	algo := d.override
	if algo == CompressionAuto {
		switch flags & 0x0f {
		case flagAlgoNone:
			algo = CompressionNone
		case flagAlgoLZ4:
			algo = CompressionLZ4
		case flagAlgoHeatshrink:
			algo = CompressionHeatshrink
		default:
			return nil, fmt.Errorf("%w: flag nibble 0x%X", ErrUnknownAlgorithm, flags&0x0f)
		}
	}

	switch algo {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return decompressLZ4(data)
	case CompressionZstd:
		return decompressZstd(data)
	case CompressionLZMA:
		return decompressLzma(data)
	case CompressionHeatshrink:
		return nil, fmt.Errorf("%w: heatshrink", ErrUnsupportedAlgorithm)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
}

func decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to decompress LZ4 data: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec.IOReadCloser()); err != nil {
		return nil, fmt.Errorf("failed to decompress zstd data: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create LZMA reader: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to decompress LZMA data: %w", err)
	}
	return buf.Bytes(), nil
}
