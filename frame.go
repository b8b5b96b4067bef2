package sbwcli

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	headerSize = 12
	tagSize    = 16

	// DefaultMaxBlockSize caps the ciphertext length a header may declare.
	DefaultMaxBlockSize uint32 = 64 << 20
)

// Frame skip reasons (LG-1.0).
const (
	ReasonTruncatedHeader  = "truncated_header"
	ReasonTruncatedPayload = "truncated_payload"
	ReasonInvalidHeader    = "invalid_header"
)

// BlockHeader is the fixed 12-byte frame header of a capture block.
type BlockHeader struct {
	RawSize        uint32 // expected plaintext length after decompression
	CompressedSize uint32 // ciphertext length, excluding nonce and tag
	Flags          uint8  // low nibble selects compression, upper bits reserved
	NonceSize      uint8  // must be 12 for EN-1.0
	BlockID        uint16
}

func parseBlockHeader(buf []byte) BlockHeader {
	return BlockHeader{
		RawSize:        binary.LittleEndian.Uint32(buf[0:4]),
		CompressedSize: binary.LittleEndian.Uint32(buf[4:8]),
		Flags:          buf[8],
		NonceSize:      buf[9],
		BlockID:        binary.LittleEndian.Uint16(buf[10:12]),
	}
}

// Frame is one framed block sliced out of the capture stream. Payload is the
// sealed region: nonce, ciphertext, then the 16-byte authentication tag.
type Frame struct {
	Header  BlockHeader
	Payload []byte
	Offset  int64 // absolute offset of the header in the source
}

// Nonce returns the nonce prefix of the sealed payload.
func (f *Frame) Nonce() []byte {
	return f.Payload[:f.Header.NonceSize]
}

// Ciphertext returns the ciphertext together with the trailing tag, the
// shape AEAD open expects.
func (f *Frame) Ciphertext() []byte {
	return f.Payload[f.Header.NonceSize:]
}

// WireSize is the number of source bytes the frame occupied.
func (f *Frame) WireSize() int64 {
	return headerSize + int64(len(f.Payload))
}

// FrameSkip describes the terminal condition that ended a frame stream
// before the source was cleanly exhausted.
type FrameSkip struct {
	Reason    string
	Offset    int64        // where the offending header starts
	Remaining int64        // unconsumed tail bytes
	Header    *BlockHeader // set when a full header was read
}

// FrameReader slices a capture source into well-formed block frames. The
// sequence is lazy and non-restartable; the format has no sync marker, so a
// bad or truncated header ends the stream rather than resynchronizing.
type FrameReader struct {
	src          io.ReaderAt
	size         int64
	offset       int64
	maxBlockSize uint32
	done         bool
	skip         *FrameSkip
}

// NewFrameReader prepares a frame iterator over src, whose total length must
// be known. A maxBlockSize of 0 selects DefaultMaxBlockSize.
func NewFrameReader(src io.ReaderAt, size int64, maxBlockSize uint32) *FrameReader {
	if maxBlockSize == 0 {
		maxBlockSize = DefaultMaxBlockSize
	}
	return &FrameReader{src: src, size: size, maxBlockSize: maxBlockSize}
}

// Next returns the next frame, or io.EOF once the stream has ended. After
// io.EOF, Termination reports whether the end was clean or a terminal skip.
// Any other error is an I/O failure from the underlying source.
func (r *FrameReader) Next() (*Frame, error) {
	if r.done {
		return nil, io.EOF
	}

	remaining := r.size - r.offset
	if remaining == 0 {
		r.done = true
		return nil, io.EOF
	}
	if remaining < headerSize {
		r.terminate(&FrameSkip{Reason: ReasonTruncatedHeader, Offset: r.offset, Remaining: remaining})
		return nil, io.EOF
	}

	buf := make([]byte, headerSize)
	if err := r.readFull(buf, r.offset); err != nil {
		r.done = true
		return nil, fmt.Errorf("failed to read block header at offset %d: %w", r.offset, err)
	}
	header := parseBlockHeader(buf)

	if header.NonceSize == 0 || header.CompressedSize > r.maxBlockSize {
		r.terminate(&FrameSkip{Reason: ReasonInvalidHeader, Offset: r.offset, Remaining: remaining, Header: &header})
		return nil, io.EOF
	}

	need := int64(header.NonceSize) + int64(header.CompressedSize) + tagSize
	if remaining-headerSize < need {
		r.terminate(&FrameSkip{Reason: ReasonTruncatedPayload, Offset: r.offset, Remaining: remaining, Header: &header})
		return nil, io.EOF
	}

	payload := make([]byte, need)
	if err := r.readFull(payload, r.offset+headerSize); err != nil {
		r.done = true
		return nil, fmt.Errorf("failed to read block payload at offset %d: %w", r.offset+headerSize, err)
	}

	frame := &Frame{Header: header, Payload: payload, Offset: r.offset}
	r.offset += headerSize + need
	return frame, nil
}

// Termination returns the terminal skip that ended the stream, or nil for a
// clean end. Only meaningful after Next has returned io.EOF.
func (r *FrameReader) Termination() *FrameSkip {
	return r.skip
}

// BytesConsumed is the number of source bytes sliced into frames so far.
func (r *FrameReader) BytesConsumed() int64 {
	return r.offset
}

func (r *FrameReader) terminate(skip *FrameSkip) {
	r.done = true
	r.skip = skip
}

func (r *FrameReader) readFull(buf []byte, off int64) error {
	n, err := r.src.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return err
}
