package sbwcli

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz/lzma"
)

// testKey returns a valid 32-byte key with an ascending byte pattern.
func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(0x11 + i)
	}
	return key
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func setupTestDecoder(t *testing.T, config *Config) *Decoder {
	t.Helper()
	if config == nil {
		config = &Config{Key: testKey()}
	}
	if config.Logger == nil {
		config.Logger = testLogger()
	}
	decoder, err := Init(config)
	if err != nil {
		t.Fatalf("Failed to initialize decoder: %v", err)
	}
	t.Cleanup(decoder.Close)
	return decoder
}

// tlvRecord assembles one TLV record: type, little-endian length, payload.
func tlvRecord(recordType uint8, payload []byte) []byte {
	buf := make([]byte, tlvHeaderSize+len(payload))
	buf[0] = recordType
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[3:], payload)
	return buf
}

// buildFrame assembles a raw block from explicit header fields and an
// already-sealed payload, so tests can produce inconsistent headers.
func buildFrame(rawSize, compressedSize uint32, flags, nonceSize uint8, blockID uint16, payload []byte) []byte {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], rawSize)
	binary.LittleEndian.PutUint32(header[4:8], compressedSize)
	header[8] = flags
	header[9] = nonceSize
	binary.LittleEndian.PutUint16(header[10:12], blockID)
	return append(header, payload...)
}

// testNonce derives a deterministic 96-bit nonce from the block ID.
func testNonce(blockID uint16) []byte {
	nonce := make([]byte, NonceSize)
	binary.LittleEndian.PutUint16(nonce, blockID)
	return nonce
}

// seal encrypts plaintext under the EN-1.0 profile and returns
// ciphertext||tag.
func seal(t *testing.T, key, nonce, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("Failed to create cipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("Failed to create GCM: %v", err)
	}
	return aead.Seal(nil, nonce, plaintext, nil)
}

func compressFor(t *testing.T, algo Compression, data []byte) []byte {
	t.Helper()
	switch algo {
	case CompressionNone:
		return data
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			t.Fatalf("Failed to compress with LZ4: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Failed to close LZ4 writer: %v", err)
		}
		return buf.Bytes()
	case CompressionZstd:
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatalf("Failed to create zstd writer: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("Failed to compress with zstd: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Failed to close zstd writer: %v", err)
		}
		return buf.Bytes()
	case CompressionLZMA:
		var buf bytes.Buffer
		w, err := lzma.NewWriter(&buf)
		if err != nil {
			t.Fatalf("Failed to create LZMA writer: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("Failed to compress with LZMA: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Failed to close LZMA writer: %v", err)
		}
		return buf.Bytes()
	default:
		t.Fatalf("No test compressor for %q", algo)
		return nil
	}
}

// encodeBlock runs the reference encode path: compress per the flag nibble,
// seal under key, and frame with a consistent header.
func encodeBlock(t *testing.T, key []byte, blockID uint16, flags uint8, plaintext []byte) []byte {
	t.Helper()

	var algo Compression
	switch flags & 0x0f {
	case flagAlgoNone:
		algo = CompressionNone
	case flagAlgoLZ4:
		algo = CompressionLZ4
	default:
		t.Fatalf("encodeBlock: no encoder for flag nibble 0x%X", flags&0x0f)
	}
	compressed := compressFor(t, algo, plaintext)

	nonce := testNonce(blockID)
	sealed := seal(t, key, nonce, compressed)
	payload := append(append([]byte(nil), nonce...), sealed...)

	return buildFrame(uint32(len(plaintext)), uint32(len(sealed)-tagSize), flags, NonceSize, blockID, payload)
}

// float32Bytes renders values as little-endian IEEE-754 binary32.
func float32Bytes(values ...float32) []byte {
	buf := new(bytes.Buffer)
	for _, v := range values {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}
