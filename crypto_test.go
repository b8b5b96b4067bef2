package sbwcli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameFromBytes(t *testing.T, data []byte) *Frame {
	t.Helper()
	reader := NewFrameReader(bytes.NewReader(data), int64(len(data)), 0)
	frame, err := reader.Next()
	require.NoError(t, err)
	return frame
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{"valid", testKey(), false},
		{"too short", make([]byte, 16), true},
		{"too long", make([]byte, 48), true},
		{"all zero", make([]byte, 32), true},
		{"constant pattern", bytes.Repeat([]byte{0xAB}, 32), true},
		{"nil", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewUnsealerRejectsBadKey(t *testing.T) {
	_, err := NewUnsealer(make([]byte, 32), 0)
	assert.Error(t, err)
}

func TestUnsealerRoundTrip(t *testing.T) {
	unsealer, err := NewUnsealer(testKey(), 0)
	require.NoError(t, err)
	defer unsealer.Close()

	plaintext := []byte("inertial samples go here")
	frame := frameFromBytes(t, encodeBlock(t, testKey(), 1, 0x00, plaintext))

	got, err := unsealer.Open(frame)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestUnsealerEmptyCiphertext(t *testing.T) {
	unsealer, err := NewUnsealer(testKey(), 0)
	require.NoError(t, err)
	defer unsealer.Close()

	frame := frameFromBytes(t, encodeBlock(t, testKey(), 1, 0x00, nil))
	require.EqualValues(t, 0, frame.Header.CompressedSize)

	got, err := unsealer.Open(frame)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnsealerTagMismatch(t *testing.T) {
	unsealer, err := NewUnsealer(testKey(), 0)
	require.NoError(t, err)
	defer unsealer.Close()

	data := encodeBlock(t, testKey(), 1, 0x00, []byte("payload"))
	data[len(data)-1] ^= 0x01

	_, err = unsealer.Open(frameFromBytes(t, data))
	assert.ErrorIs(t, err, ErrWrongKeyOrTampered)
}

func TestUnsealerSingleBitFlips(t *testing.T) {
	// A flip anywhere in nonce, ciphertext, or tag must fail authentication.
	unsealer, err := NewUnsealer(testKey(), 1<<20)
	require.NoError(t, err)
	defer unsealer.Close()

	clean := encodeBlock(t, testKey(), 1, 0x00, []byte("authenticated payload"))
	for i := headerSize; i < len(clean); i++ {
		data := append([]byte(nil), clean...)
		data[i] ^= 0x01
		_, err := unsealer.Open(frameFromBytes(t, data))
		require.ErrorIs(t, err, ErrWrongKeyOrTampered, "bit flip at offset %d", i)
	}
}

func TestUnsealerNonceLengthInvalid(t *testing.T) {
	unsealer, err := NewUnsealer(testKey(), 0)
	require.NoError(t, err)
	defer unsealer.Close()

	payload := make([]byte, 8+4+tagSize)
	frame := frameFromBytes(t, buildFrame(4, 4, 0x00, 8, 1, payload))

	_, err = unsealer.Open(frame)
	assert.ErrorIs(t, err, ErrNonceLengthInvalid)
}

func TestUnsealerKeyExhausted(t *testing.T) {
	unsealer, err := NewUnsealer(testKey(), 3)
	require.NoError(t, err)
	defer unsealer.Close()

	bad := encodeBlock(t, testKey(), 1, 0x00, []byte("x"))
	bad[len(bad)-1] ^= 0xFF

	for i := 0; i < 3; i++ {
		assert.False(t, unsealer.KeyExhausted())
		_, err := unsealer.Open(frameFromBytes(t, bad))
		require.Error(t, err)
	}
	assert.True(t, unsealer.KeyExhausted())
}

func TestUnsealerSuccessDisarmsThreshold(t *testing.T) {
	unsealer, err := NewUnsealer(testKey(), 2)
	require.NoError(t, err)
	defer unsealer.Close()

	good := encodeBlock(t, testKey(), 1, 0x00, []byte("x"))
	_, err = unsealer.Open(frameFromBytes(t, good))
	require.NoError(t, err)

	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0x01
	for i := 0; i < 5; i++ {
		_, err := unsealer.Open(frameFromBytes(t, bad))
		require.Error(t, err)
	}
	assert.False(t, unsealer.KeyExhausted())
}

func TestUnsealerCloseZeroesKey(t *testing.T) {
	unsealer, err := NewUnsealer(testKey(), 0)
	require.NoError(t, err)

	unsealer.Close()
	assert.Equal(t, bytes.Repeat([]byte{0}, KeySize), unsealer.key)
}

func TestUnsealerNeverReturnsPartialData(t *testing.T) {
	unsealer, err := NewUnsealer(testKey(), 0)
	require.NoError(t, err)
	defer unsealer.Close()

	data := encodeBlock(t, testKey(), 1, 0x00, bytes.Repeat([]byte("abc"), 100))
	data[headerSize+NonceSize+5] ^= 0x01 // corrupt mid-ciphertext

	got, err := unsealer.Open(frameFromBytes(t, data))
	require.Error(t, err)
	assert.Nil(t, got)
}
