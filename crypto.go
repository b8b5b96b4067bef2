package sbwcli

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// EN-1.0 profile: AES-256-GCM, 96-bit nonce, 128-bit tag, empty AAD.
const (
	KeySize   = 32
	NonceSize = 12
)

// Crypto skip reasons.
const (
	ReasonWrongKeyOrTampered = "wrong_key_or_tampered"
	ReasonNonceLengthInvalid = "nonce_length_invalid"
)

var (
	// ErrWrongKeyOrTampered reports an authentication tag mismatch.
	ErrWrongKeyOrTampered = errors.New("authentication failed: wrong key or tampered data")
	// ErrNonceLengthInvalid reports a header nonce size other than 12.
	ErrNonceLengthInvalid = errors.New("nonce length invalid")
	// ErrKeyLikelyWrong is returned by the driver when every block attempted
	// so far failed authentication and the failure threshold was reached.
	ErrKeyLikelyWrong = errors.New("key likely wrong: authentication failed for all blocks attempted")
)

// validateKey enforces the EN-1.0 key policy: exactly 32 bytes and not a
// degenerate pattern (all bytes equal, which covers the all-zero key).
func validateKey(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	constant := true
	for _, b := range key[1:] {
		if b != key[0] {
			constant = false
			break
		}
	}
	if constant {
		return fmt.Errorf("key is a constant byte pattern (0x%02X repeated)", key[0])
	}
	return nil
}

// Unsealer authenticates and decrypts sealed block payloads. It owns the key
// for the duration of the run; Close zeroes the key material.
type Unsealer struct {
	key       []byte
	aead      cipher.AEAD
	threshold int
	failures  int
	successes int
}

// NewUnsealer validates the key and prepares the AEAD. failureThreshold
// bounds how many authentication failures are tolerated before any block
// succeeds; 0 selects DefaultKeyFailureThreshold.
func NewUnsealer(key []byte, failureThreshold int) (*Unsealer, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("key validation failed: %w", err)
	}
	if failureThreshold <= 0 {
		failureThreshold = DefaultKeyFailureThreshold
	}

	owned := append([]byte(nil), key...)
	block, err := aes.NewCipher(owned)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Unsealer{key: owned, aead: aead, threshold: failureThreshold}, nil
}

// Open authenticates the frame's sealed payload and returns exactly
// CompressedSize plaintext-candidate bytes, or an error with no partial
// data. Tag mismatches count toward the key failure threshold.
func (u *Unsealer) Open(f *Frame) ([]byte, error) {
	if f.Header.NonceSize != NonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrNonceLengthInvalid, f.Header.NonceSize, NonceSize)
	}

	plaintext, err := u.aead.Open(nil, f.Nonce(), f.Ciphertext(), nil)
	if err != nil {
		u.failures++
		return nil, ErrWrongKeyOrTampered
	}

	u.successes++
	return plaintext, nil
}

// KeyExhausted reports whether the failure threshold was reached without a
// single successful block, the signal for the key_likely_wrong abort.
func (u *Unsealer) KeyExhausted() bool {
	return u.successes == 0 && u.failures >= u.threshold
}

// resetCounters clears the per-run failure accounting so one decode run's
// near-threshold failures do not leak into the next.
func (u *Unsealer) resetCounters() {
	u.failures = 0
	u.successes = 0
}

// Close zeroes the key material. The unsealer must not be used afterwards.
func (u *Unsealer) Close() {
	for i := range u.key {
		u.key[i] = 0
	}
}
