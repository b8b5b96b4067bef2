package sbwcli

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKey(t *testing.T) {
	key := testKey()

	got, err := DecodeKey(hex.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	got, err = DecodeKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = DecodeKey("not-a-key!!")
	assert.Error(t, err)
}

func TestCheckConfigDefaults(t *testing.T) {
	cfg := &Config{Key: testKey()}
	require.NoError(t, cfg.checkConfig())

	assert.Equal(t, "AES-GCM", cfg.Algorithm)
	assert.Equal(t, 16, cfg.TagLength)
	assert.Equal(t, 12, cfg.NonceLength)
	assert.Equal(t, DefaultMaxFileSize, cfg.MaxFileSize)
	assert.Equal(t, DefaultMaxBlockSize, cfg.MaxBlockSize)
	assert.Equal(t, DefaultKeyFailureThreshold, cfg.KeyFailureThreshold)
	assert.Equal(t, rune(','), cfg.CSVDelimiter)
}

func TestCheckConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero key", Config{Key: make([]byte, 32)}},
		{"short key", Config{Key: []byte{0x01}}},
		{"bad algorithm", Config{Key: testKey(), Algorithm: "DES"}},
		{"bad tag length", Config{Key: testKey(), TagLength: 8}},
		{"bad nonce length", Config{Key: testKey(), NonceLength: 16}},
		{"bad compression", Config{Key: testKey(), Compression: "snappy"}},
		{"negative threshold", Config{Key: testKey(), KeyFailureThreshold: -1}},
		{"negative file limit", Config{Key: testKey(), MaxFileSize: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.checkConfig())
		})
	}
}

func TestParseConfig(t *testing.T) {
	raw := []byte(`
[crypto]
key = "` + hex.EncodeToString(testKey()) + `"
algorithm = "AES-GCM"
tag_length = 16
nonce_length = 12

[compression]
algorithm = "lz4"

[limits]
max_file_size = 1048576
max_block_size = 65536
key_failure_threshold = 4

[export]
csv_delimiter = ";"
json_indent = 4

[logging]
level = "debug"
`)

	cfg, err := ParseConfig(raw)
	require.NoError(t, err)

	assert.Equal(t, testKey(), cfg.Key)
	assert.Equal(t, CompressionLZ4, cfg.Compression)
	assert.EqualValues(t, 1048576, cfg.MaxFileSize)
	assert.EqualValues(t, 65536, cfg.MaxBlockSize)
	assert.Equal(t, 4, cfg.KeyFailureThreshold)
	assert.Equal(t, rune(';'), cfg.CSVDelimiter)
	assert.Equal(t, 4, cfg.JSONIndent)
	assert.Equal(t, "debug", cfg.LogLevelName)
	assert.Empty(t, cfg.LoadWarnings)

	require.NoError(t, cfg.checkConfig())
}

func TestParseConfigUnknownKeysWarn(t *testing.T) {
	raw := []byte(`
[crypto]
key = "` + hex.EncodeToString(testKey()) + `"
cipher_mode = "GCM"

[visualization]
dpi = 300
`)

	cfg, err := ParseConfig(raw)
	require.NoError(t, err)

	require.Len(t, cfg.LoadWarnings, 2)
	assert.Contains(t, cfg.LoadWarnings[0], "crypto.cipher_mode")
	assert.Contains(t, cfg.LoadWarnings[1], "visualization")
}

func TestParseConfigMissingKey(t *testing.T) {
	_, err := ParseConfig([]byte("[crypto]\nalgorithm = \"AES-GCM\"\n"))
	assert.Error(t, err)
}

func TestParseConfigBadKeyEncoding(t *testing.T) {
	_, err := ParseConfig([]byte("[crypto]\nkey = \"zz!!\"\n"))
	assert.Error(t, err)
}

func TestParseConfigInvalidTOML(t *testing.T) {
	_, err := ParseConfig([]byte("not toml ["))
	assert.Error(t, err)
}
