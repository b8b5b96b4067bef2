package sbwcli

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxFileSize         int64 = 500 << 20
	DefaultKeyFailureThreshold       = 16
	DefaultCSVDelimiter              = ','
	DefaultJSONIndent                = 2
)

// Config carries everything a decode run needs. Zero limit fields are
// replaced with defaults by checkConfig.
type Config struct {
	Key         []byte // 32-byte AES-256-GCM key, required
	Algorithm   string // must be "AES-GCM"; empty selects it
	TagLength   int    // must be 16; zero selects it
	NonceLength int    // must be 12; zero selects it

	Compression Compression // explicit algorithm override; empty follows header flags

	MaxFileSize         int64
	MaxBlockSize        uint32
	KeyFailureThreshold int

	CSVDelimiter rune
	JSONIndent   int

	Logger      *logrus.Logger
	Diagnostics Diagnostics

	// LogLevelName is the logging.level value from a config file; the CLI
	// applies it to the logger it installs.
	LogLevelName string

	// LoadWarnings collects unknown-key warnings from LoadConfig so they can
	// be logged once a logger is installed.
	LoadWarnings []string
}

// checkConfig validates the configuration and fills in defaults. Violations
// are fatal to the run.
func (c *Config) checkConfig() error {
	if err := validateKey(c.Key); err != nil {
		return err
	}
	if c.Algorithm == "" {
		c.Algorithm = "AES-GCM"
	}
	if c.Algorithm != "AES-GCM" {
		return fmt.Errorf("unsupported crypto algorithm %q, only AES-GCM is supported", c.Algorithm)
	}
	if c.TagLength == 0 {
		c.TagLength = tagSize
	}
	if c.TagLength != tagSize {
		return fmt.Errorf("tag length must be %d, got %d", tagSize, c.TagLength)
	}
	if c.NonceLength == 0 {
		c.NonceLength = NonceSize
	}
	if c.NonceLength != NonceSize {
		return fmt.Errorf("nonce length must be %d, got %d", NonceSize, c.NonceLength)
	}

	switch c.Compression {
	case CompressionAuto, CompressionNone, CompressionLZ4, CompressionHeatshrink, CompressionZstd, CompressionLZMA:
	default:
		return fmt.Errorf("unknown compression algorithm %q", c.Compression)
	}

	if c.MaxFileSize < 0 {
		return fmt.Errorf("limit out of range: max_file_size=%d", c.MaxFileSize)
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxBlockSize == 0 {
		c.MaxBlockSize = DefaultMaxBlockSize
	}
	if c.KeyFailureThreshold < 0 {
		return fmt.Errorf("key failure threshold must be positive, got %d", c.KeyFailureThreshold)
	}
	if c.KeyFailureThreshold == 0 {
		c.KeyFailureThreshold = DefaultKeyFailureThreshold
	}

	if c.CSVDelimiter == 0 {
		c.CSVDelimiter = DefaultCSVDelimiter
	}
	if c.JSONIndent == 0 {
		c.JSONIndent = DefaultJSONIndent
	}
	return nil
}

// DecodeKey parses key material given as hex or base64.
func DecodeKey(s string) ([]byte, error) {
	if raw, err := hex.DecodeString(s); err == nil {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	if raw, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("key is neither valid hex nor base64")
}

// fileConfig mirrors the TOML layout of a configuration file.
type fileConfig struct {
	Crypto struct {
		Key         string `toml:"key"`
		Algorithm   string `toml:"algorithm"`
		TagLength   int    `toml:"tag_length"`
		NonceLength int    `toml:"nonce_length"`
	} `toml:"crypto"`
	Compression struct {
		Algorithm string `toml:"algorithm"`
	} `toml:"compression"`
	Limits struct {
		MaxFileSize         int64 `toml:"max_file_size"`
		MaxBlockSize        int64 `toml:"max_block_size"`
		KeyFailureThreshold int   `toml:"key_failure_threshold"`
	} `toml:"limits"`
	Export struct {
		CSVDelimiter string `toml:"csv_delimiter"`
		JSONIndent   int    `toml:"json_indent"`
	} `toml:"export"`
	Logging struct {
		Level string `toml:"level"`
	} `toml:"logging"`
}

// knownConfigKeys enumerates every recognized file option, per section.
var knownConfigKeys = map[string]map[string]bool{
	"crypto":      {"key": true, "algorithm": true, "tag_length": true, "nonce_length": true},
	"compression": {"algorithm": true},
	"limits":      {"max_file_size": true, "max_block_size": true, "key_failure_threshold": true},
	"export":      {"csv_delimiter": true, "json_indent": true},
	"logging":     {"level": true},
}

// LoadConfig reads a TOML configuration file. Unknown keys are collected as
// warnings on the returned Config rather than rejected. The logging.level
// value is kept unparsed in LogLevelName.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes TOML configuration bytes into a Config.
func ParseConfig(raw []byte) (*Config, error) {
	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	warnings, err := unknownKeyWarnings(raw)
	if err != nil {
		return nil, err
	}

	if fc.Crypto.Key == "" {
		return nil, fmt.Errorf("crypto.key is required")
	}
	key, err := DecodeKey(fc.Crypto.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid crypto.key: %w", err)
	}

	cfg := &Config{
		Key:                 key,
		Algorithm:           fc.Crypto.Algorithm,
		TagLength:           fc.Crypto.TagLength,
		NonceLength:         fc.Crypto.NonceLength,
		Compression:         Compression(fc.Compression.Algorithm),
		MaxFileSize:         fc.Limits.MaxFileSize,
		KeyFailureThreshold: fc.Limits.KeyFailureThreshold,
		JSONIndent:          fc.Export.JSONIndent,
		LoadWarnings:        warnings,
		LogLevelName:        fc.Logging.Level,
	}
	if fc.Limits.MaxBlockSize > 0 {
		cfg.MaxBlockSize = uint32(fc.Limits.MaxBlockSize)
	}
	if fc.Export.CSVDelimiter != "" {
		cfg.CSVDelimiter = rune(fc.Export.CSVDelimiter[0])
	}
	return cfg, nil
}

// unknownKeyWarnings re-parses the file as a generic tree and flags keys the
// decoder does not recognize.
func unknownKeyWarnings(raw []byte) ([]string, error) {
	var tree map[string]any
	if err := toml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var warnings []string
	for section, value := range tree {
		known, ok := knownConfigKeys[section]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown config section %q ignored", section))
			continue
		}
		table, ok := value.(map[string]any)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("config key %q is not a section, ignored", section))
			continue
		}
		for key := range table {
			if !known[key] {
				warnings = append(warnings, fmt.Sprintf("unknown config key %q ignored", section+"."+key))
			}
		}
	}
	sort.Strings(warnings)
	return warnings, nil
}
