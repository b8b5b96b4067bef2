package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const sampleConfig = `# sbw-cli configuration

[crypto]
# 32-byte AES-256-GCM key, hex or base64 encoded. Required.
key = ""
algorithm = "AES-GCM"
tag_length = 16
nonce_length = 12

[compression]
# Force an algorithm instead of following header flags.
# One of: "none", "lz4", "heatshrink", "zstd", "lzma". Leave empty for auto.
algorithm = ""

[limits]
max_file_size = 524288000
max_block_size = 67108864
key_failure_threshold = 16

[export]
csv_delimiter = ","
json_indent = 2

[logging]
level = "info"
`

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a sample configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("refusing to overwrite existing file %s", args[0])
			}
			if err := os.WriteFile(args[0], []byte(sampleConfig), 0o644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(initCmd)
	return cmd
}
