package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sbwcli "github.com/sbwlabs/sbw-cli"
	"github.com/sbwlabs/sbw-cli/internal/audit"
	"github.com/sbwlabs/sbw-cli/internal/export"
	"github.com/sbwlabs/sbw-cli/pkg/runinfo"
)

func newDecodeCommand() *cobra.Command {
	var (
		configPath  string
		keyArg      string
		outputDir   string
		kvDir       string
		compression string
		exportCSV   bool
		exportJSON  bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "decode <capture-file>",
		Short: "Decode a capture file and export its telemetry records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(configPath, keyArg, compression)
			if err != nil {
				return err
			}

			logger := logrus.New()
			logger.SetLevel(logLevel(cfg.LogLevelName, verbose))
			cfg.Logger = logger

			decoder, err := sbwcli.Init(cfg)
			if err != nil {
				return err
			}
			defer decoder.Close()

			trail := audit.New(logger)
			trail.FileAccess(args[0], "read")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			start := time.Now()
			result, err := decoder.DecodeFile(ctx, args[0])
			trail.CryptoOperation("DECODE", err == nil)
			if err != nil {
				if result != nil {
					renderSummary(cmd, result)
				}
				if errors.Is(err, sbwcli.ErrKeyLikelyWrong) {
					return fmt.Errorf("decode aborted: %w", err)
				}
				return err
			}
			logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("decode complete")

			if exportCSV || exportJSON || kvDir != "" {
				if err := runExports(logger, trail, cfg, result, outputDir, kvDir, exportCSV, exportJSON); err != nil {
					return err
				}
			}

			renderSummary(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path (TOML)")
	cmd.Flags().StringVar(&keyArg, "key", "", "Decryption key (hex or base64), overrides the config file")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory for exported files")
	cmd.Flags().StringVar(&kvDir, "kv", "", "Directory for the BadgerDB record store export")
	cmd.Flags().StringVar(&compression, "compression", "", "Force a decompression algorithm instead of following header flags")
	cmd.Flags().BoolVar(&exportCSV, "csv", false, "Export CSV files per record kind")
	cmd.Flags().BoolVar(&exportJSON, "json", false, "Export JSON files per record kind")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func buildConfig(configPath, keyArg, compression string) (*sbwcli.Config, error) {
	var cfg *sbwcli.Config
	if configPath != "" {
		loaded, err := sbwcli.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &sbwcli.Config{}
	}

	if keyArg != "" {
		key, err := sbwcli.DecodeKey(keyArg)
		if err != nil {
			return nil, fmt.Errorf("invalid --key: %w", err)
		}
		cfg.Key = key
	}
	if len(cfg.Key) == 0 {
		return nil, errors.New("no decryption key: pass --key or a config file with crypto.key")
	}
	if compression != "" {
		cfg.Compression = sbwcli.Compression(compression)
	}
	return cfg, nil
}

func logLevel(name string, verbose bool) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}
	if name == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func runExports(logger *logrus.Logger, trail *audit.Trail, cfg *sbwcli.Config, result *sbwcli.Result, outputDir, kvDir string, csv, json bool) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if report, err := runinfo.ForPath(outputDir); err == nil {
		logger.WithFields(report.Fields()).Info("output destination")
	}

	exporters := map[string]export.Exporter{}
	if csv {
		exporters["csv"] = &export.CSVExporter{Dir: outputDir, Delimiter: cfg.CSVDelimiter}
	}
	if json {
		exporters["json"] = &export.JSONExporter{Dir: outputDir, Indent: cfg.JSONIndent}
	}
	if kvDir != "" {
		exporters["kv"] = &export.KVExporter{Dir: kvDir}
	}

	for name, exporter := range exporters {
		created, err := exporter.Export(result)
		if err != nil {
			return fmt.Errorf("%s export failed: %w", name, err)
		}
		destination := outputDir
		if name == "kv" {
			destination = kvDir
		}
		trail.ExportOperation(name, destination, result.Summary.TotalRecords)
		for _, path := range created {
			logger.WithField("file", path).Info("export created")
		}
	}
	return nil
}

func renderSummary(cmd *cobra.Command, result *sbwcli.Result) {
	sum := result.Summary

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Blocks seen", sum.BlocksSeen})
	t.AppendRow(table.Row{"Blocks ok", sum.BlocksOK})
	for _, stage := range []sbwcli.Stage{sbwcli.StageFrame, sbwcli.StageCrypto, sbwcli.StageDecompress, sbwcli.StageTLV} {
		if n := sum.SkippedByStage[stage]; n > 0 {
			t.AppendRow(table.Row{fmt.Sprintf("Skipped (%s)", stage), n})
		}
	}
	t.AppendRow(table.Row{"Total records", sum.TotalRecords})

	kinds := make([]string, 0, len(sum.RecordsByKind))
	for kind := range sum.RecordsByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		if n := sum.RecordsByKind[kind]; n > 0 {
			t.AppendRow(table.Row{"  " + kind, n})
		}
	}

	if sum.FirstTimestamp != nil {
		t.AppendRow(table.Row{"First timestamp", formatMicros(*sum.FirstTimestamp)})
		t.AppendRow(table.Row{"Last timestamp", formatMicros(*sum.LastTimestamp)})
	}
	t.AppendRow(table.Row{"Bytes read", sum.BytesRead})
	t.Render()
}

func formatMicros(micros uint64) string {
	return time.UnixMicro(int64(micros)).UTC().Format(time.RFC3339Nano)
}
