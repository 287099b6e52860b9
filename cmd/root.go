package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	importsFile  string
	configFile   string
	workers      int
	outputFormat string
	outputFile   string
	timeout      time.Duration
	verbose      bool
	logFile      string
	cacheSize    int
)

// stdout is where reports are written when --output is not set.
var stdout io.Writer = os.Stdout

// stderr receives human-readable logs when no log file is configured.
var stderr io.Writer = os.Stderr

var rootCmd = &cobra.Command{
	Use:   "drvscan [flags] <driver.sys | directory>",
	Short: "Vet Windows kernel drivers for dangerous kernel imports",
	Long: `Statically vet Windows kernel-mode drivers for imports that hint at
arbitrary physical or virtual memory access.

drvscan validates that each file is a PE image of the native subsystem, walks
the import table for functions imported from ntoskrnl.exe and classifies them
against a watchlist. A single file produces one JSON report; a directory is
scanned non-recursively and produces a JSON array. Files that fail to parse
are logged and skipped.

Configuration is read from 'drvscan.yaml' in the working directory when
--config is not given. Flags take precedence over the config file.`,
	Example: `  # Analyse one driver with the default watchlist
  drvscan ./vuln.sys

  # Scan a directory with a custom watchlist and 4 workers
  drvscan --imports imports.json -w 4 ./drivers

  # Write a Markdown report to a file
  drvscan -f markdown -o report.md ./drivers`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), cmd, args[0])
	},
}

// Execute runs the root cobra command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Long += "\n" + watchlistHelp()

	rootCmd.Flags().StringVarP(&importsFile, "imports", "i", "", "Path to a JSON array of import names to flag (default: built-in watchlist)")
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to config file (default: drvscan.yaml if present)")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Number of files analysed concurrently (default: CPU count, at most 8)")
	rootCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json, markdown or text")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the report to this path instead of stdout")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort scheduling new files after this duration (0 disables)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write JSON logs to this file with size-based rotation")
	rootCmd.Flags().IntVar(&cacheSize, "cache-size", 0, "Distinct file contents to remember during a directory scan (default: 256, 0 disables)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("drvscan {{.Version}}\n")
}
