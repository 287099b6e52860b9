package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/northcutted/drvscan/pkg/renderer"
	"github.com/northcutted/drvscan/pkg/report"
)

// defaultReportName is used when --output names an existing directory.
const defaultReportName = "drvscan-report"

// resolveOutputPath determines the report file path for a given format.
// An output naming an existing directory gets a default file name with the
// format's extension; anything else is used as-is.
func resolveOutputPath(output string, format string) string {
	if output == "" {
		return ""
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, defaultReportName+renderer.Extension(format))
	}
	return output
}

// writeReports renders reports to the configured output file, or to stdout.
func writeReports(s *settings, reports []*report.Report, single bool) error {
	path := resolveOutputPath(s.output, s.format)
	if path == "" {
		return renderer.Render(stdout, s.format, reports, single)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := renderer.Render(f, s.format, reports, single); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	slog.Info("wrote output file", "path", path, "reports", len(reports))
	return nil
}
