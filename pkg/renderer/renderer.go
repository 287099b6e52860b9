// Package renderer writes reports as JSON, Markdown or coloured text.
package renderer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/northcutted/drvscan/pkg/config"
	"github.com/northcutted/drvscan/pkg/report"
)

// Render writes reports to w in the given format. With single set, exactly one
// report is expected and JSON output is an object instead of an array.
func Render(w io.Writer, format string, reports []*report.Report, single bool) error {
	if single && len(reports) != 1 {
		return fmt.Errorf("expected exactly one report, got %d", len(reports))
	}
	if reports == nil {
		reports = []*report.Report{}
	}

	switch format {
	case config.FormatJSON, "":
		if single {
			return writeJSON(w, reports[0])
		}
		return writeJSON(w, reports)
	case config.FormatMarkdown:
		return Markdown(w, reports)
	case config.FormatText:
		return Text(w, reports)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode reports: %w", err)
	}
	return nil
}

// Extension returns the file extension conventionally used for format.
func Extension(format string) string {
	switch format {
	case config.FormatMarkdown:
		return ".md"
	case config.FormatText:
		return ".txt"
	default:
		return ".json"
	}
}
