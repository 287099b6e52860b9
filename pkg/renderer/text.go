package renderer

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/northcutted/drvscan/pkg/report"
)

type palette struct {
	header, match, clean, dim *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		header: color.New(color.FgHiCyan, color.Bold),
		match:  color.New(color.FgRed, color.Bold),
		clean:  color.New(color.FgGreen),
		dim:    color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{p.header, p.match, p.clean, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// colorEnabled reports whether w is a terminal that should receive ANSI
// colours. Files and pipes get plain text even when stdout is a terminal.
func colorEnabled(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Text renders a terminal summary, highlighting watchlisted imports. Colours
// are only emitted when w is a terminal.
func Text(w io.Writer, reports []*report.Report) error {
	return writeTextReports(w, reports, newPalette(colorEnabled(w)))
}

func writeTextReports(w io.Writer, reports []*report.Report, p palette) error {
	for i, r := range reports {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := writeText(w, r, p); err != nil {
			return err
		}
	}
	return nil
}

func writeText(w io.Writer, r *report.Report, p palette) error {
	status, statusColor := "CLEAN", p.clean
	if r.HasMatches() {
		status, statusColor = "MATCH", p.match
	}
	if _, err := statusColor.Fprintf(w, "[%s] ", status); err != nil {
		return err
	}
	if _, err := p.header.Fprintln(w, r.Name); err != nil {
		return err
	}
	if _, err := p.dim.Fprintf(w, "  sha256 %s\n", r.Hash); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  %d kernel imports, %d watchlisted\n", len(r.FoundImports), len(r.MatchingImports)); err != nil {
		return err
	}

	matched := make(map[string]bool, len(r.MatchingImports))
	for _, m := range r.MatchingImports {
		matched[m.Name] = true
	}
	for _, imp := range r.FoundImports {
		line := fmt.Sprintf("    0x%016x %5d  %s\n", imp.VA, imp.Hint, imp.Name)
		var err error
		if matched[imp.Name] {
			_, err = p.match.Fprint(w, line)
		} else {
			_, err = fmt.Fprint(w, line)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
