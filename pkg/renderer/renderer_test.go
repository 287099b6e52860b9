package renderer

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/northcutted/drvscan/pkg/report"
)

func sampleReports() []*report.Report {
	return []*report.Report{
		report.New("vuln.sys", strings.Repeat("ab", 32),
			[]report.Import{{VA: 0x2040, Hint: 1, Name: "MmMapIoSpace"}, {VA: 0x2050, Hint: 2, Name: "IoCreateDevice"}},
			[]report.Import{{VA: 0x2040, Hint: 1, Name: "MmMapIoSpace"}},
		),
		report.New("clean.sys", strings.Repeat("cd", 32),
			[]report.Import{{VA: 0x3000, Hint: 9, Name: "IoDeleteDevice"}},
			nil,
		),
	}
}

func TestRender_JSONArray(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, "json", sampleReports(), false); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var decoded []report.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected JSON array, got %s: %v", buf.String(), err)
	}
	if len(decoded) != 2 || decoded[0].Name != "vuln.sys" || decoded[1].MatchingImports == nil {
		t.Errorf("unexpected decoded reports %+v", decoded)
	}
	if !strings.Contains(buf.String(), `"va": "0x0000000000002040"`) {
		t.Errorf("expected padded va in output, got:\n%s", buf.String())
	}
}

func TestRender_JSONSingle(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, "json", sampleReports()[:1], true); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	var decoded report.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected JSON object, got %s: %v", buf.String(), err)
	}
	if decoded.Name != "vuln.sys" {
		t.Errorf("expected vuln.sys, got %s", decoded.Name)
	}

	if err := Render(&buf, "json", sampleReports(), true); err == nil {
		t.Error("expected error rendering two reports as single")
	}
}

func TestRender_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, "json", nil, false); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("expected empty array, got %q", buf.String())
	}
}

func TestRender_Markdown(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, "markdown", sampleReports(), false); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"## vuln.sys",
		"### Watchlisted imports (1)",
		"| 0x0000000000002040 | 1 | `MmMapIoSpace` |",
		"## clean.sys",
		"*No watchlisted imports.*",
		"<summary>Kernel imports (2 found)</summary>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected markdown to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRender_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, "text", sampleReports(), false); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{"[MATCH]", "vuln.sys", "[CLEAN]", "clean.sys", "2 kernel imports, 1 watchlisted", "IoDeleteDevice"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected text output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRender_UnknownFormat(t *testing.T) {
	if err := Render(&bytes.Buffer{}, "xml", sampleReports(), false); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestExtension(t *testing.T) {
	tests := []struct{ format, want string }{
		{"json", ".json"},
		{"markdown", ".md"},
		{"text", ".txt"},
		{"", ".json"},
	}
	for _, tt := range tests {
		if got := Extension(tt.format); got != tt.want {
			t.Errorf("Extension(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestRender_MarkdownEscapesCells(t *testing.T) {
	reports := []*report.Report{
		report.New("drivers/a|b.sys", strings.Repeat("ef", 32),
			[]report.Import{{VA: 0x2040, Hint: 1, Name: "Mm|Map"}, {VA: 0x2048, Hint: 2, Name: "Odd`Name"}},
			[]report.Import{{VA: 0x2040, Hint: 1, Name: "Mm|Map"}},
		),
	}
	var buf bytes.Buffer
	if err := Markdown(&buf, reports); err != nil {
		t.Fatalf("Markdown() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`## drivers/a\|b.sys`,
		"| 0x0000000000002040 | 1 | `Mm\\|Map` |",
		"| 0x0000000000002048 | 2 | `` Odd`Name `` |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected markdown to contain %q, got:\n%s", want, out)
		}
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "| 0x") {
			continue
		}
		if n := strings.Count(strings.ReplaceAll(line, `\|`, ""), "|"); n != 4 {
			t.Errorf("table row has %d unescaped pipes, want 4: %q", n, line)
		}
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"MmMapIoSpace", "`MmMapIoSpace`"},
		{"a|b", "`a\\|b`"},
		{"a`b", "`` a`b ``"},
		{"a``b", "``` a``b ```"},
		{"line\nbreak", "`line break`"},
	}
	for _, tt := range tests {
		if got := code(tt.in); got != tt.want {
			t.Errorf("code(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestText_PlainWhenNotATerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "report.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if err := Text(f, sampleReports()); err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(content), "\x1b[") {
		t.Errorf("expected no ANSI escapes in file output, got %q", content)
	}
	if !strings.Contains(string(content), "[MATCH] vuln.sys") {
		t.Errorf("unexpected text output:\n%s", content)
	}
}

func TestText_ColouredPalette(t *testing.T) {
	var buf bytes.Buffer
	if err := writeTextReports(&buf, sampleReports(), newPalette(true)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected ANSI escapes with colours enabled, got %q", buf.String())
	}
	if colorEnabled(&buf) {
		t.Error("a buffer is never a terminal")
	}
}
