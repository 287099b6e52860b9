package renderer

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/northcutted/drvscan/pkg/report"
)

const markdownTemplate = `# Kernel import report
{{ range . }}
## {{ cell .Name }}

SHA-256: ` + "`{{ .Hash }}`" + `
{{ if .MatchingImports }}
### Watchlisted imports ({{ len .MatchingImports }})

| VA | Hint | Name |
|----|------|------|
{{- range .MatchingImports }}
| {{ va .VA }} | {{ .Hint }} | {{ code .Name }} |
{{- end }}
{{ else }}
*No watchlisted imports.*
{{ end }}
<details>
<summary>Kernel imports ({{ len .FoundImports }} found)</summary>

| VA | Hint | Name |
|----|------|------|
{{- range .FoundImports }}
| {{ va .VA }} | {{ .Hint }} | {{ code .Name }} |
{{- end }}
</details>
{{ end }}`

var markdownTmpl = template.Must(template.New("drvscan").Funcs(template.FuncMap{
	"va":   func(v uint64) string { return fmt.Sprintf("0x%016x", v) },
	"cell": cell,
	"code": code,
}).Parse(markdownTemplate))

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

// cell escapes s for use inside a single table cell or heading line.
func cell(s string) string {
	return cellReplacer.Replace(s)
}

// code wraps s in a code span that survives inside a table cell. A name that
// itself contains backticks gets a longer fence.
func code(s string) string {
	s = cell(s)
	fence := "`"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	if fence == "`" {
		return fence + s + fence
	}
	return fence + " " + s + " " + fence
}

// Markdown renders a Markdown document with one section per report.
func Markdown(w io.Writer, reports []*report.Report) error {
	if err := markdownTmpl.Execute(w, reports); err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	return nil
}
