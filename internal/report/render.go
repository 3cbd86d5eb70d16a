package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/spec-kit/ecoguard/internal/domain"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var verdictLabels = map[domain.Verdict]string{
	domain.VerdictCompliant:     "Conforme",
	domain.VerdictNonCompliant:  "Não conforme",
	domain.VerdictNotApplicable: "Não aplicável",
}

// Renderer turns a Report into an HTML document. Reviewer notes are
// Markdown; the rendered HTML is sanitized before it reaches the page.
type Renderer struct {
	tmpl   *template.Template
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer parses the embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		md:     goldmark.New(),
		policy: bluemonday.UGCPolicy(),
	}
	tmpl, err := template.New("report.html.tmpl").Funcs(template.FuncMap{
		"inc":          func(i int) int { return i + 1 },
		"coord":        func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
		"percent":      func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"money":        formatMoney,
		"verdictLabel": verdictLabel,
		"verdictClass": verdictClass,
		"note":         r.note,
	}).ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// Render writes the HTML report to w.
func (r *Renderer) Render(w io.Writer, rep Report) error {
	return r.tmpl.Execute(w, rep)
}

func (r *Renderer) note(src string) template.HTML {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(r.policy.Sanitize(buf.String()))
}

func verdictLabel(v *domain.Verdict) string {
	if v == nil {
		return "pendente"
	}
	if label, ok := verdictLabels[*v]; ok {
		return label
	}
	return string(*v)
}

func verdictClass(v *domain.Verdict) string {
	if v == nil {
		return "pending"
	}
	return string(*v)
}

// formatMoney renders whole units with "." thousands separators (pt-BR).
func formatMoney(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
