package provenance

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
)

// ReportFormat selects the rendering of a verification report.
type ReportFormat string

const (
	FormatJSON     ReportFormat = "json"
	FormatText     ReportFormat = "text"
	FormatMarkdown ReportFormat = "markdown"
)

// ParseReportFormat validates a format name from a flag or config value.
func ParseReportFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatText, FormatMarkdown:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// ReportGenerator renders verification reports in various formats.
type ReportGenerator struct {
	format  ReportFormat
	verbose bool
}

// NewReportGenerator creates a generator for the given format.
func NewReportGenerator(format ReportFormat) *ReportGenerator {
	return &ReportGenerator{format: format}
}

// WithVerbose enables full-length hashes in text output.
func (g *ReportGenerator) WithVerbose(verbose bool) *ReportGenerator {
	g.verbose = verbose
	return g
}

// Generate writes the report in the configured format.
func (g *ReportGenerator) Generate(report *Report, w io.Writer) error {
	switch g.format {
	case FormatJSON:
		return g.generateJSON(report, w)
	case FormatText:
		return g.generateText(report, w)
	case FormatMarkdown:
		return g.generateMarkdown(report, w)
	default:
		return fmt.Errorf("unknown format: %s", g.format)
	}
}

func (g *ReportGenerator) generateJSON(report *Report, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (g *ReportGenerator) generateText(report *Report, w io.Writer) error {
	fmt.Fprintln(w, "================================================================================")
	fmt.Fprintln(w, "                       PROOF VERIFICATION REPORT")
	fmt.Fprintln(w, "================================================================================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Result:          %s\n", g.resultString(report.Verified))
	fmt.Fprintf(w, "Transaction:     %s\n", report.TxID)
	if report.SourceURL != "" {
		fmt.Fprintf(w, "Source:          %s\n", report.SourceURL)
	}
	fmt.Fprintf(w, "Verified At:     %s\n", report.VerifiedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:        %v\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "--- Fingerprints ---")
	fmt.Fprintf(w, "[%s] prompt\n", g.matchSymbol(report.PromptMatch))
	fmt.Fprintf(w, "    stored: %s\n", g.hashOrMissing(report.StoredPromptHash))
	fmt.Fprintf(w, "    local:  %s\n", g.truncateHash(report.LocalPromptHash))
	fmt.Fprintf(w, "[%s] output\n", g.matchSymbol(report.OutputMatch))
	fmt.Fprintf(w, "    stored: %s\n", g.hashOrMissing(report.StoredOutputHash))
	fmt.Fprintf(w, "    local:  %s\n", g.truncateHash(report.LocalOutputHash))
	fmt.Fprintln(w)

	if meta := report.Metadata; meta != (RecordMetadata{}) {
		fmt.Fprintln(w, "--- Record Metadata ---")
		g.printMetaLine(w, "Project", meta.Project)
		g.printMetaLine(w, "Proof Type", meta.ProofType)
		g.printMetaLine(w, "AI Model", meta.AIModel)
		g.printMetaLine(w, "Created At", meta.CreatedAt)
		g.printMetaLine(w, "Author", meta.Author)
		g.printMetaLine(w, "Organization", meta.Organization)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "================================================================================")
	return nil
}

func (g *ReportGenerator) generateMarkdown(report *Report, w io.Writer) error {
	tmpl := `# Proof Verification Report

## Summary

| Property | Value |
|----------|-------|
| **Result** | {{.ResultString}} |
| **Transaction** | ` + "`{{.TxID}}`" + ` |
{{if .SourceURL}}| **Source** | {{.SourceURL}} |
{{end}}| **Verified At** | {{.VerifiedAtString}} |
| **Duration** | {{.Duration}} |

## Fingerprints

| Field | Match | Stored | Local |
|-------|-------|--------|-------|
| prompt | {{matchWord .PromptMatch}} | ` + "`{{stored .StoredPromptHash}}`" + ` | ` + "`{{.LocalPromptHash}}`" + ` |
| output | {{matchWord .OutputMatch}} | ` + "`{{stored .StoredOutputHash}}`" + ` | ` + "`{{.LocalOutputHash}}`" + ` |

## Record Metadata

| Property | Value |
|----------|-------|
{{with .Metadata}}| Project | {{.Project}} |
| Proof Type | {{.ProofType}} |
| AI Model | {{.AIModel}} |
| Created At | {{.CreatedAt}} |
| Author | {{.Author}} |
| Organization | {{.Organization}} |
{{end}}`

	funcMap := template.FuncMap{
		"matchWord": func(ok bool) string {
			if ok {
				return "MATCH"
			}
			return "MISMATCH"
		},
		"stored": func(h string) string {
			if h == "" {
				return "(missing)"
			}
			return h
		},
	}

	t, err := template.New("report").Funcs(funcMap).Parse(tmpl)
	if err != nil {
		return err
	}

	view := struct {
		*Report
		ResultString     string
		VerifiedAtString string
	}{
		Report:           report,
		ResultString:     g.resultString(report.Verified),
		VerifiedAtString: report.VerifiedAt.Format(time.RFC3339),
	}
	return t.Execute(w, view)
}

// Helper functions

func (g *ReportGenerator) resultString(verified bool) string {
	if verified {
		return "VERIFIED"
	}
	return "NOT VERIFIED"
}

func (g *ReportGenerator) matchSymbol(ok bool) string {
	if ok {
		return "OK"
	}
	return "!!"
}

func (g *ReportGenerator) hashOrMissing(hash string) string {
	if hash == "" {
		return "(missing)"
	}
	return g.truncateHash(hash)
}

func (g *ReportGenerator) truncateHash(hash string) string {
	if g.verbose || len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-8:]
}

func (g *ReportGenerator) printMetaLine(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%-16s %s\n", label+":", value)
}

// Summary returns a one-line result suitable for logs and notifications.
func (r *Report) Summary() string {
	if r.Verified {
		return fmt.Sprintf("[VERIFIED] %s: prompt and output match", r.TxID)
	}
	var parts []string
	if !r.PromptMatch {
		parts = append(parts, "prompt mismatch")
	}
	if !r.OutputMatch {
		parts = append(parts, "output mismatch")
	}
	return fmt.Sprintf("[NOT VERIFIED] %s: %s", r.TxID, strings.Join(parts, ", "))
}
