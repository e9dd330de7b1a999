package validate

import (
	"fmt"
	"strings"
	"time"
)

// Issue is one failed rule, either against a file or the package.
type Issue struct {
	Rule     string         `json:"rule"`
	Check    string         `json:"check"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// FileResult collects the issues of one packaged file. Passed means no
// error-severity issue was raised against it.
type FileResult struct {
	File   string  `json:"file"`
	Passed bool    `json:"passed"`
	Issues []Issue `json:"issues,omitempty"`
}

// Report is the aggregated outcome of a validation run.
type Report struct {
	Valid        bool         `json:"valid"`
	Ready        bool         `json:"ready"`
	ErrorCount   int          `json:"errorCount"`
	WarningCount int          `json:"warningCount"`
	InfoCount    int          `json:"infoCount"`
	FilesChecked int          `json:"filesChecked"`
	Files        []FileResult `json:"files,omitempty"`
	Package      []Issue      `json:"package,omitempty"`
	GeneratedAt  time.Time    `json:"generatedAt"`
}

func (r *Report) tally() {
	r.ErrorCount, r.WarningCount, r.InfoCount = 0, 0, 0
	count := func(issues []Issue) {
		for _, is := range issues {
			switch is.Severity {
			case SeverityError:
				r.ErrorCount++
			case SeverityWarning:
				r.WarningCount++
			case SeverityInfo:
				r.InfoCount++
			}
		}
	}
	count(r.Package)
	for _, fr := range r.Files {
		count(fr.Issues)
	}
	r.Valid = r.ErrorCount == 0
}

// ForTransport returns a copy with per-issue details stripped, for API
// responses and the QC summary. The receiver is left untouched.
func (r *Report) ForTransport() *Report {
	out := *r
	out.Package = stripDetails(r.Package)
	if r.Files != nil {
		out.Files = make([]FileResult, len(r.Files))
		for i, fr := range r.Files {
			out.Files[i] = FileResult{
				File:   fr.File,
				Passed: fr.Passed,
				Issues: stripDetails(fr.Issues),
			}
		}
	}
	return &out
}

func stripDetails(in []Issue) []Issue {
	if in == nil {
		return nil
	}
	out := make([]Issue, len(in))
	for i, is := range in {
		is.Details = nil
		out[i] = is
	}
	return out
}

type issueRow struct {
	scope string // "package" or a file path
	issue Issue
}

func (r *Report) rows(sev Severity) []issueRow {
	var rows []issueRow
	for _, is := range r.Package {
		if is.Severity == sev {
			rows = append(rows, issueRow{scope: "package", issue: is})
		}
	}
	for _, fr := range r.Files {
		for _, is := range fr.Issues {
			if is.Severity == sev {
				rows = append(rows, issueRow{scope: fr.File, issue: is})
			}
		}
	}
	return rows
}

var severityOrder = []struct {
	sev   Severity
	title string
}{
	{SeverityError, "Errors"},
	{SeverityWarning, "Warnings"},
	{SeverityInfo, "Info"},
}

// FormatReport renders a plain-text report for logs and the CLI.
func (r *Report) FormatReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Package validation: %s\n", label(r.Valid, "VALID", "INVALID"))
	fmt.Fprintf(&b, "Submission readiness: %s\n", label(r.Ready, "READY", "NOT READY"))
	fmt.Fprintf(&b, "Files checked: %d\n", r.FilesChecked)
	fmt.Fprintf(&b, "Errors: %d  Warnings: %d  Info: %d\n", r.ErrorCount, r.WarningCount, r.InfoCount)

	wrote := false
	for _, s := range severityOrder {
		rows := r.rows(s.sev)
		if len(rows) == 0 {
			continue
		}
		wrote = true
		fmt.Fprintf(&b, "\n%s:\n", s.title)
		for _, row := range rows {
			fmt.Fprintf(&b, "  - %s: %s: %s\n", row.scope, row.issue.Rule, row.issue.Message)
		}
	}
	if !wrote {
		b.WriteString("\nAll checks passed.\n")
	}
	return b.String()
}

// MarkdownReport renders the report for the HTML QC artifact. Plain
// CommonMark only; the renderer has no table extension.
func (r *Report) MarkdownReport() string {
	var b strings.Builder
	b.WriteString("# Package Validation Report\n\n")
	fmt.Fprintf(&b, "Generated %s.\n\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Status: **%s**\n", label(r.Valid, "VALID", "INVALID"))
	fmt.Fprintf(&b, "- Readiness: **%s**\n", label(r.Ready, "READY", "NOT READY"))
	fmt.Fprintf(&b, "- Files checked: %d\n", r.FilesChecked)
	fmt.Fprintf(&b, "- Errors: %d, warnings: %d, info: %d\n", r.ErrorCount, r.WarningCount, r.InfoCount)

	wrote := false
	for _, s := range severityOrder {
		rows := r.rows(s.sev)
		if len(rows) == 0 {
			continue
		}
		wrote = true
		fmt.Fprintf(&b, "\n## %s\n\n", s.title)
		for _, row := range rows {
			if row.scope == "package" {
				fmt.Fprintf(&b, "- package: %s: %s\n", row.issue.Rule, row.issue.Message)
			} else {
				fmt.Fprintf(&b, "- `%s`: %s: %s\n", row.scope, row.issue.Rule, row.issue.Message)
			}
		}
	}
	if !wrote {
		b.WriteString("\nAll checks passed.\n")
	}
	return b.String()
}

func label(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
