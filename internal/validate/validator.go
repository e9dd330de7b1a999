package validate

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/clindesk/ectdpack/internal/manifest"
	"github.com/clindesk/ectdpack/internal/pdfobj"
	"github.com/clindesk/ectdpack/internal/pdfproc"
)

// ReadFileFunc returns the packaged bytes of one manifest entry.
type ReadFileFunc func(*manifest.PackageFile) ([]byte, error)

// Validator runs a rule registry over a package.
type Validator struct {
	reg *Registry
	log *slog.Logger
}

// New returns a validator using the given registry. A nil logger falls
// back to slog.Default().
func New(reg *Registry, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{reg: reg, log: log}
}

// Validate runs every rule over the package. read supplies file bytes
// by manifest entry; a nil read skips the per-file tier, which is how
// readiness endpoints validate a manifest that has not been assembled
// yet. links carries the link-processing results recorded during
// export and feeds the package-level link summary.
func (v *Validator) Validate(m *manifest.PackageManifest, read ReadFileFunc, links []pdfproc.ExtractedLink) *Report {
	rep := &Report{
		GeneratedAt: time.Now().UTC(),
		Ready:       m.Readiness.Ready,
	}

	if read != nil {
		for i := range m.Files {
			pf := &m.Files[i]
			issues := v.validateFile(pf, read)
			rep.Files = append(rep.Files, FileResult{
				File:   pf.TargetPath,
				Passed: !hasError(issues),
				Issues: issues,
			})
			rep.FilesChecked++
		}
	}

	pctx := &PackageContext{Manifest: m, Links: links}
	for _, rule := range v.reg.pkgRules {
		res := packageChecks[rule.Check](pctx, rule.Params)
		if !res.Passed {
			rep.Package = append(rep.Package, issueFrom(rule, res))
		}
	}

	rep.tally()
	v.log.Info("package validated",
		"study", m.StudyID,
		"files", rep.FilesChecked,
		"errors", rep.ErrorCount,
		"warnings", rep.WarningCount)
	return rep
}

func (v *Validator) validateFile(pf *manifest.PackageFile, read ReadFileFunc) []Issue {
	data, err := read(pf)
	if err != nil {
		return []Issue{{
			Rule:     "file-readable",
			Severity: SeverityError,
			Message:  fmt.Sprintf("cannot read packaged file: %v", err),
		}}
	}

	ctx := &FileContext{File: pf, Data: data}
	if doc, err := pdfobj.Load(data); err == nil {
		ctx.Doc = doc
		if !doc.Encrypted() {
			ctx.Links = pdfproc.ScanLinks(doc, pf.TargetPath)
		}
	} else {
		ctx.ParseErr = err
	}

	var issues []Issue
	for _, rule := range v.reg.fileRules {
		res := fileChecks[rule.Check](ctx, rule.Params)
		if !res.Passed {
			issues = append(issues, issueFrom(rule, res))
			v.log.Debug("check failed",
				"file", pf.TargetPath,
				"rule", rule.Name,
				"severity", rule.Severity)
		}
	}
	return issues
}

func issueFrom(rule Rule, res CheckResult) Issue {
	msg := res.Message
	if rule.Message != "" {
		if msg != "" {
			msg = rule.Message + ": " + msg
		} else {
			msg = rule.Message
		}
	}
	return Issue{
		Rule:     rule.Name,
		Check:    rule.Check,
		Severity: rule.Severity,
		Message:  msg,
		Details:  res.Details,
	}
}

func hasError(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}
