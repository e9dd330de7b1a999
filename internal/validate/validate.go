// Package validate runs quality checks over an assembled submission
// package. Checks come in two tiers: per-file checks look at one
// packaged PDF, package checks look at the manifest as a whole. A
// check only knows how to pass or fail; which severity a failure
// carries is decided by the rule that invoked it, so the same check
// can be an error in one rule and a warning in another.
package validate

import (
	"github.com/clindesk/ectdpack/internal/manifest"
	"github.com/clindesk/ectdpack/internal/pdfobj"
	"github.com/clindesk/ectdpack/internal/pdfproc"
)

// Severity classifies a finding. Only errors make a package invalid.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

func validSeverity(s Severity) bool {
	return s == SeverityError || s == SeverityWarning || s == SeverityInfo
}

// CheckResult is the outcome of one check invocation. Details carries
// structured context (offending page numbers, font names) that the
// transport form of a report strips.
type CheckResult struct {
	Passed  bool
	Message string
	Details map[string]any
}

func pass() CheckResult { return CheckResult{Passed: true} }

func fail(msg string) CheckResult { return CheckResult{Message: msg} }

// Params are the rule-supplied parameters of one check invocation,
// decoded from the rules file.
type Params map[string]any

// Int64 returns the parameter under key as an int64, or def when the
// key is absent or not numeric.
func (p Params) Int64(key string, def int64) int64 {
	switch n := p[key].(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return def
}

// Int returns the parameter under key as an int, or def.
func (p Params) Int(key string, def int) int {
	return int(p.Int64(key, int64(def)))
}

// Float returns the parameter under key as a float64, or def.
func (p Params) Float(key string, def float64) float64 {
	switch n := p[key].(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return def
}

// Strings returns the parameter under key as a string slice. Non-string
// elements are dropped.
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// FileContext is everything a per-file check may look at. Doc is nil
// when the file did not parse; checks that need the object graph must
// pass in that case and leave the failure to the parseability check.
type FileContext struct {
	File *manifest.PackageFile
	Data []byte

	Doc      *pdfobj.Document
	ParseErr error

	// Links holds the classified link annotations of the parsed
	// document. Empty for encrypted or unparseable files.
	Links []pdfproc.ExtractedLink
}

// PackageContext is everything a package-level check may look at.
type PackageContext struct {
	Manifest *manifest.PackageManifest

	// Links aggregates the link-processing results of every file in
	// the package, as recorded during export.
	Links []pdfproc.ExtractedLink
}

// FileCheck inspects one packaged file.
type FileCheck func(*FileContext, Params) CheckResult

// PackageCheck inspects the package as a whole.
type PackageCheck func(*PackageContext, Params) CheckResult
