package validate

import (
	"fmt"
	"sort"
	"strings"
)

// packageChecks is the package-level check registry.
var packageChecks = map[string]PackageCheck{
	"package-not-empty":     checkPackageNotEmpty,
	"duplicate-filenames":   checkDuplicateFileNames,
	"study-number":          checkStudyNumber,
	"readiness-required":    checkReadinessRequired,
	"readiness-validation":  checkReadinessValidation,
	"readiness-corrections": checkReadinessCorrections,
	"readiness-pending":     checkReadinessPending,
	"broken-links":          checkBrokenLinks,
}

func checkPackageNotEmpty(ctx *PackageContext, _ Params) CheckResult {
	if len(ctx.Manifest.Files) == 0 {
		return fail("package contains no files")
	}
	return pass()
}

// checkDuplicateFileNames flags bare file names appearing more than
// once. Cross-document links may refer to a target by bare name, which
// becomes ambiguous when two files share one.
func checkDuplicateFileNames(ctx *PackageContext, _ Params) CheckResult {
	byName := map[string][]string{}
	for _, f := range ctx.Manifest.Files {
		byName[f.FileName] = append(byName[f.FileName], f.TargetPath)
	}
	var dupes []string
	for name, targets := range byName {
		if len(targets) > 1 {
			dupes = append(dupes, name)
		}
	}
	if len(dupes) == 0 {
		return pass()
	}
	sort.Strings(dupes)
	res := fail(fmt.Sprintf("%d file name(s) appear more than once: %s",
		len(dupes), strings.Join(dupes, ", ")))
	details := map[string]any{}
	for _, name := range dupes {
		details[name] = byName[name]
	}
	res.Details = map[string]any{"names": details}
	return res
}

func checkStudyNumber(ctx *PackageContext, _ Params) CheckResult {
	if strings.TrimSpace(ctx.Manifest.StudyNumber) == "" {
		return fail("study number is not set")
	}
	return pass()
}

func checkReadinessRequired(ctx *PackageContext, _ Params) CheckResult {
	missing := ctx.Manifest.Readiness.MissingRequired
	if len(missing) == 0 {
		return pass()
	}
	codes := make([]string, len(missing))
	for i, m := range missing {
		codes[i] = m.NodeCode
	}
	res := fail(fmt.Sprintf("%d required document(s) missing", len(missing)))
	res.Details = map[string]any{"nodes": codes}
	return res
}

func checkReadinessValidation(ctx *PackageContext, _ Params) CheckResult {
	if n := ctx.Manifest.Readiness.ValidationErrors; n > 0 {
		return fail(fmt.Sprintf("%d validation error(s) recorded against selected documents", n))
	}
	return pass()
}

func checkReadinessCorrections(ctx *PackageContext, _ Params) CheckResult {
	if n := ctx.Manifest.Readiness.UnresolvedAnnotations; n > 0 {
		return fail(fmt.Sprintf("%d unresolved correction(s)", n))
	}
	return pass()
}

func checkReadinessPending(ctx *PackageContext, _ Params) CheckResult {
	pending := ctx.Manifest.Readiness.PendingApproval
	if len(pending) == 0 {
		return pass()
	}
	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.DocumentID
	}
	res := fail(fmt.Sprintf("%d document(s) awaiting approval", len(pending)))
	res.Details = map[string]any{"documents": ids}
	return res
}

func checkBrokenLinks(ctx *PackageContext, _ Params) CheckResult {
	var rows []string
	n := 0
	for _, l := range ctx.Links {
		if !l.Broken {
			continue
		}
		n++
		if len(rows) < 10 {
			rows = append(rows, fmt.Sprintf("%s p%d: %s", l.SourceFile, l.Page, l.Target))
		}
	}
	if n == 0 {
		return pass()
	}
	res := fail(fmt.Sprintf("%d broken cross-document link(s)", n))
	res.Details = map[string]any{"links": rows}
	return res
}
