package ectd

import (
	"fmt"
	"regexp"
	"strings"
)

// Module5 is the eCTD module that carries clinical study reports. Study
// documents land under m5/<study>/<node>; the generated cover page is the
// one file outside it, at CoverPagePath.
const (
	Module5       = "m5"
	CoverPagePath = "m1/us/cover.pdf"
)

// maxFileNameBase caps the name portion of a sanitized file name. The
// limit applies before the extension is re-attached.
const maxFileNameBase = 50

var (
	disallowedRun = regexp.MustCompile(`[^a-z0-9-]+`)
	hyphenRun     = regexp.MustCompile(`-+`)
)

// SanitizePathComponent lowercases s and reduces it to the [a-z0-9-]
// alphabet eCTD folder names allow. Runs of disallowed characters
// collapse to a single hyphen; leading and trailing hyphens are stripped.
func SanitizePathComponent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = disallowedRun.ReplaceAllString(s, "-")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SanitizeFileName applies the path-component rules to the name portion,
// preserves and lowercases the extension, and truncates the name (never
// the extension) to 50 characters. An empty name falls back to
// "document".
func SanitizeFileName(name string) string {
	base := name
	ext := ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}

	base = SanitizePathComponent(base)
	if base == "" {
		base = "document"
	}
	if len(base) > maxFileNameBase {
		base = strings.Trim(base[:maxFileNameBase], "-")
	}

	ext = SanitizePathComponent(ext)
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// CodeToFolderPath maps a dotted node code to its sanitized directory,
// e.g. CodeToFolderPath("16.2.1", "STUDY-001") == "m5/study-001/16-2-1".
func CodeToFolderPath(code, studyNumber string) string {
	return Module5 + "/" + SanitizePathComponent(studyNumber) + "/" + SanitizePathComponent(code)
}

// TargetPath builds the full relative path for a document inside the
// package.
func TargetPath(code, studyNumber, fileName string) string {
	return CodeToFolderPath(code, studyNumber) + "/" + SanitizeFileName(fileName)
}

// PathParts is the decomposition of a well-formed m5 target path. The
// study folder and file name come back in sanitized form, so
// TargetPath(p.NodeCode, p.StudyFolder, p.FileName) reproduces the
// original path exactly.
type PathParts struct {
	StudyFolder string
	NodeCode    string
	FileName    string
}

// ParseTargetPath is the inverse of TargetPath for well-formed paths.
func ParseTargetPath(p string) (PathParts, error) {
	segs := strings.Split(p, "/")
	if len(segs) != 4 || segs[0] != Module5 {
		return PathParts{}, fmt.Errorf("not an m5 target path: %q", p)
	}
	for _, s := range segs[1:] {
		if s == "" {
			return PathParts{}, fmt.Errorf("empty segment in target path: %q", p)
		}
	}
	return PathParts{
		StudyFolder: segs[1],
		NodeCode:    strings.ReplaceAll(segs[2], "-", "."),
		FileName:    segs[3],
	}, nil
}

// RelativePath rewrites target so it resolves from fromDir. Both are
// forward-slash paths relative to the package root; fromDir names a
// directory, target a file.
func RelativePath(fromDir, target string) string {
	from := splitPath(fromDir)
	to := splitPath(target)
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	out := make([]string, 0, len(from)-i+len(to)-i)
	for j := i; j < len(from); j++ {
		out = append(out, "..")
	}
	out = append(out, to[i:]...)
	return strings.Join(out, "/")
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
