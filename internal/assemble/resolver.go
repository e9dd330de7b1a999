// Package assemble turns a package manifest into files on disk: the
// eCTD directory tree, the XML backbone, the QC artifacts, and the
// final ZIP archive.
package assemble

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver maps a manifest source path to a readable location on
// disk. The export pipeline resolves document uploads through it.
type PathResolver interface {
	Resolve(sourcePath string) (string, error)
}

// DirResolver serves files from a single uploads root and refuses
// source paths that escape it.
type DirResolver struct {
	Root string
}

func (r DirResolver) Resolve(sourcePath string) (string, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return "", errors.New("empty source path")
	}
	cleaned := filepath.Clean(filepath.FromSlash(sourcePath))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("source path %q escapes the uploads root", sourcePath)
	}
	full := filepath.Join(r.Root, cleaned)
	if _, err := os.Stat(full); err != nil {
		return "", fmt.Errorf("source file %s: %w", sourcePath, err)
	}
	return full, nil
}
