package assemble

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/clindesk/ectdpack/internal/ectd"
	"github.com/clindesk/ectdpack/internal/manifest"
)

// PathSecurityError reports a manifest target that tries to land
// outside the output tree. It is never recoverable; forced exports
// still refuse it.
type PathSecurityError struct {
	Path string
}

func (e *PathSecurityError) Error() string {
	return fmt.Sprintf("invalid target path %q", e.Path)
}

// Assembler writes package trees and archives.
type Assembler struct {
	resolver PathResolver
	log      *slog.Logger
}

// New returns an assembler resolving source files through resolver. A
// nil logger falls back to slog.Default().
func New(resolver PathResolver, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{resolver: resolver, log: log}
}

// secureJoin joins target onto root after verifying it is a relative
// path that stays inside root. Traversal is rejected, never corrected.
func secureJoin(root, target string) (string, error) {
	if target == "" || path.IsAbs(target) || filepath.IsAbs(filepath.FromSlash(target)) {
		return "", &PathSecurityError{Path: target}
	}
	cleaned := path.Clean(target)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", &PathSecurityError{Path: target}
	}
	full := filepath.Join(root, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathSecurityError{Path: target}
	}
	return full, nil
}

// CreateStructure materializes the manifest under outputRoot: every
// folder node becomes a directory and every file is copied from its
// resolved source to its target path. All target paths are vetted
// before the first byte is copied, so a traversal attempt fails the
// whole operation without a partial tree.
func (a *Assembler) CreateStructure(m *manifest.PackageManifest, outputRoot string) error {
	targets := make([]string, len(m.Files))
	for i := range m.Files {
		full, err := secureJoin(outputRoot, m.Files[i].TargetPath)
		if err != nil {
			return err
		}
		targets[i] = full
	}

	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	var walkErr error
	ectd.WalkFolders(m.FolderStructure, func(n *ectd.FolderNode) {
		if walkErr != nil {
			return
		}
		dir, err := secureJoin(outputRoot, n.Path)
		if err != nil {
			walkErr = err
			return
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			walkErr = fmt.Errorf("create folder %s: %w", n.Path, err)
		}
	})
	if walkErr != nil {
		return walkErr
	}

	for i := range m.Files {
		pf := &m.Files[i]
		src, err := a.resolver.Resolve(pf.SourcePath)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", pf.SourcePath, err)
		}
		if err := copyFile(src, targets[i]); err != nil {
			return fmt.Errorf("copy %s: %w", pf.TargetPath, err)
		}
	}

	a.log.Info("package structure created",
		"root", outputRoot,
		"folders", ectd.CountFolders(m.FolderStructure),
		"files", len(m.Files))
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
