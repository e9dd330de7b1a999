package assemble

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ZipResult describes a finished archive.
type ZipResult struct {
	Path    string `json:"path"`
	Entries int    `json:"entries"`
	Size    int64  `json:"size"`
	// Warnings lists files that vanished between the walk and the
	// copy. Anything worse fails the archive.
	Warnings []string `json:"warnings,omitempty"`
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// CreateZipArchive streams every file under sourceDir into a Deflate
// ZIP at zipPath, with archive paths relative to sourceDir using
// forward slashes. A file that disappears mid-walk is tolerated with a
// warning; every other failure is fatal. The final size comes from
// stat, falling back to the counted bytes if stat fails.
func (a *Assembler) CreateZipArchive(ctx context.Context, sourceDir, zipPath string) (*ZipResult, error) {
	if _, err := os.Stat(sourceDir); err != nil {
		return nil, fmt.Errorf("archive source: %w", err)
	}
	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	cw := &countingWriter{w: f}
	zw := zip.NewWriter(cw)
	res := &ZipResult{Path: zipPath}

	walkErr := filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				res.Warnings = append(res.Warnings, fmt.Sprintf("skipped vanished entry %s", p))
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		in, err := os.Open(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				res.Warnings = append(res.Warnings, fmt.Sprintf("skipped vanished file %s", name))
				a.log.Warn("file vanished during archiving", "file", name)
				return nil
			}
			return fmt.Errorf("open %s: %w", name, err)
		}
		defer in.Close()

		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := io.Copy(w, in); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		res.Entries++
		return nil
	})
	if walkErr != nil {
		zw.Close()
		return nil, walkErr
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	if st, err := os.Stat(zipPath); err == nil {
		res.Size = st.Size()
	} else {
		res.Size = cw.n
	}
	a.log.Info("archive written", "path", zipPath, "entries", res.Entries, "bytes", res.Size)
	return res, nil
}
