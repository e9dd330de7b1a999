// Package export runs the full packaging pipeline for one study:
// manifest, readiness gate, directory structure, PDF bookmark and
// hyperlink rewriting, cover page, XML backbone, QC artifacts, and the
// final ZIP. An export either completes with a downloadable bundle or
// fails with its directory removed; partial bundles are never left
// behind.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/clindesk/ectdpack/internal/assemble"
	"github.com/clindesk/ectdpack/internal/backbone"
	"github.com/clindesk/ectdpack/internal/coverpage"
	"github.com/clindesk/ectdpack/internal/ectd"
	"github.com/clindesk/ectdpack/internal/manifest"
	"github.com/clindesk/ectdpack/internal/pdfobj"
	"github.com/clindesk/ectdpack/internal/pdfproc"
	"github.com/clindesk/ectdpack/internal/study"
	"github.com/clindesk/ectdpack/internal/validate"
	"github.com/google/uuid"
)

// ErrNoDocuments is returned when the manifest selects no files. The
// check runs before any directory is created.
var ErrNoDocuments = errors.New("no documents available for export")

// NotReadyError blocks an export whose study fails the readiness gate.
// Force overrides it; path-security and IO failures never can be.
type NotReadyError struct {
	MissingRequired  int
	ValidationErrors int
	Corrections      int
}

func (e *NotReadyError) Error() string {
	parts := make([]string, 0, 3)
	if e.MissingRequired > 0 {
		parts = append(parts, fmt.Sprintf("%d required document(s) missing", e.MissingRequired))
	}
	if e.ValidationErrors > 0 {
		parts = append(parts, fmt.Sprintf("%d validation error(s)", e.ValidationErrors))
	}
	if e.Corrections > 0 {
		parts = append(parts, fmt.Sprintf("%d unresolved correction(s)", e.Corrections))
	}
	return "study is not ready for export: " + strings.Join(parts, ", ")
}

// Options are the per-export switches.
type Options struct {
	// Force exports despite a failed readiness gate.
	Force bool `json:"force,omitempty"`
	// IncludeDrafts widens document eligibility to draft and in-review
	// versions.
	IncludeDrafts bool `json:"includeDrafts,omitempty"`
	// SkipChecksums leaves the index.xml checksum attributes empty.
	SkipChecksums bool `json:"skipChecksums,omitempty"`
	// SkipValidation omits the package validation pass and its report.
	SkipValidation bool `json:"skipValidation,omitempty"`

	RemoveExternalLinks bool `json:"removeExternalLinks,omitempty"`
	RemoveMailtoLinks   bool `json:"removeMailtoLinks,omitempty"`

	// IncludeDTDRef emits the DOCTYPE line in index.xml.
	IncludeDTDRef bool `json:"includeDtdRef,omitempty"`
}

// Result is the outcome of a completed export.
type Result struct {
	Success    bool                      `json:"success"`
	PackageID  string                    `json:"packageId"`
	ZipPath    string                    `json:"zipPath,omitempty"`
	ZipSize    int64                     `json:"zipSize,omitempty"`
	Manifest   *manifest.PackageManifest `json:"manifest,omitempty"`
	Validation *validate.Report          `json:"validation,omitempty"`
	Warnings   []string                  `json:"warnings,omitempty"`
}

// Config is the exporter's fixed environment.
type Config struct {
	// ExportsRoot is the directory all package directories live under.
	ExportsRoot string
	// SequenceNumber is the 4-digit eCTD sequence for generated
	// backbones; 0000 marks an original submission.
	SequenceNumber string
}

// Exporter orchestrates exports against a study repository.
type Exporter struct {
	repo      study.Repository
	sponsors  study.SponsorLookup
	asm       *manifest.Assembler
	structure *assemble.Assembler
	rules     *validate.Registry
	cfg       Config
	log       *slog.Logger

	now   func() time.Time
	newID func() string
}

// New wires an exporter. sponsors may be nil; applicant fields in the
// regional XML are then left empty.
func New(repo study.Repository, sponsors study.SponsorLookup, resolver assemble.PathResolver, rules *validate.Registry, cfg Config, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ExportsRoot == "" {
		cfg.ExportsRoot = "exports"
	}
	if cfg.SequenceNumber == "" {
		cfg.SequenceNumber = ectd.FormatSequenceNumber(0)
	}
	return &Exporter{
		repo:      repo,
		sponsors:  sponsors,
		asm:       manifest.NewAssembler(repo, log),
		structure: assemble.New(resolver, log),
		rules:     rules,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		newID:     func() string { return "pkg-" + uuid.NewString() },
	}
}

// Manifest builds the current package manifest for a study without
// exporting anything.
func (e *Exporter) Manifest(ctx context.Context, studyID string, opts Options) (*manifest.PackageManifest, error) {
	return e.asm.Build(ctx, studyID, manifestOptions(opts))
}

func manifestOptions(opts Options) manifest.Options {
	return manifest.Options{
		IncludeDrafts:    opts.IncludeDrafts,
		IncludeApproved:  true,
		IncludePublished: true,
	}
}

// Export runs the whole pipeline for one study. Failures before the
// export directory exists leave the filesystem untouched; failures
// after trigger exactly one best-effort cleanup of that directory,
// and a cleanup failure never masks the export error.
func (e *Exporter) Export(ctx context.Context, studyID string, opts Options) (res *Result, err error) {
	log := e.log.With("study_id", studyID)

	var exportDir string
	created := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("export panicked", "panic", r)
			res, err = nil, normalizePanic(r)
		}
		if err != nil && created {
			if cerr := e.CleanupExport(exportDir); cerr != nil {
				log.Warn("export cleanup failed", "dir", exportDir, "error", cerr)
			}
		}
	}()

	// Manifest and gate. Nothing touches the filesystem until both
	// checks pass.
	st, err := e.repo.FindStudyWithTemplateAndDocuments(ctx, studyID)
	if err != nil {
		return nil, fmt.Errorf("load study %s: %w", studyID, err)
	}
	m, err := e.asm.BuildFrom(st, manifestOptions(opts))
	if err != nil {
		return nil, err
	}
	if len(m.Files) == 0 {
		return nil, ErrNoDocuments
	}
	if !m.Readiness.Ready && !opts.Force {
		return nil, &NotReadyError{
			MissingRequired:  len(m.Readiness.MissingRequired),
			ValidationErrors: m.Readiness.ValidationErrors,
			Corrections:      m.Readiness.UnresolvedAnnotations,
		}
	}

	pkgID := e.newID()
	exportDir = filepath.Join(e.cfg.ExportsRoot, studyID, pkgID)
	if _, ok := e.withinExportsRoot(exportDir); !ok {
		return nil, fmt.Errorf("study id %q escapes the exports folder", studyID)
	}
	if err = os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	created = true
	log = log.With("package_id", pkgID)

	// Structure: vet every target path, then copy the sources in.
	structDir := filepath.Join(exportDir, assemble.StructureDirName)
	if err = e.structure.CreateStructure(m, structDir); err != nil {
		return nil, err
	}

	// Bookmarks and hyperlinks: rewrite each packaged PDF in place.
	// Structural trouble inside a PDF (unparseable, encrypted, bad
	// page numbers) is absorbed into warnings; the validation pass
	// reports it. Only disk errors abort the export.
	outlines := make(map[string][]study.OutlineSpec, len(st.Documents))
	for _, d := range st.Documents {
		if len(d.Bookmarks) > 0 {
			outlines[d.ID] = d.Bookmarks
		}
	}
	paths := pdfproc.PathMap{}
	for _, f := range m.Files {
		paths.Add(f.SourcePath, f.TargetPath)
	}

	var (
		outcomes []assemble.FileOutcome
		links    []pdfproc.ExtractedLink
		warnings []string
	)
	for i := range m.Files {
		f := &m.Files[i]
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		outcome, warns, perr := e.processPDF(structDir, f, outlines[f.SourceDocumentID], paths, opts)
		if perr != nil {
			return nil, perr
		}
		outcomes = append(outcomes, outcome)
		if outcome.Links != nil {
			links = append(links, outcome.Links.Links...)
		}
		warnings = append(warnings, warns...)
	}

	// Cover page with the package table of contents.
	cover, err := coverpage.Generate(m, e.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("generate cover page: %w", err)
	}
	coverPath := filepath.Join(structDir, filepath.FromSlash(ectd.CoverPagePath))
	if err = os.MkdirAll(filepath.Dir(coverPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cover page directory: %w", err)
	}
	if err = os.WriteFile(coverPath, cover.PDF, 0o644); err != nil {
		return nil, fmt.Errorf("write cover page: %w", err)
	}
	warnings = append(warnings, cover.Warnings...)

	// Validation runs against the processed files, exactly the bytes
	// the bundle ships.
	var report *validate.Report
	if !opts.SkipValidation {
		report = validate.New(e.rules, e.log).Validate(m, func(f *manifest.PackageFile) ([]byte, error) {
			return os.ReadFile(filepath.Join(structDir, filepath.FromSlash(f.TargetPath)))
		}, links)
	}

	meta, err := e.submissionMeta(ctx, studyID, m)
	if err != nil {
		return nil, err
	}

	// Backbone, reports, archive.
	art, err := e.structure.WriteArtifacts(ctx, exportDir, assemble.ArtifactInputs{
		Manifest:   m,
		Meta:       meta,
		PackageID:  pkgID,
		Outcomes:   outcomes,
		Validation: report,
		Backbone: backbone.Options{
			SkipChecksums: opts.SkipChecksums,
			IncludeDTDRef: opts.IncludeDTDRef,
		},
	})
	if err != nil {
		return nil, err
	}

	log.Info("export complete",
		"files", len(m.Files),
		"zip_size", art.ZipSize,
		"warnings", len(warnings),
	)
	return &Result{
		Success:    true,
		PackageID:  pkgID,
		ZipPath:    art.ZipPath,
		ZipSize:    art.ZipSize,
		Manifest:   m,
		Validation: report,
		Warnings:   warnings,
	}, nil
}

// processPDF loads one packaged file, applies its authored outline and
// the hyperlink pass, and writes the result back over the copy when
// anything changed.
func (e *Exporter) processPDF(structDir string, f *manifest.PackageFile, outline []study.OutlineSpec, paths pdfproc.PathMap, opts Options) (assemble.FileOutcome, []string, error) {
	out := assemble.FileOutcome{TargetPath: f.TargetPath}
	var warns []string

	full := filepath.Join(structDir, filepath.FromSlash(f.TargetPath))
	data, err := os.ReadFile(full)
	if err != nil {
		return out, nil, fmt.Errorf("read packaged file %s: %w", f.TargetPath, err)
	}

	doc, lerr := pdfobj.Load(data)
	if lerr != nil {
		warns = append(warns, fmt.Sprintf("%s: not processed, cannot parse PDF: %v", f.TargetPath, lerr))
		if len(outline) > 0 {
			out.Bookmarks = &pdfproc.BookmarkResult{Error: lerr.Error()}
		}
		return out, warns, nil
	}
	if doc.Encrypted() {
		warns = append(warns, fmt.Sprintf("%s: not processed, document is encrypted", f.TargetPath))
		return out, warns, nil
	}

	popts := pdfproc.Options{
		Links: &pdfproc.LinkOptions{
			SourceFile:     f.TargetPath,
			BasePath:       path.Dir(f.TargetPath),
			Paths:          paths,
			RemoveExternal: opts.RemoveExternalLinks,
			RemoveMailto:   opts.RemoveMailtoLinks,
		},
	}
	if len(outline) > 0 {
		popts.Bookmarks = bookmarkSpecs(outline)
	}

	pres, err := pdfproc.Process(doc, popts)
	if err != nil {
		warns = append(warns, fmt.Sprintf("%s: not processed: %v", f.TargetPath, err))
		return out, warns, nil
	}
	out.Bookmarks = pres.Bookmarks
	out.Links = pres.Links
	for _, w := range pres.Warnings {
		warns = append(warns, f.TargetPath+": "+w)
	}

	changed := (pres.Bookmarks != nil && pres.Bookmarks.Success) ||
		(pres.Links != nil && pres.Links.Updated+pres.Links.Removed > 0)
	if !changed {
		return out, warns, nil
	}
	buf, err := doc.Bytes()
	if err != nil {
		return out, warns, fmt.Errorf("rewrite %s: %w", f.TargetPath, err)
	}
	if err := os.WriteFile(full, buf, 0o644); err != nil {
		return out, warns, fmt.Errorf("write %s: %w", f.TargetPath, err)
	}
	f.FileSize = int64(len(buf))
	return out, warns, nil
}

func bookmarkSpecs(outline []study.OutlineSpec) []pdfproc.BookmarkSpec {
	specs := make([]pdfproc.BookmarkSpec, len(outline))
	for i, o := range outline {
		specs[i] = pdfproc.BookmarkSpec{
			Title:      o.Title,
			PageNumber: o.PageNumber,
			Open:       o.Open,
			Children:   bookmarkSpecs(o.Children),
		}
	}
	return specs
}

// submissionMeta assembles the backbone header from study and sponsor
// state.
func (e *Exporter) submissionMeta(ctx context.Context, studyID string, m *manifest.PackageManifest) (backbone.Meta, error) {
	meta := backbone.Meta{
		SequenceNumber: e.cfg.SequenceNumber,
		SubmissionType: ectd.DetermineSubmissionType(e.cfg.SequenceNumber),
		StudyNumber:    m.StudyNumber,
		StudyTitle:     m.StudyTitle,
		GeneratedAt:    m.GeneratedAt,
	}
	if e.sponsors == nil {
		return meta, nil
	}
	sp, err := e.sponsors.SponsorForStudy(ctx, studyID)
	if err != nil {
		return meta, fmt.Errorf("load sponsor for study %s: %w", studyID, err)
	}
	if sp != nil {
		meta.ApplicantName = sp.Name
		meta.ApplicationType = sp.ApplicationType
		meta.ApplicationNumber = sp.ApplicationNumber
		meta.DUNSNumber = sp.DUNSNumber
	}
	return meta, nil
}

// withinExportsRoot reports whether dir resolves to a strict
// subdirectory of the exports root, returning its absolute form.
func (e *Exporter) withinExportsRoot(dir string) (string, bool) {
	root, err := filepath.Abs(e.cfg.ExportsRoot)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

// CleanupExport removes one export directory. Paths resolving to the
// exports root itself or anywhere outside it are refused before any
// filesystem access.
func (e *Exporter) CleanupExport(dir string) error {
	abs, ok := e.withinExportsRoot(dir)
	if !ok {
		return errors.New("cannot clean up directory outside exports folder")
	}
	return os.RemoveAll(abs)
}

func normalizePanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("unknown export error")
}
