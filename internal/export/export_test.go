package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clindesk/ectdpack/internal/assemble"
	"github.com/clindesk/ectdpack/internal/ectd"
	"github.com/clindesk/ectdpack/internal/pdfobj"
	"github.com/clindesk/ectdpack/internal/study"
	"github.com/clindesk/ectdpack/internal/validate"
)

type stubRepo struct {
	st  *study.Study
	err error
}

func (r *stubRepo) FindStudyWithTemplateAndDocuments(_ context.Context, id string) (*study.Study, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.st == nil || r.st.ID != id {
		return nil, fmt.Errorf("study %s not found", id)
	}
	return r.st, nil
}

type stubSponsors struct {
	sp  *study.Sponsor
	err error
}

func (s *stubSponsors) SponsorForStudy(context.Context, string) (*study.Sponsor, error) {
	return s.sp, s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	doc := pdfobj.NewDocument()
	res := pdfobj.Dict{"Font": pdfobj.Dict{"F1": pdfobj.StandardFont("Helvetica")}}
	content := []byte("BT /F1 12 Tf 72 720 Td (Clinical study report) Tj ET")
	if _, err := doc.AppendPage(612, 792, content, res); err != nil {
		t.Fatalf("AppendPage: %v", err)
	}
	data, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return name
}

// twoDocStudy fills both template slots with approved documents whose
// sources exist under uploads.
func twoDocStudy(t *testing.T, uploads string) *study.Study {
	t.Helper()
	protocol := writePDF(t, uploads, "protocol.pdf")
	report := writePDF(t, uploads, "report.pdf")
	return &study.Study{
		ID:          "study-001",
		StudyNumber: "CD-2881-003",
		Title:       "Phase II efficacy study",
		Template: &study.Template{
			ID: "tpl-1", Active: true,
			Nodes: []study.TemplateNode{
				{Code: "16.1", Title: "Protocol", Required: true},
				{Code: "16.2", Title: "Study Report", Required: true},
			},
		},
		Documents: []study.Document{
			{
				ID: "doc-1", NodeCode: "16.1", Title: "Protocol",
				FileName: "protocol.pdf", Version: 2,
				Status:           study.StatusApproved,
				ValidationStatus: study.ValidationPassed,
				SourcePath:       protocol, FileSize: 1200, PageCount: 1,
				Bookmarks: []study.OutlineSpec{
					{Title: "Protocol", PageNumber: 1, Open: true},
				},
			},
			{
				ID: "doc-2", NodeCode: "16.2", Title: "Study Report",
				FileName: "report.pdf", Version: 1,
				Status:           study.StatusPublished,
				ValidationStatus: study.ValidationPassed,
				SourcePath:       report, FileSize: 3400, PageCount: 1,
			},
		},
	}
}

func newTestExporter(t *testing.T, repo study.Repository, uploads string) (*Exporter, string) {
	t.Helper()
	reg, err := validate.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	root := t.TempDir()
	e := New(repo,
		&stubSponsors{sp: &study.Sponsor{Name: "Acme Therapeutics, Inc."}},
		assemble.DirResolver{Root: uploads},
		reg,
		Config{ExportsRoot: root},
		discard(),
	)
	e.newID = func() string { return "pkg-test0001" }
	e.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	return e, root
}

func TestExport_Success(t *testing.T) {
	uploads := t.TempDir()
	st := twoDocStudy(t, uploads)
	e, root := newTestExporter(t, &stubRepo{st: st}, uploads)

	res, err := e.Export(context.Background(), "study-001", Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !res.Success || res.PackageID != "pkg-test0001" {
		t.Fatalf("result = %+v", res)
	}
	if res.Manifest == nil || len(res.Manifest.Files) != 2 {
		t.Fatalf("manifest missing from result: %+v", res.Manifest)
	}
	if res.Validation == nil || !res.Validation.Valid {
		t.Fatalf("validation = %+v", res.Validation)
	}

	pkgDir := filepath.Join(root, "study-001", "pkg-test0001")
	for _, rel := range []string{
		"ectd/index.xml",
		"ectd/us-regional.xml",
		"ectd/" + ectd.CoverPagePath,
		"bookmark-manifest.json",
		"hyperlink-report.csv",
		"qc-summary.json",
		"qc-report.html",
		"package.zip",
	} {
		if _, err := os.Stat(filepath.Join(pkgDir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing artifact %s: %v", rel, err)
		}
	}
	if res.ZipPath != filepath.Join(pkgDir, "package.zip") {
		t.Errorf("ZipPath = %q", res.ZipPath)
	}
	if res.ZipSize <= 0 {
		t.Errorf("ZipSize = %d", res.ZipSize)
	}
}

func TestExport_InjectsAuthoredBookmarks(t *testing.T) {
	uploads := t.TempDir()
	st := twoDocStudy(t, uploads)
	e, root := newTestExporter(t, &stubRepo{st: st}, uploads)

	res, err := e.Export(context.Background(), "study-001", Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	target := res.Manifest.FileByTarget("m5/cd-2881-003/16-1/protocol.pdf")
	if target == nil {
		t.Fatalf("protocol target missing; files: %+v", res.Manifest.Files)
	}
	packaged := filepath.Join(root, "study-001", res.PackageID, assemble.StructureDirName,
		filepath.FromSlash(target.TargetPath))
	data, err := os.ReadFile(packaged)
	if err != nil {
		t.Fatalf("read packaged protocol: %v", err)
	}
	doc, err := pdfobj.Load(data)
	if err != nil {
		t.Fatalf("reload processed PDF: %v", err)
	}
	cat, err := doc.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if _, ok := cat["Outlines"]; !ok {
		t.Error("authored bookmarks were not injected")
	}

	var protocolOutcome bool
	for _, f := range res.Validation.Files {
		if f.File == target.TargetPath {
			protocolOutcome = true
		}
	}
	if !protocolOutcome {
		t.Error("processed file missing from validation report")
	}
}

func TestExport_EmptyManifest(t *testing.T) {
	uploads := t.TempDir()
	st := &study.Study{
		ID:          "study-001",
		StudyNumber: "CD-2881-003",
		Template: &study.Template{
			ID: "tpl-1", Active: true,
			Nodes: []study.TemplateNode{{Code: "16.1", Title: "Protocol"}},
		},
	}
	e, root := newTestExporter(t, &stubRepo{st: st}, uploads)

	_, err := e.Export(context.Background(), "study-001", Options{})
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("err = %v, want ErrNoDocuments", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("exports root should be untouched, found %d entries", len(entries))
	}
}

func notReadyStudy(t *testing.T, uploads string) *study.Study {
	t.Helper()
	st := twoDocStudy(t, uploads)
	st.Template.Nodes = append(st.Template.Nodes,
		study.TemplateNode{Code: "16.3", Title: "Statistics", Required: true})
	st.Documents[0].ValidationStatus = study.ValidationFailed
	st.Documents[1].ValidationStatus = study.ValidationFailed
	return st
}

func TestExport_ReadinessGateBlocks(t *testing.T) {
	uploads := t.TempDir()
	e, root := newTestExporter(t, &stubRepo{st: notReadyStudy(t, uploads)}, uploads)

	_, err := e.Export(context.Background(), "study-001", Options{})
	var nre *NotReadyError
	if !errors.As(err, &nre) {
		t.Fatalf("err = %v, want *NotReadyError", err)
	}
	msg := err.Error()
	for _, want := range []string{"1 required document(s) missing", "2 validation error(s)"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}

	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("readiness failure must not create directories, found %d entries", len(entries))
	}
}

func TestExport_ForceOverridesGate(t *testing.T) {
	uploads := t.TempDir()
	e, _ := newTestExporter(t, &stubRepo{st: notReadyStudy(t, uploads)}, uploads)

	res, err := e.Export(context.Background(), "study-001", Options{Force: true})
	if err != nil {
		t.Fatalf("forced export: %v", err)
	}
	if !res.Success || res.ZipPath == "" {
		t.Fatalf("forced export produced no bundle: %+v", res)
	}
	if _, err := os.Stat(res.ZipPath); err != nil {
		t.Errorf("zip missing: %v", err)
	}
	if res.Validation == nil || res.Validation.Valid {
		t.Errorf("forced export should still report validation errors: %+v", res.Validation)
	}
}

func TestExport_IncludeDrafts(t *testing.T) {
	uploads := t.TempDir()
	st := twoDocStudy(t, uploads)
	for i := range st.Documents {
		st.Documents[i].Status = study.StatusDraft
	}
	e, _ := newTestExporter(t, &stubRepo{st: st}, uploads)

	if _, err := e.Export(context.Background(), "study-001", Options{}); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("drafts should be excluded by default, got %v", err)
	}

	res, err := e.Export(context.Background(), "study-001", Options{IncludeDrafts: true})
	if err != nil {
		t.Fatalf("draft export: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
}

func TestExport_FailureRemovesPackageDir(t *testing.T) {
	uploads := t.TempDir()
	st := twoDocStudy(t, uploads)
	st.Documents[1].SourcePath = "vanished.pdf"
	e, root := newTestExporter(t, &stubRepo{st: st}, uploads)

	_, err := e.Export(context.Background(), "study-001", Options{})
	if err == nil {
		t.Fatal("expected a copy failure")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cause not preserved: %v", err)
	}

	pkgDir := filepath.Join(root, "study-001", "pkg-test0001")
	if _, serr := os.Stat(pkgDir); !errors.Is(serr, os.ErrNotExist) {
		t.Errorf("package dir should be cleaned up, stat err = %v", serr)
	}
}

func TestExport_PanicNormalized(t *testing.T) {
	uploads := t.TempDir()
	e, _ := newTestExporter(t, &stubRepo{st: twoDocStudy(t, uploads)}, uploads)
	e.newID = func() string { panic("boom") }

	res, err := e.Export(context.Background(), "study-001", Options{})
	if res != nil {
		t.Errorf("result should be nil after panic, got %+v", res)
	}
	if err == nil || err.Error() != "unknown export error" {
		t.Errorf("err = %v, want normalized message", err)
	}
}

func TestCleanupExport_Bounds(t *testing.T) {
	uploads := t.TempDir()
	e, root := newTestExporter(t, &stubRepo{st: twoDocStudy(t, uploads)}, uploads)

	for _, dir := range []string{
		"/tmp/somewhere-else",
		root,
		filepath.Join(root, ".."),
		filepath.Join(root, "..", "sibling"),
	} {
		err := e.CleanupExport(dir)
		if err == nil || !strings.Contains(err.Error(), "cannot clean up directory outside exports folder") {
			t.Errorf("CleanupExport(%q) = %v, want refusal", dir, err)
		}
	}

	inside := filepath.Join(root, "study-001", "pkg-x")
	if err := os.MkdirAll(inside, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := e.CleanupExport(inside); err != nil {
		t.Fatalf("CleanupExport inside root: %v", err)
	}
	if _, err := os.Stat(inside); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("directory not removed: %v", err)
	}
}

func TestExport_RejectsTraversalStudyID(t *testing.T) {
	uploads := t.TempDir()
	st := twoDocStudy(t, uploads)
	st.ID = "../evil"
	e, root := newTestExporter(t, &stubRepo{st: st}, uploads)

	_, err := e.Export(context.Background(), "../evil", Options{})
	if err == nil || !strings.Contains(err.Error(), "escapes the exports folder") {
		t.Fatalf("err = %v, want traversal refusal", err)
	}
	if entries, _ := os.ReadDir(root); len(entries) != 0 {
		t.Errorf("no directories should be created, found %d entries", len(entries))
	}
	if _, serr := os.Stat(filepath.Join(filepath.Dir(root), "evil")); !errors.Is(serr, os.ErrNotExist) {
		t.Errorf("escaped directory exists: %v", serr)
	}
}

func TestExport_SkipValidationAndChecksums(t *testing.T) {
	uploads := t.TempDir()
	e, root := newTestExporter(t, &stubRepo{st: twoDocStudy(t, uploads)}, uploads)

	res, err := e.Export(context.Background(), "study-001",
		Options{SkipValidation: true, SkipChecksums: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Validation != nil {
		t.Errorf("validation should be skipped, got %+v", res.Validation)
	}
	idx, err := os.ReadFile(filepath.Join(root, "study-001", res.PackageID, "ectd", "index.xml"))
	if err != nil {
		t.Fatalf("read index.xml: %v", err)
	}
	if strings.Contains(string(idx), "checksum=") {
		t.Error("index.xml should have no checksums")
	}
}
