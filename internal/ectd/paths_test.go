package ectd

import (
	"strings"
	"testing"
)

func TestSanitizePathComponent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"STUDY-001", "study-001"},
		{"Study 001 (Final)", "study-001-final"},
		{"__weird--name__", "weird-name"},
		{"16.2.1", "16-2-1"},
		{"///", ""},
		{"Já Ünicode", "j-nicode"},
	}
	for _, tc := range cases {
		if got := SanitizePathComponent(tc.in); got != tc.want {
			t.Errorf("SanitizePathComponent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Protocol Final.PDF", "protocol-final.pdf"},
		{"report.pdf", "report.pdf"},
		{".pdf", "document.pdf"},
		{"", "document"},
		{"no extension", "no-extension"},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFileName_TruncatesBaseNotExtension(t *testing.T) {
	long := strings.Repeat("a", 80) + ".pdf"
	got := SanitizeFileName(long)
	if !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("expected extension preserved, got %q", got)
	}
	base := strings.TrimSuffix(got, ".pdf")
	if len(base) != 50 {
		t.Errorf("expected 50-char base, got %d (%q)", len(base), base)
	}
}

func TestCodeToFolderPath(t *testing.T) {
	got := CodeToFolderPath("16.2.1", "STUDY-001")
	if want := "m5/study-001/16-2-1"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTargetPath_ParseRoundTrip(t *testing.T) {
	tp := TargetPath("16.2.1", "STUDY-001", "Stats Report.pdf")
	if want := "m5/study-001/16-2-1/stats-report.pdf"; tp != want {
		t.Fatalf("expected %q, got %q", want, tp)
	}

	parts, err := ParseTargetPath(tp)
	if err != nil {
		t.Fatalf("ParseTargetPath failed: %v", err)
	}
	if parts.NodeCode != "16.2.1" {
		t.Errorf("expected node code 16.2.1, got %q", parts.NodeCode)
	}
	if parts.StudyFolder != "study-001" {
		t.Errorf("expected study folder study-001, got %q", parts.StudyFolder)
	}

	back := TargetPath(parts.NodeCode, parts.StudyFolder, parts.FileName)
	if back != tp {
		t.Errorf("round trip mismatch: %q vs %q", back, tp)
	}
}

func TestParseTargetPath_Malformed(t *testing.T) {
	bad := []string{
		"",
		"m5/study-001",
		"m4/study-001/16-1/a.pdf",
		"m5//16-1/a.pdf",
		"m5/study-001/16-1/a/b.pdf",
	}
	for _, p := range bad {
		if _, err := ParseTargetPath(p); err == nil {
			t.Errorf("expected error for %q", p)
		}
	}
}

func TestRelativePath(t *testing.T) {
	cases := []struct {
		fromDir string
		target  string
		want    string
	}{
		{"m1/us", "m5/study-001/16-2-1/report.pdf", "../../m5/study-001/16-2-1/report.pdf"},
		{"m5/study-001/16-2-1", "m5/study-001/16-2-2/data.pdf", "../16-2-2/data.pdf"},
		{"m5/study-001/16-2-1", "m5/study-001/16-2-1/sibling.pdf", "sibling.pdf"},
		{"", "m5/study-001/16-2-1/report.pdf", "m5/study-001/16-2-1/report.pdf"},
	}
	for _, c := range cases {
		if got := RelativePath(c.fromDir, c.target); got != c.want {
			t.Errorf("RelativePath(%q, %q) = %q, want %q", c.fromDir, c.target, got, c.want)
		}
	}
}
