package checksum

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSum_EmptyInput(t *testing.T) {
	// MD5 of empty input is well-known.
	want := "d41d8cd98f00b204e9800998ecf8427e"
	if got := Sum(nil); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got := Sum([]byte{}); got != want {
		t.Errorf("expected %q for empty slice, got %q", want, got)
	}
}

func TestSum_KnownVector(t *testing.T) {
	want := "900150983cd24fb0d6963f7d28e17f72"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSum_Deterministic(t *testing.T) {
	data := []byte("the same bytes every time")
	if Sum(data) != Sum(data) {
		t.Error("expected identical digests for identical input")
	}
}

func TestSum_DistinctInputs(t *testing.T) {
	if Sum([]byte("aaa")) == Sum([]byte("bbb")) {
		t.Error("expected different digests for different inputs")
	}
}

func TestSum_Format(t *testing.T) {
	got := Sum([]byte("format check"))
	if len(got) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(got))
	}
	if got != strings.ToLower(got) {
		t.Errorf("expected lowercase hex, got %q", got)
	}
}

func TestSumReader_MatchesSum(t *testing.T) {
	data := []byte("streamed content")
	got, err := SumReader(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("SumReader failed: %v", err)
	}
	if want := Sum(data); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := SumFile(path)
	if err != nil {
		t.Fatalf("SumFile failed: %v", err)
	}
	if want := "900150983cd24fb0d6963f7d28e17f72"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSumFile_Missing(t *testing.T) {
	_, err := SumFile(filepath.Join(t.TempDir(), "nope.pdf"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
