package pdfobj

import (
	"bytes"
	"strings"
	"testing"
)

func valueString(t *testing.T, v any) string {
	t.Helper()
	var buf sliceWriter
	cw := &countingWriter{w: &buf}
	writeValue(cw, v)
	if cw.err != nil {
		t.Fatalf("writeValue: %v", cw.err)
	}
	return string(buf.data)
}

func TestWriteValue_Scalars(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{false, "false"},
		{int64(42), "42"},
		{int64(-7), "-7"},
		{3.5, "3.5"},
		{0.00001, "0.00001"}, // stays fixed-point, never exponent form
		{612.0, "612"},
		{Name("Title"), "/Title"},
		{Ref{Num: 12, Gen: 0}, "12 0 R"},
	}
	for _, c := range cases {
		if got := valueString(t, c.in); got != c.want {
			t.Errorf("writeValue(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestWriteValue_NameEscaping(t *testing.T) {
	got := valueString(t, Name("A B#/C"))
	if got != "/A#20B#23#2FC" {
		t.Errorf("escaped name = %q", got)
	}

	// Reparse through the lexer to confirm the round trip.
	lx := newLexer([]byte(got+" "), 0)
	tok, err := lx.next()
	if err != nil || tok.kind != tokName {
		t.Fatalf("relex name: %v %v", tok.kind, err)
	}
	if string(tok.s) != "A B#/C" {
		t.Errorf("round-tripped name = %q", tok.s)
	}
}

func TestWriteValue_Strings(t *testing.T) {
	if got := valueString(t, String("plain (text)")); got != `(plain \(text\))` {
		t.Errorf("literal string = %q", got)
	}
	// Mostly binary payloads switch to hex form.
	got := valueString(t, String([]byte{0xfe, 0xff, 0x00, 0x41}))
	if !strings.HasPrefix(got, "<") || !strings.HasSuffix(got, ">") {
		t.Errorf("binary string not hex encoded: %q", got)
	}
}

func TestWriteDict_SortedKeys(t *testing.T) {
	d := Dict{"Zebra": int64(1), "Alpha": int64(2), "Mid": int64(3)}
	got := valueString(t, d)
	if got != "<</Alpha 2 /Mid 3 /Zebra 1>>" {
		t.Errorf("dict output = %q", got)
	}
}

func TestWriteValue_StreamRewritesLength(t *testing.T) {
	s := &Stream{Dict: Dict{"Length": int64(999)}, Data: []byte("abcd")}
	got := valueString(t, s)
	if !strings.Contains(got, "/Length 4") {
		t.Errorf("stream did not get corrected /Length: %q", got)
	}
	if !strings.Contains(got, "stream\nabcd\nendstream") {
		t.Errorf("stream body malformed: %q", got)
	}
}

func TestSave_GapsBecomeFreeEntries(t *testing.T) {
	doc := NewDocument()
	ref := doc.Add(Dict{})
	// Force a numbering gap.
	doc.Set(Ref{Num: ref.Num + 3}, Dict{"After": Name("Gap")})

	out, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Contains(out, []byte("0000000000 65535 f")) {
		t.Error("expected free entries in the rebuilt table")
	}

	again, err := Load(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if d, ok := again.ResolveDict(Ref{Num: ref.Num + 3}); !ok || d["After"] != Name("Gap") {
		t.Errorf("object after gap not preserved: %v", d)
	}
}

func TestSave_ScrubsStaleTrailerKeys(t *testing.T) {
	doc, err := Load(buildClassicPDF())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc.Trailer()["Prev"] = int64(123)
	doc.Trailer()["XRefStm"] = int64(456)

	out, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if bytes.Contains(out, []byte("/Prev")) || bytes.Contains(out, []byte("/XRefStm")) {
		t.Error("stale cross-reference keys leaked into the new trailer")
	}
}

func TestTextString_Encoding(t *testing.T) {
	if got := TextString("Summary"); string(got) != "Summary" {
		t.Errorf("ASCII title re-encoded: %q", got)
	}

	utf := TextString("Résumé")
	if len(utf) < 2 || utf[0] != 0xfe || utf[1] != 0xff {
		t.Fatalf("non-ASCII title missing UTF-16 BOM: % x", utf)
	}
	if got := DecodeTextString(utf); got != "Résumé" {
		t.Errorf("decode(encode) = %q", got)
	}
}

func TestDecodeTextString_PlainBytes(t *testing.T) {
	if got := DecodeTextString(String("Chapter 1")); got != "Chapter 1" {
		t.Errorf("plain decode = %q", got)
	}
}
