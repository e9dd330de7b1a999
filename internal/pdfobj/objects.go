// Package pdfobj is a minimal PDF 1.x object layer: enough of the file
// format to load a document into an object graph, rewrite outlines and
// annotations, and serialize a well-formed file back out. It is not a
// renderer and never interprets content streams.
package pdfobj

import (
	"fmt"
	"unicode/utf16"
)

// PDF values are modeled with Go types:
//
//	null            nil
//	boolean         bool
//	integer         int64
//	real            float64
//	string          String
//	name            Name
//	array           Array
//	dictionary      Dict
//	stream          *Stream
//	indirect ref    Ref
type (
	// Name is a PDF name object, stored without the leading slash.
	Name string

	// String is a PDF string object's raw bytes.
	String []byte

	// Array is a PDF array.
	Array []any

	// Dict is a PDF dictionary keyed by name.
	Dict map[Name]any

	// Ref is an indirect object reference.
	Ref struct {
		Num int
		Gen int
	}
)

// Stream is a PDF stream: a dictionary plus raw (possibly encoded) data.
type Stream struct {
	Dict Dict
	Data []byte
}

func (r Ref) String() string {
	return fmt.Sprintf("%d %d R", r.Num, r.Gen)
}

// IsZero reports whether r is the null reference.
func (r Ref) IsZero() bool {
	return r.Num == 0 && r.Gen == 0
}

// TextString builds a PDF text string from a Go string. ASCII-safe input
// is written verbatim; anything else is encoded UTF-16BE with a BOM, the
// required form for text strings outside PDFDocEncoding.
func TextString(s string) String {
	ascii := true
	for _, r := range s {
		if r > 0x7e || (r < 0x20 && r != '\n' && r != '\r' && r != '\t') {
			ascii = false
			break
		}
	}
	if ascii {
		return String(s)
	}
	u := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2+len(u)*2)
	out = append(out, 0xfe, 0xff)
	for _, cu := range u {
		out = append(out, byte(cu>>8), byte(cu))
	}
	return String(out)
}

// DecodeTextString reverses TextString: UTF-16BE with BOM becomes a Go
// string, anything else is treated as Latin-1-ish raw bytes.
func DecodeTextString(s String) string {
	if len(s) >= 2 && s[0] == 0xfe && s[1] == 0xff {
		u := make([]uint16, 0, (len(s)-2)/2)
		for i := 2; i+1 < len(s); i += 2 {
			u = append(u, uint16(s[i])<<8|uint16(s[i+1]))
		}
		return string(utf16.Decode(u))
	}
	return string(s)
}

// Int returns v as an int64 when it is a PDF integer (or a real holding
// an integral value).
func Int(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// Float returns v as float64 when it is numeric.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
