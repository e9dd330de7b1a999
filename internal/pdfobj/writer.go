package pdfobj

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// countingWriter tracks byte offsets while the document is written, so
// the cross-reference table can be built in the same pass.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
	return n, err
}

func (cw *countingWriter) writeString(s string) {
	cw.Write([]byte(s))
}

// Save serializes the document: header, every live object in numeric
// order, a rebuilt classic cross-reference table, and the trailer.
// Object numbers are preserved; gaps become free entries.
func (d *Document) Save(w io.Writer) error {
	if d.trailer == nil {
		return fmt.Errorf("document has no trailer")
	}
	cw := &countingWriter{w: w}

	version := d.Version
	if version == "" {
		version = "1.4"
	}
	cw.writeString("%PDF-" + version + "\n")
	// Binary marker comment so transfer tools treat the file as binary.
	cw.Write([]byte{'%', 0xe2, 0xe3, 0xcf, 0xd3, '\n'})

	nums := make([]int, 0, len(d.objects))
	for ref := range d.objects {
		nums = append(nums, ref.Num)
	}
	sort.Ints(nums)

	maxNum := 0
	offsets := make(map[int]int64, len(nums))
	gens := make(map[int]int, len(nums))
	for _, num := range nums {
		ref := d.refByNum[num]
		offsets[num] = cw.n
		gens[num] = ref.Gen
		if num > maxNum {
			maxNum = num
		}
		cw.writeString(strconv.Itoa(num) + " " + strconv.Itoa(ref.Gen) + " obj\n")
		writeValue(cw, d.objects[ref])
		cw.writeString("\nendobj\n")
	}

	xrefOffset := cw.n
	cw.writeString("xref\n")
	cw.writeString("0 " + strconv.Itoa(maxNum+1) + "\n")
	cw.writeString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		if off, ok := offsets[num]; ok {
			cw.writeString(fmt.Sprintf("%010d %05d n \n", off, gens[num]))
		} else {
			cw.writeString("0000000000 65535 f \n")
		}
	}

	trailer := Dict{}
	for k, v := range d.trailer {
		switch k {
		case "Prev", "XRefStm", "Type", "W", "Index", "Filter", "DecodeParms", "Length":
			// Stale cross-reference bookkeeping from the source file.
		default:
			trailer[k] = v
		}
	}
	trailer["Size"] = int64(maxNum + 1)

	cw.writeString("trailer\n")
	writeValue(cw, trailer)
	cw.writeString("\nstartxref\n")
	cw.writeString(strconv.FormatInt(xrefOffset, 10) + "\n")
	cw.writeString("%%EOF\n")
	return cw.err
}

// Bytes serializes the document into memory.
func (d *Document) Bytes() ([]byte, error) {
	var buf sliceWriter
	if err := d.Save(&buf); err != nil {
		return nil, err
	}
	return buf.data, nil
}

type sliceWriter struct{ data []byte }

func (s *sliceWriter) Write(p []byte) (int, error) {
	s.data = append(s.data, p...)
	return len(p), nil
}

func writeValue(cw *countingWriter, v any) {
	switch x := v.(type) {
	case nil:
		cw.writeString("null")
	case bool:
		if x {
			cw.writeString("true")
		} else {
			cw.writeString("false")
		}
	case int64:
		cw.writeString(strconv.FormatInt(x, 10))
	case int:
		cw.writeString(strconv.Itoa(x))
	case float64:
		cw.writeString(formatReal(x))
	case String:
		writeStringObject(cw, x)
	case Name:
		writeName(cw, x)
	case Array:
		cw.writeString("[")
		for i, item := range x {
			if i > 0 {
				cw.writeString(" ")
			}
			writeValue(cw, item)
		}
		cw.writeString("]")
	case Dict:
		writeDict(cw, x)
	case *Stream:
		sd := Dict{}
		for k, val := range x.Dict {
			sd[k] = val
		}
		sd["Length"] = int64(len(x.Data))
		writeDict(cw, sd)
		cw.writeString("\nstream\n")
		cw.Write(x.Data)
		cw.writeString("\nendstream")
	case Ref:
		cw.writeString(x.String())
	default:
		// Unknown Go type: write null rather than corrupt the file.
		cw.writeString("null")
	}
}

func writeDict(cw *countingWriter, d Dict) {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, string(k))
	}
	// Deterministic output: map order must not leak into the file.
	sort.Strings(keys)

	cw.writeString("<<")
	for i, k := range keys {
		if i > 0 {
			cw.writeString(" ")
		}
		writeName(cw, Name(k))
		cw.writeString(" ")
		writeValue(cw, d[Name(k)])
	}
	cw.writeString(">>")
}

func writeName(cw *countingWriter, n Name) {
	out := []byte{'/'}
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c <= 0x20 || c >= 0x7f || isDelimiter(c) || c == '#' {
			out = append(out, fmt.Sprintf("#%02X", c)...)
		} else {
			out = append(out, c)
		}
	}
	cw.Write(out)
}

func writeStringObject(cw *countingWriter, s String) {
	// Mostly-binary strings read better as hex.
	binary := 0
	for _, c := range s {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			binary++
		}
		if c >= 0x7f {
			binary++
		}
	}
	if len(s) > 0 && binary*4 >= len(s) {
		out := make([]byte, 0, len(s)*2+2)
		out = append(out, '<')
		out = append(out, []byte(fmt.Sprintf("%X", []byte(s)))...)
		out = append(out, '>')
		cw.Write(out)
		return
	}

	out := []byte{'('}
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		case '\t':
			out = append(out, '\\', 't')
		default:
			out = append(out, c)
		}
	}
	out = append(out, ')')
	cw.Write(out)
}

func formatReal(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "0"
	}
	s := strconv.FormatFloat(f, 'f', 5, 64)
	// Trim trailing zeros; PDF readers dislike exponent notation.
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
