package pdfobj

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotPDF is returned for input without a PDF header.
var ErrNotPDF = errors.New("not a PDF file")

type parser struct {
	data []byte
	lx   *lexer
	buf  []token
}

func newParser(data []byte, pos int) *parser {
	return &parser{data: data, lx: newLexer(data, pos)}
}

func (p *parser) read() (token, error) {
	if len(p.buf) > 0 {
		t := p.buf[0]
		p.buf = p.buf[1:]
		return t, nil
	}
	return p.lx.next()
}

func (p *parser) peek(i int) (token, error) {
	for len(p.buf) <= i {
		t, err := p.lx.next()
		if err != nil {
			return token{}, err
		}
		p.buf = append(p.buf, t)
	}
	return p.buf[i], nil
}

func (p *parser) expectKeyword(kw string) error {
	t, err := p.read()
	if err != nil {
		return err
	}
	if t.kind != tokKeyword || string(t.s) != kw {
		return fmt.Errorf("expected %q at offset %d", kw, t.pos)
	}
	return nil
}

// parseValue reads one PDF value, folding "N G R" into a Ref.
func (p *parser) parseValue() (any, error) {
	t, err := p.read()
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case tokInteger:
		t1, err := p.peek(0)
		if err == nil && t1.kind == tokInteger {
			t2, err := p.peek(1)
			if err == nil && t2.kind == tokKeyword && string(t2.s) == "R" {
				p.buf = p.buf[2:]
				return Ref{Num: int(t.i), Gen: int(t1.i)}, nil
			}
		}
		return t.i, nil
	case tokReal:
		return t.f, nil
	case tokString:
		return String(t.s), nil
	case tokName:
		return Name(t.s), nil
	case tokArrayOpen:
		arr := Array{}
		for {
			nt, err := p.peek(0)
			if err != nil {
				return nil, err
			}
			if nt.kind == tokArrayClose {
				p.buf = p.buf[1:]
				return arr, nil
			}
			if nt.kind == tokEOF {
				return nil, fmt.Errorf("unterminated array at offset %d", t.pos)
			}
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
	case tokDictOpen:
		dict := Dict{}
		for {
			nt, err := p.read()
			if err != nil {
				return nil, err
			}
			if nt.kind == tokDictClose {
				return dict, nil
			}
			if nt.kind != tokName {
				return nil, fmt.Errorf("expected name key at offset %d", nt.pos)
			}
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			dict[Name(nt.s)] = v
		}
	case tokKeyword:
		switch string(t.s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", t.s, t.pos)
	default:
		return nil, fmt.Errorf("unexpected token at offset %d", t.pos)
	}
}

// parseIndirect parses "num gen obj ... endobj" starting at the current
// position. lengthOf resolves indirect /Length references; it may be
// nil.
func (p *parser) parseIndirect(lengthOf func(Ref) (int64, bool)) (Ref, any, error) {
	t0, err := p.read()
	if err != nil {
		return Ref{}, nil, err
	}
	t1, err := p.read()
	if err != nil {
		return Ref{}, nil, err
	}
	if t0.kind != tokInteger || t1.kind != tokInteger {
		return Ref{}, nil, fmt.Errorf("expected object header at offset %d", t0.pos)
	}
	if err := p.expectKeyword("obj"); err != nil {
		return Ref{}, nil, err
	}
	ref := Ref{Num: int(t0.i), Gen: int(t1.i)}

	val, err := p.parseValue()
	if err != nil {
		return Ref{}, nil, err
	}

	nt, err := p.peek(0)
	if err == nil && nt.kind == tokKeyword && string(nt.s) == "stream" {
		dict, ok := val.(Dict)
		if !ok {
			return Ref{}, nil, fmt.Errorf("stream without dictionary at offset %d", nt.pos)
		}
		p.buf = nil // positions after the buffer are stale once we jump
		data, next, err := p.readStreamData(dict, nt.pos, lengthOf)
		if err != nil {
			return Ref{}, nil, err
		}
		p.lx.pos = next
		val = &Stream{Dict: dict, Data: data}
	}

	// endobj is conventionally present; tolerate its absence.
	if nt, err := p.peek(0); err == nil && nt.kind == tokKeyword && string(nt.s) == "endobj" {
		p.buf = p.buf[1:]
	}
	return ref, val, nil
}

// readStreamData extracts the raw stream payload that starts with the
// "stream" keyword at kwPos. Returns the data and the position just
// after "endstream".
func (p *parser) readStreamData(dict Dict, kwPos int, lengthOf func(Ref) (int64, bool)) ([]byte, int, error) {
	start := kwPos + len("stream")
	if start < len(p.data) && p.data[start] == '\r' {
		start++
	}
	if start < len(p.data) && p.data[start] == '\n' {
		start++
	}

	length := int64(-1)
	switch lv := dict["Length"].(type) {
	case int64:
		length = lv
	case Ref:
		if lengthOf != nil {
			if n, ok := lengthOf(lv); ok {
				length = n
			}
		}
	}

	if length >= 0 && start+int(length) <= len(p.data) {
		end := start + int(length)
		// Trust /Length only when "endstream" actually follows.
		tail := p.data[end:min(end+32, len(p.data))]
		if idx := bytes.Index(tail, []byte("endstream")); idx >= 0 {
			return p.data[start:end], end + idx + len("endstream"), nil
		}
	}

	// Recovery: scan for the terminator.
	idx := bytes.Index(p.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, 0, fmt.Errorf("unterminated stream at offset %d", kwPos)
	}
	end := start + idx
	data := p.data[start:end]
	// The terminator is preceded by an EOL that is not part of the data.
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	if len(data) > 0 && data[len(data)-1] == '\r' {
		data = data[:len(data)-1]
	}
	return data, end + len("endstream"), nil
}

type xrefEntry struct {
	kind   int // 0 free, 1 offset, 2 in object stream
	offset int64
	gen    int
	stmNum int
	stmIdx int
}

// parseXrefAt reads the cross-reference section at offset, which is
// either a classic table or a cross-reference stream. It returns the
// entries and the section's trailer dictionary.
func parseXrefAt(data []byte, offset int64) (map[int]xrefEntry, Dict, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, nil, fmt.Errorf("xref offset %d out of range", offset)
	}
	p := newParser(data, int(offset))
	t, err := p.peek(0)
	if err != nil {
		return nil, nil, err
	}
	if t.kind == tokKeyword && string(t.s) == "xref" {
		p.buf = p.buf[1:]
		return parseXrefTable(p)
	}
	return parseXrefStream(p)
}

func parseXrefTable(p *parser) (map[int]xrefEntry, Dict, error) {
	entries := map[int]xrefEntry{}
	for {
		t, err := p.read()
		if err != nil {
			return nil, nil, err
		}
		if t.kind == tokKeyword && string(t.s) == "trailer" {
			tr, err := p.parseValue()
			if err != nil {
				return nil, nil, err
			}
			trailer, ok := tr.(Dict)
			if !ok {
				return nil, nil, fmt.Errorf("trailer is not a dictionary")
			}
			return entries, trailer, nil
		}
		if t.kind != tokInteger {
			return nil, nil, fmt.Errorf("malformed xref subsection at offset %d", t.pos)
		}
		startNum := int(t.i)
		ct, err := p.read()
		if err != nil {
			return nil, nil, err
		}
		if ct.kind != tokInteger {
			return nil, nil, fmt.Errorf("malformed xref count at offset %d", ct.pos)
		}
		for i := 0; i < int(ct.i); i++ {
			offTok, err := p.read()
			if err != nil {
				return nil, nil, err
			}
			genTok, err := p.read()
			if err != nil {
				return nil, nil, err
			}
			kindTok, err := p.read()
			if err != nil {
				return nil, nil, err
			}
			if offTok.kind != tokInteger || genTok.kind != tokInteger || kindTok.kind != tokKeyword {
				return nil, nil, fmt.Errorf("malformed xref entry at offset %d", offTok.pos)
			}
			num := startNum + i
			if _, seen := entries[num]; seen {
				continue
			}
			switch string(kindTok.s) {
			case "n":
				entries[num] = xrefEntry{kind: 1, offset: offTok.i, gen: int(genTok.i)}
			case "f":
				entries[num] = xrefEntry{kind: 0, gen: int(genTok.i)}
			default:
				return nil, nil, fmt.Errorf("bad xref entry type %q", kindTok.s)
			}
		}
	}
}

func parseXrefStream(p *parser) (map[int]xrefEntry, Dict, error) {
	_, val, err := p.parseIndirect(nil)
	if err != nil {
		return nil, nil, err
	}
	stm, ok := val.(*Stream)
	if !ok {
		return nil, nil, fmt.Errorf("cross-reference stream expected")
	}
	if tp, _ := stm.Dict["Type"].(Name); tp != "XRef" {
		return nil, nil, fmt.Errorf("object at xref offset is not an XRef stream")
	}

	raw, err := decodeStream(stm)
	if err != nil {
		return nil, nil, fmt.Errorf("decode xref stream: %w", err)
	}

	wArr, ok := stm.Dict["W"].(Array)
	if !ok || len(wArr) < 3 {
		return nil, nil, fmt.Errorf("xref stream missing /W")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		n, ok := Int(wArr[i])
		if !ok {
			return nil, nil, fmt.Errorf("bad /W entry")
		}
		w[i] = int(n)
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, nil, fmt.Errorf("zero-width xref rows")
	}

	size, _ := Int(stm.Dict["Size"])
	index := []int64{0, size}
	if idxArr, ok := stm.Dict["Index"].(Array); ok {
		index = index[:0]
		for _, v := range idxArr {
			n, ok := Int(v)
			if !ok {
				return nil, nil, fmt.Errorf("bad /Index entry")
			}
			index = append(index, n)
		}
	}

	entries := map[int]xrefEntry{}
	pos := 0
	readField := func(width int) int64 {
		if width == 0 {
			return 0
		}
		var v int64
		for i := 0; i < width && pos < len(raw); i++ {
			v = v<<8 | int64(raw[pos])
			pos++
		}
		return v
	}

	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			if pos+rowLen > len(raw) {
				break
			}
			f0 := readField(w[0])
			f1 := readField(w[1])
			f2 := readField(w[2])
			if w[0] == 0 {
				f0 = 1 // a zero-width type field defaults to 1
			}
			num := int(start + j)
			if _, seen := entries[num]; seen {
				continue
			}
			switch f0 {
			case 0:
				entries[num] = xrefEntry{kind: 0, gen: int(f2)}
			case 1:
				entries[num] = xrefEntry{kind: 1, offset: f1, gen: int(f2)}
			case 2:
				entries[num] = xrefEntry{kind: 2, stmNum: int(f1), stmIdx: int(f2)}
			}
		}
	}
	return entries, stm.Dict, nil
}

var objHeaderRe = regexp.MustCompile(`(?s)(\d+)\s+(\d+)\s+obj\b`)

// scanObjects is the recovery path: walk the whole file for indirect
// object headers, newest (later in file) definitions winning.
func scanObjects(data []byte) (map[Ref]any, Dict, error) {
	objects := map[Ref]any{}
	byNum := map[int]Ref{}

	locs := objHeaderRe.FindAllSubmatchIndex(data, -1)
	for _, loc := range locs {
		start := loc[0]
		// A header inside a stream body has arbitrary bytes before it;
		// requiring a token boundary filters most false positives.
		if start > 0 && isRegular(data[start-1]) {
			continue
		}
		p := newParser(data, start)
		ref, val, err := p.parseIndirect(nil)
		if err != nil {
			continue
		}
		if old, ok := byNum[ref.Num]; ok {
			delete(objects, old)
		}
		byNum[ref.Num] = ref
		objects[ref] = val
	}
	if len(objects) == 0 {
		return nil, nil, fmt.Errorf("no objects found")
	}

	// The last trailer in the file is the newest.
	trailer := Dict{}
	search := data
	base := 0
	for {
		idx := bytes.Index(search, []byte("trailer"))
		if idx < 0 {
			break
		}
		p := newParser(data, base+idx+len("trailer"))
		if v, err := p.parseValue(); err == nil {
			if td, ok := v.(Dict); ok {
				for k, val := range td {
					trailer[k] = val
				}
			}
		}
		base += idx + len("trailer")
		search = data[base:]
	}

	if _, ok := trailer["Root"]; !ok {
		for ref, val := range objects {
			if d, ok := val.(Dict); ok {
				if tp, _ := d["Type"].(Name); tp == "Catalog" {
					trailer["Root"] = ref
					break
				}
			}
		}
	}
	if _, ok := trailer["Root"]; !ok {
		return nil, nil, fmt.Errorf("no document catalog found")
	}
	return objects, trailer, nil
}

func findStartXref(data []byte) (int64, error) {
	tail := data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref not found")
	}
	p := newParser(tail, idx+len("startxref"))
	t, err := p.read()
	if err != nil || t.kind != tokInteger {
		return 0, fmt.Errorf("malformed startxref")
	}
	return t.i, nil
}

func parseVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	ver := make([]byte, 0, 8)
	for i := idx + len("%PDF-"); i < len(head); i++ {
		c := head[i]
		if (c >= '0' && c <= '9') || c == '.' {
			ver = append(ver, c)
			continue
		}
		break
	}
	if len(ver) == 0 {
		return "", ErrNotPDF
	}
	return string(ver), nil
}

// parseIntAt reads the integer value of the indirect object at offset.
// Used to resolve indirect /Length values during stream extraction.
func parseIntAt(data []byte, offset int64) (int64, bool) {
	if offset < 0 || offset >= int64(len(data)) {
		return 0, false
	}
	p := newParser(data, int(offset))
	t0, err := p.read()
	if err != nil || t0.kind != tokInteger {
		return 0, false
	}
	t1, err := p.read()
	if err != nil || t1.kind != tokInteger {
		return 0, false
	}
	if err := p.expectKeyword("obj"); err != nil {
		return 0, false
	}
	v, err := p.read()
	if err != nil || v.kind != tokInteger {
		return 0, false
	}
	return v.i, true
}
