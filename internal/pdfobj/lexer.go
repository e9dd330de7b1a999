package pdfobj

import (
	"fmt"
	"strconv"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokInteger
	tokReal
	tokString
	tokName
	tokKeyword   // obj, endobj, stream, R, true, false, null, xref, trailer, ...
	tokArrayOpen // [
	tokArrayClose
	tokDictOpen // <<
	tokDictClose
)

type token struct {
	kind tokenKind
	pos  int
	i    int64
	f    float64
	s    []byte // string/name/keyword payload
}

// lexer walks PDF syntax over a byte slice. Stream payloads are not
// tokenized; the parser skips them using /Length or an endstream scan.
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte, pos int) *lexer {
	return &lexer{data: data, pos: pos}
}

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, '\t', '\n', 0x0c, '\r', ' ':
		return true
	}
	return false
}

func isRegular(c byte) bool {
	return !isWhitespace(c) && !isDelimiter(c)
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if isWhitespace(c) {
			lx.pos++
			continue
		}
		if c == '%' {
			for lx.pos < len(lx.data) && lx.data[lx.pos] != '\n' && lx.data[lx.pos] != '\r' {
				lx.pos++
			}
			continue
		}
		return
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipSpace()
	if lx.pos >= len(lx.data) {
		return token{kind: tokEOF, pos: lx.pos}, nil
	}
	start := lx.pos
	c := lx.data[lx.pos]

	switch {
	case c == '[':
		lx.pos++
		return token{kind: tokArrayOpen, pos: start}, nil
	case c == ']':
		lx.pos++
		return token{kind: tokArrayClose, pos: start}, nil
	case c == '<':
		if lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '<' {
			lx.pos += 2
			return token{kind: tokDictOpen, pos: start}, nil
		}
		return lx.hexString()
	case c == '>':
		if lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '>' {
			lx.pos += 2
			return token{kind: tokDictClose, pos: start}, nil
		}
		return token{}, fmt.Errorf("stray '>' at offset %d", start)
	case c == '(':
		return lx.literalString()
	case c == '/':
		return lx.name()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return lx.number()
	case isRegular(c):
		return lx.keyword()
	default:
		return token{}, fmt.Errorf("unexpected byte 0x%02x at offset %d", c, start)
	}
}

func (lx *lexer) hexString() (token, error) {
	start := lx.pos
	lx.pos++ // consume '<'
	var out []byte
	var hi byte
	haveHi := false
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		if c == '>' {
			if haveHi {
				out = append(out, hi<<4)
			}
			return token{kind: tokString, pos: start, s: out}, nil
		}
		if isWhitespace(c) {
			continue
		}
		v, ok := hexVal(c)
		if !ok {
			return token{}, fmt.Errorf("bad hex digit %q at offset %d", c, lx.pos-1)
		}
		if haveHi {
			out = append(out, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
	}
	return token{}, fmt.Errorf("unterminated hex string at offset %d", start)
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (lx *lexer) literalString() (token, error) {
	start := lx.pos
	lx.pos++ // consume '('
	depth := 1
	var out []byte
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		switch c {
		case '\\':
			if lx.pos >= len(lx.data) {
				return token{}, fmt.Errorf("unterminated string escape at offset %d", lx.pos)
			}
			e := lx.data[lx.pos]
			lx.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, 0x0c)
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				// Line continuation; swallow a following \n too.
				if lx.pos < len(lx.data) && lx.data[lx.pos] == '\n' {
					lx.pos++
				}
			case '\n':
				// Line continuation.
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && lx.pos < len(lx.data); k++ {
						d := lx.data[lx.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						lx.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return token{kind: tokString, pos: start, s: out}, nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return token{}, fmt.Errorf("unterminated string at offset %d", start)
}

func (lx *lexer) name() (token, error) {
	start := lx.pos
	lx.pos++ // consume '/'
	var out []byte
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if !isRegular(c) {
			break
		}
		lx.pos++
		if c == '#' && lx.pos+1 < len(lx.data) {
			hi, ok1 := hexVal(lx.data[lx.pos])
			lo, ok2 := hexVal(lx.data[lx.pos+1])
			if ok1 && ok2 {
				out = append(out, hi<<4|lo)
				lx.pos += 2
				continue
			}
		}
		out = append(out, c)
	}
	return token{kind: tokName, pos: start, s: out}, nil
}

func (lx *lexer) number() (token, error) {
	start := lx.pos
	real := false
	if lx.data[lx.pos] == '+' || lx.data[lx.pos] == '-' {
		lx.pos++
	}
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if c == '.' {
			real = true
			lx.pos++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		lx.pos++
	}
	text := string(lx.data[start:lx.pos])
	if real {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, fmt.Errorf("bad real %q at offset %d", text, start)
		}
		return token{kind: tokReal, pos: start, f: f}, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, fmt.Errorf("bad integer %q at offset %d", text, start)
	}
	return token{kind: tokInteger, pos: start, i: i}, nil
}

func (lx *lexer) keyword() (token, error) {
	start := lx.pos
	for lx.pos < len(lx.data) && isRegular(lx.data[lx.pos]) {
		lx.pos++
	}
	return token{kind: tokKeyword, pos: start, s: lx.data[start:lx.pos]}, nil
}
