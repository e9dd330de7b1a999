package pdfobj

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// decodeStream returns the stream payload with its filter chain
// applied. Only the filters needed for structural work are supported:
// FlateDecode (with optional PNG predictors) and ASCIIHexDecode.
// Streams carrying unsupported filters report an error so callers can
// leave them untouched.
func decodeStream(s *Stream) ([]byte, error) {
	filters, parms := filterChain(s.Dict)
	data := s.Data
	for i, f := range filters {
		var dp Dict
		if i < len(parms) {
			dp = parms[i]
		}
		var err error
		switch f {
		case "FlateDecode", "Fl":
			data, err = flateDecode(data)
		case "ASCIIHexDecode", "AHx":
			data, err = asciiHexDecode(data)
		default:
			return nil, fmt.Errorf("unsupported filter /%s", f)
		}
		if err != nil {
			return nil, err
		}
		if dp != nil {
			data, err = applyPredictor(data, dp)
			if err != nil {
				return nil, err
			}
		}
	}
	return data, nil
}

func filterChain(d Dict) ([]Name, []Dict) {
	var filters []Name
	switch f := d["Filter"].(type) {
	case Name:
		filters = []Name{f}
	case Array:
		for _, v := range f {
			if n, ok := v.(Name); ok {
				filters = append(filters, n)
			}
		}
	}
	var parms []Dict
	switch p := d["DecodeParms"].(type) {
	case Dict:
		parms = []Dict{p}
	case Array:
		for _, v := range p {
			dp, _ := v.(Dict)
			parms = append(parms, dp)
		}
	}
	return filters, parms
}

func flateDecode(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("flate: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("flate: %w", err)
	}
	// Truncated tails are common in the wild; keep what decoded.
	return out, nil
}

func asciiHexDecode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)/2)
	var hi byte
	haveHi := false
	for _, c := range data {
		if c == '>' {
			break
		}
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		case isWhitespace(c):
			continue
		default:
			return nil, fmt.Errorf("asciihex: invalid byte %q", c)
		}
		if haveHi {
			out = append(out, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
	}
	if haveHi {
		out = append(out, hi<<4)
	}
	return out, nil
}

// applyPredictor undoes the PNG row predictors used by cross-reference
// streams (/Predictor 10..15). Predictor 1 and absent parms are
// pass-through; TIFF predictor 2 is not used for the byte-aligned data
// we handle.
func applyPredictor(data []byte, parms Dict) ([]byte, error) {
	pred, ok := Int(parms["Predictor"])
	if !ok || pred <= 1 {
		return data, nil
	}
	if pred < 10 {
		return nil, fmt.Errorf("unsupported predictor %d", pred)
	}
	columns := int64(1)
	if c, ok := Int(parms["Columns"]); ok && c > 0 {
		columns = c
	}
	colors := int64(1)
	if c, ok := Int(parms["Colors"]); ok && c > 0 {
		colors = c
	}
	bpc := int64(8)
	if b, ok := Int(parms["BitsPerComponent"]); ok && b > 0 {
		bpc = b
	}
	bpp := int(colors*bpc+7) / 8
	rowLen := int(columns*colors*bpc+7) / 8

	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	for pos := 0; pos < len(data); pos += 1 + rowLen {
		ft := data[pos]
		end := min(pos+1+rowLen, len(data))
		row := make([]byte, rowLen)
		copy(row, data[pos+1:end])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = row[i-bpp]
				}
				row[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
					upLeft = prev[i-bpp]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("unknown PNG filter %d", ft)
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
