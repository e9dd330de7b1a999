package validate

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/clindesk/ectdpack/internal/pdfobj"
	"github.com/clindesk/ectdpack/internal/pdfproc"
	pdflib "github.com/ledongthuc/pdf"
)

// fileChecks is the per-file check registry. Rules refer to these by
// name; LoadRules rejects any rule naming a check that is not here.
var fileChecks = map[string]FileCheck{
	"file-size":      checkFileSize,
	"pdf-parseable":  checkPDFParseable,
	"pdf-version":    checkPDFVersion,
	"not-encrypted":  checkNotEncrypted,
	"fonts-embedded": checkFontsEmbedded,
	"pdfa-marker":    checkPDFAMarker,
	"bookmarks":      checkBookmarks,
	"ectd-filename":  checkFileName,
	"page-size":      checkPageSize,
	"external-links": checkExternalLinks,
	"active-content": checkActiveContent,
}

func checkFileSize(ctx *FileContext, p Params) CheckResult {
	max := p.Int64("max-bytes", 0)
	if max <= 0 || int64(len(ctx.Data)) <= max {
		return pass()
	}
	res := fail(fmt.Sprintf("file is %d bytes, limit is %d", len(ctx.Data), max))
	res.Details = map[string]any{"size": int64(len(ctx.Data)), "limit": max}
	return res
}

// checkPDFParseable verifies the header and runs the file through both
// the structural parser and an independent reference parser. Encrypted
// files skip the reference probe; the encryption check owns those.
func checkPDFParseable(ctx *FileContext, _ Params) CheckResult {
	if !bytes.HasPrefix(ctx.Data, []byte("%PDF-")) {
		return fail("file does not start with a %PDF header")
	}
	if ctx.Doc == nil {
		res := fail("cannot parse PDF structure")
		if ctx.ParseErr != nil {
			res.Message = fmt.Sprintf("cannot parse PDF structure: %v", ctx.ParseErr)
		}
		return res
	}
	if ctx.Doc.Encrypted() {
		return pass()
	}
	if err := probeReferenceParser(ctx.Data); err != nil {
		return fail(fmt.Sprintf("reference parser rejected file: %v", err))
	}
	return pass()
}

// probeReferenceParser opens the file with the text-extraction library
// and asks for a page count. The library panics on some malformed
// inputs, so the probe absorbs panics into errors.
func probeReferenceParser(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	rd, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	if rd.NumPage() < 1 {
		return errors.New("document has no pages")
	}
	return nil
}

func checkPDFVersion(ctx *FileContext, p Params) CheckResult {
	if ctx.Doc == nil {
		return pass()
	}
	allowed := p.Strings("versions")
	if len(allowed) == 0 {
		return pass()
	}
	for _, v := range allowed {
		if ctx.Doc.Version == v {
			return pass()
		}
	}
	res := fail(fmt.Sprintf("PDF version %s is not in the allowed set %s",
		ctx.Doc.Version, strings.Join(allowed, ", ")))
	res.Details = map[string]any{"version": ctx.Doc.Version, "allowed": allowed}
	return res
}

func checkNotEncrypted(ctx *FileContext, _ Params) CheckResult {
	if ctx.Doc != nil && ctx.Doc.Encrypted() {
		return fail("document is encrypted")
	}
	return pass()
}

// standardFonts are the base-14 fonts every conforming reader ships.
// They are exempt from the embedding requirement here; everything else
// must carry a font file.
var standardFonts = map[string]bool{
	"Helvetica": true, "Helvetica-Bold": true, "Helvetica-Oblique": true, "Helvetica-BoldOblique": true,
	"Courier": true, "Courier-Bold": true, "Courier-Oblique": true, "Courier-BoldOblique": true,
	"Times-Roman": true, "Times-Bold": true, "Times-Italic": true, "Times-BoldItalic": true,
	"Symbol": true, "ZapfDingbats": true,
}

var subsetPrefixRe = regexp.MustCompile(`^[A-Z]{6}\+`)

func checkFontsEmbedded(ctx *FileContext, _ Params) CheckResult {
	doc := ctx.Doc
	if doc == nil {
		return pass()
	}
	missing := map[string]bool{}
	seenRefs := map[pdfobj.Ref]bool{}
	for _, pageRef := range doc.Pages() {
		page, ok := doc.ResolveDict(pageRef)
		if !ok {
			continue
		}
		res, ok := inheritedDict(doc, page, "Resources")
		if !ok {
			continue
		}
		fonts, ok := doc.ResolveDict(res["Font"])
		if !ok {
			continue
		}
		for _, v := range fonts {
			if ref, isRef := v.(pdfobj.Ref); isRef {
				if seenRefs[ref] {
					continue
				}
				seenRefs[ref] = true
			}
			font, ok := doc.ResolveDict(v)
			if !ok {
				continue
			}
			if name, embedded := fontEmbedded(doc, font); !embedded {
				missing[name] = true
			}
		}
	}
	if len(missing) == 0 {
		return pass()
	}
	names := make([]string, 0, len(missing))
	for n := range missing {
		names = append(names, n)
	}
	sort.Strings(names)
	res := fail(fmt.Sprintf("%d font(s) not embedded: %s", len(names), strings.Join(names, ", ")))
	res.Details = map[string]any{"fonts": names}
	return res
}

func fontEmbedded(doc *pdfobj.Document, font pdfobj.Dict) (string, bool) {
	sub, _ := font["Subtype"].(pdfobj.Name)
	if sub == "Type3" {
		// Type3 glyph procedures live in the file itself.
		return "", true
	}
	if sub == "Type0" {
		if kids, ok := doc.Resolve(font["DescendantFonts"]).(pdfobj.Array); ok && len(kids) > 0 {
			if dd, ok := doc.ResolveDict(kids[0]); ok {
				font = dd
			}
		}
	}
	name := "(unnamed)"
	if base, ok := font["BaseFont"].(pdfobj.Name); ok && base != "" {
		name = subsetPrefixRe.ReplaceAllString(string(base), "")
	}
	if standardFonts[name] {
		return name, true
	}
	if fd, ok := doc.ResolveDict(font["FontDescriptor"]); ok {
		if fd["FontFile"] != nil || fd["FontFile2"] != nil || fd["FontFile3"] != nil {
			return name, true
		}
	}
	return name, false
}

func checkPDFAMarker(ctx *FileContext, _ Params) CheckResult {
	doc := ctx.Doc
	if doc == nil {
		return pass()
	}
	cat, err := doc.Catalog()
	if err != nil {
		return pass()
	}
	if intents, ok := doc.Resolve(cat["OutputIntents"]).(pdfobj.Array); ok {
		for _, it := range intents {
			d, ok := doc.ResolveDict(it)
			if !ok {
				continue
			}
			if s, _ := d["S"].(pdfobj.Name); s == "GTS_PDFA1" {
				return pass()
			}
		}
	}
	if md, ok := doc.Resolve(cat["Metadata"]).(*pdfobj.Stream); ok {
		if bytes.Contains(md.Data, []byte("pdfaid:part")) {
			return pass()
		}
	}
	return fail("no PDF/A conformance marker found")
}

func checkBookmarks(ctx *FileContext, p Params) CheckResult {
	doc := ctx.Doc
	if doc == nil {
		return pass()
	}
	cat, err := doc.Catalog()
	if err != nil {
		return pass()
	}
	root, ok := doc.ResolveDict(cat["Outlines"])
	if !ok || root["First"] == nil {
		return fail("document has no bookmarks")
	}
	if max := p.Int("max-depth", 0); max > 0 {
		depth := outlineDepth(doc, root, map[pdfobj.Ref]bool{})
		if depth > max {
			res := fail(fmt.Sprintf("bookmark tree is %d levels deep, limit is %d", depth, max))
			res.Details = map[string]any{"depth": depth, "limit": max}
			return res
		}
	}
	return pass()
}

func outlineDepth(doc *pdfobj.Document, node pdfobj.Dict, seen map[pdfobj.Ref]bool) int {
	depth := 0
	for cur := node["First"]; cur != nil; {
		ref, isRef := cur.(pdfobj.Ref)
		if isRef {
			if seen[ref] || len(seen) > 4096 {
				break
			}
			seen[ref] = true
		}
		item, ok := doc.ResolveDict(cur)
		if !ok {
			break
		}
		d := 1 + outlineDepth(doc, item, seen)
		if d > depth {
			depth = d
		}
		cur = item["Next"]
	}
	return depth
}

func checkFileName(ctx *FileContext, p Params) CheckResult {
	name := ctx.File.FileName
	var problems []string

	exts := p.Strings("extensions")
	if len(exts) == 0 {
		exts = []string{".pdf"}
	}
	ext := strings.ToLower(path.Ext(name))
	extOK := false
	for _, e := range exts {
		if ext == e {
			extOK = true
			break
		}
	}
	if !extOK {
		problems = append(problems, fmt.Sprintf("extension %q is not allowed", path.Ext(name)))
	}

	if max := p.Int("max-length", 64); max > 0 && len(name) > max {
		problems = append(problems, fmt.Sprintf("name is %d characters, limit is %d", len(name), max))
	}

	base := strings.TrimSuffix(name, path.Ext(name))
	for _, r := range base {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			problems = append(problems, fmt.Sprintf("invalid character %q (lowercase letters, digits and hyphens only)", r))
			break
		}
	}
	if strings.HasPrefix(base, "-") || strings.HasSuffix(base, "-") {
		problems = append(problems, "name starts or ends with a hyphen")
	}
	if base == "" {
		problems = append(problems, "name has no base portion")
	}

	if len(problems) == 0 {
		return pass()
	}
	return fail(fmt.Sprintf("file name %q: %s", name, strings.Join(problems, "; ")))
}

// Page dimensions in points. A4 comes out fractional because the
// standard is metric.
var allowedPageSizes = [][2]float64{
	{612, 792},       // US Letter
	{595.28, 841.89}, // A4
}

func checkPageSize(ctx *FileContext, p Params) CheckResult {
	doc := ctx.Doc
	if doc == nil {
		return pass()
	}
	tol := p.Float("tolerance-pts", 18)
	var bad []int
	var firstDims [2]float64
	for i, pageRef := range doc.Pages() {
		page, ok := doc.ResolveDict(pageRef)
		if !ok {
			continue
		}
		box, ok := inheritedBox(doc, page)
		if !ok {
			continue
		}
		w, h := box[2]-box[0], box[3]-box[1]
		if !sizeAllowed(w, h, tol) {
			if len(bad) == 0 {
				firstDims = [2]float64{w, h}
			}
			bad = append(bad, i+1)
		}
	}
	if len(bad) == 0 {
		return pass()
	}
	res := fail(fmt.Sprintf("%d page(s) are neither Letter nor A4 (page %d is %.0fx%.0f pt)",
		len(bad), bad[0], firstDims[0], firstDims[1]))
	if len(bad) > 10 {
		bad = bad[:10]
	}
	res.Details = map[string]any{"pages": bad}
	return res
}

func sizeAllowed(w, h, tol float64) bool {
	for _, s := range allowedPageSizes {
		if (math.Abs(w-s[0]) <= tol && math.Abs(h-s[1]) <= tol) ||
			(math.Abs(w-s[1]) <= tol && math.Abs(h-s[0]) <= tol) {
			return true
		}
	}
	return false
}

// inheritedBox finds the page's MediaBox, walking up the page tree for
// inherited values.
func inheritedBox(doc *pdfobj.Document, page pdfobj.Dict) ([4]float64, bool) {
	d := page
	for i := 0; i < 32; i++ {
		if arr, ok := doc.Resolve(d["MediaBox"]).(pdfobj.Array); ok && len(arr) == 4 {
			var box [4]float64
			for j, v := range arr {
				f, ok := pdfobj.Float(doc.Resolve(v))
				if !ok {
					return box, false
				}
				box[j] = f
			}
			return box, true
		}
		parent, ok := doc.ResolveDict(d["Parent"])
		if !ok {
			break
		}
		d = parent
	}
	return [4]float64{}, false
}

// inheritedDict resolves a page-tree attribute that may live on an
// ancestor node.
func inheritedDict(doc *pdfobj.Document, page pdfobj.Dict, key pdfobj.Name) (pdfobj.Dict, bool) {
	d := page
	for i := 0; i < 32; i++ {
		if v, ok := doc.ResolveDict(d[key]); ok {
			return v, true
		}
		parent, ok := doc.ResolveDict(d["Parent"])
		if !ok {
			break
		}
		d = parent
	}
	return nil, false
}

func checkExternalLinks(ctx *FileContext, _ Params) CheckResult {
	var targets []string
	seen := map[string]bool{}
	n := 0
	for _, l := range ctx.Links {
		if l.Type != pdfproc.LinkExternal {
			continue
		}
		n++
		if !seen[l.Target] && len(targets) < 10 {
			seen[l.Target] = true
			targets = append(targets, l.Target)
		}
	}
	if n == 0 {
		return pass()
	}
	sort.Strings(targets)
	res := fail(fmt.Sprintf("%d external hyperlink(s) found", n))
	res.Details = map[string]any{"targets": targets}
	return res
}

func checkActiveContent(ctx *FileContext, _ Params) CheckResult {
	doc := ctx.Doc
	if doc == nil {
		return pass()
	}
	cat, err := doc.Catalog()
	if err != nil {
		return pass()
	}
	var findings []string
	if cat["OpenAction"] != nil {
		findings = append(findings, "document has an OpenAction")
	}
	if cat["AA"] != nil {
		findings = append(findings, "document has additional actions")
	}
	if names, ok := doc.ResolveDict(cat["Names"]); ok && names["JavaScript"] != nil {
		findings = append(findings, "document defines JavaScript names")
	}
	jsActions := 0
	for _, ref := range doc.Refs() {
		d, ok := doc.Get(ref).(pdfobj.Dict)
		if !ok {
			continue
		}
		if s, _ := d["S"].(pdfobj.Name); s == "JavaScript" {
			jsActions++
		}
	}
	if jsActions > 0 {
		findings = append(findings, fmt.Sprintf("%d JavaScript action(s)", jsActions))
	}
	if len(findings) == 0 {
		return pass()
	}
	return fail(strings.Join(findings, "; "))
}
