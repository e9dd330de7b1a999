package pdfproc

import (
	"fmt"
	"path"
	"strings"

	"github.com/clindesk/ectdpack/internal/ectd"
	"github.com/clindesk/ectdpack/internal/pdfobj"
)

// LinkType classifies where a link annotation points.
type LinkType string

const (
	LinkInternal      LinkType = "internal"
	LinkCrossDocument LinkType = "cross-document"
	LinkExternal      LinkType = "external"
	LinkUnknown       LinkType = "unknown"
)

// LinkTarget is the destination information extracted from one link
// annotation.
type LinkTarget struct {
	URI       string // /URI action target
	File      string // /GoToR remote file
	HasPage   bool   // explicit page destination
	NamedDest string // named destination
}

// Classify maps a link target to its type. The first matching rule
// wins; a target matching nothing keeps its prior classification.
func Classify(t LinkTarget, prior LinkType) LinkType {
	uri := strings.ToLower(strings.TrimSpace(t.URI))
	switch {
	case strings.HasPrefix(uri, "http://"),
		strings.HasPrefix(uri, "https://"),
		strings.HasPrefix(uri, "ftp://"):
		return LinkExternal
	case strings.HasPrefix(uri, "mailto:"):
		return LinkExternal
	}
	if pointsAtPDF(t.URI) || pointsAtPDF(t.File) {
		return LinkCrossDocument
	}
	if t.HasPage || t.NamedDest != "" {
		return LinkInternal
	}
	if prior != "" {
		return prior
	}
	return LinkUnknown
}

func pointsAtPDF(target string) bool {
	base, _ := splitFragment(target)
	return strings.HasSuffix(strings.ToLower(base), ".pdf")
}

func splitFragment(target string) (string, string) {
	if i := strings.IndexByte(target, '#'); i >= 0 {
		return target[:i], target[i:]
	}
	return target, ""
}

func isMailto(t LinkTarget) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(t.URI)), "mailto:")
}

// PathMap resolves document references found inside PDFs to their
// packaged locations. Each entry is registered under the full source
// path and the bare filename; on filename collisions the last
// registration wins.
type PathMap map[string]string

// Add registers sourcePath as living at target inside the package.
func (m PathMap) Add(sourcePath, target string) {
	m[sourcePath] = target
	m[path.Base(sourcePath)] = target
}

// Lookup finds the packaged location for a raw link target, trying the
// exact string first and the bare filename second.
func (m PathMap) Lookup(target string) (string, bool) {
	if to, ok := m[target]; ok {
		return to, true
	}
	if to, ok := m[path.Base(target)]; ok {
		return to, true
	}
	return "", false
}

// LinkOptions controls ProcessLinks.
type LinkOptions struct {
	// SourceFile labels report rows; usually the packaged path of the
	// document being processed.
	SourceFile string
	// BasePath is the directory the document lives in inside the
	// package; rewritten targets are made relative to it.
	BasePath string
	// Paths resolves cross-document targets. Targets not found here
	// are reported as broken.
	Paths PathMap

	RemoveExternal bool
	RemoveMailto   bool
}

// ExtractedLink is one link annotation after processing.
type ExtractedLink struct {
	SourceFile string   `json:"sourceFile"`
	Page       int      `json:"page"`
	Type       LinkType `json:"linkType"`
	Target     string   `json:"target"`
	Rewritten  string   `json:"rewrittenTarget,omitempty"`
	Removed    bool     `json:"removed,omitempty"`
	Broken     bool     `json:"broken,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// LinkResult aggregates one document's link pass.
// Updated+Removed+Kept always equals Total.
type LinkResult struct {
	Total    int             `json:"totalLinks"`
	Updated  int             `json:"updatedCount"`
	Removed  int             `json:"removedCount"`
	Kept     int             `json:"keptCount"`
	Links    []ExtractedLink `json:"links,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ProcessLinks walks every page's link annotations, classifies each
// target, rewrites cross-document targets through opts.Paths relative
// to opts.BasePath, and removes external or mailto links when asked.
func ProcessLinks(doc *pdfobj.Document, opts LinkOptions) LinkResult {
	res := LinkResult{}

	for pageIdx, pageRef := range doc.Pages() {
		page, ok := doc.ResolveDict(pageRef)
		if !ok {
			continue
		}
		annots, ok := doc.Resolve(page["Annots"]).(pdfobj.Array)
		if !ok || len(annots) == 0 {
			continue
		}

		kept := make(pdfobj.Array, 0, len(annots))
		for _, raw := range annots {
			annot, ok := doc.ResolveDict(raw)
			if !ok {
				kept = append(kept, raw)
				continue
			}
			if sub, _ := annot["Subtype"].(pdfobj.Name); sub != "Link" {
				kept = append(kept, raw)
				continue
			}

			res.Total++
			target := extractTarget(doc, annot)
			link := ExtractedLink{
				SourceFile: opts.SourceFile,
				Page:       pageIdx + 1,
				Type:       Classify(target, LinkUnknown),
				Target:     describeTarget(target),
			}

			switch link.Type {
			case LinkExternal:
				mailto := isMailto(target)
				if (mailto && opts.RemoveMailto) || (!mailto && opts.RemoveExternal) {
					link.Removed = true
					res.Removed++
					if ref, isRef := raw.(pdfobj.Ref); isRef {
						doc.Delete(ref)
					}
				} else {
					kept = append(kept, raw)
					res.Kept++
				}
			case LinkCrossDocument:
				rewritten, errMsg := rewriteCrossDocument(doc, annot, target, opts)
				if errMsg != "" {
					link.Broken = true
					link.Error = errMsg
					res.Kept++
				} else {
					link.Rewritten = rewritten
					res.Updated++
				}
				kept = append(kept, raw)
			default:
				kept = append(kept, raw)
				res.Kept++
			}
			res.Links = append(res.Links, link)
		}

		setAnnots(doc, page, kept)
	}
	return res
}

// ScanLinks classifies every link annotation without touching the
// document. Validation uses it to inspect files that were already
// processed.
func ScanLinks(doc *pdfobj.Document, sourceFile string) []ExtractedLink {
	var links []ExtractedLink
	for pageIdx, pageRef := range doc.Pages() {
		page, ok := doc.ResolveDict(pageRef)
		if !ok {
			continue
		}
		annots, ok := doc.Resolve(page["Annots"]).(pdfobj.Array)
		if !ok {
			continue
		}
		for _, raw := range annots {
			annot, ok := doc.ResolveDict(raw)
			if !ok {
				continue
			}
			if sub, _ := annot["Subtype"].(pdfobj.Name); sub != "Link" {
				continue
			}
			target := extractTarget(doc, annot)
			links = append(links, ExtractedLink{
				SourceFile: sourceFile,
				Page:       pageIdx + 1,
				Type:       Classify(target, LinkUnknown),
				Target:     describeTarget(target),
			})
		}
	}
	return links
}

// extractTarget pulls destination fields from a link annotation,
// looking at the /A action first and the direct /Dest second.
func extractTarget(doc *pdfobj.Document, annot pdfobj.Dict) LinkTarget {
	var t LinkTarget
	if action, ok := doc.ResolveDict(annot["A"]); ok {
		switch s, _ := action["S"].(pdfobj.Name); s {
		case "URI":
			if uri, ok := doc.Resolve(action["URI"]).(pdfobj.String); ok {
				t.URI = pdfobj.DecodeTextString(uri)
			}
		case "GoTo":
			fillDest(doc, action["D"], &t)
		case "GoToR":
			t.File = fileSpecName(doc, action["F"])
			fillDest(doc, action["D"], &t)
		}
		return t
	}
	fillDest(doc, annot["Dest"], &t)
	return t
}

func fillDest(doc *pdfobj.Document, dest any, t *LinkTarget) {
	switch dv := doc.Resolve(dest).(type) {
	case pdfobj.Name:
		t.NamedDest = string(dv)
	case pdfobj.String:
		t.NamedDest = pdfobj.DecodeTextString(dv)
	case pdfobj.Array:
		if len(dv) > 0 {
			t.HasPage = true
		}
	}
}

// fileSpecName extracts the file name from a /GoToR file specifier,
// which is either a plain string or a file-spec dictionary.
func fileSpecName(doc *pdfobj.Document, spec any) string {
	switch fv := doc.Resolve(spec).(type) {
	case pdfobj.String:
		return pdfobj.DecodeTextString(fv)
	case pdfobj.Dict:
		if uf, ok := doc.Resolve(fv["UF"]).(pdfobj.String); ok {
			return pdfobj.DecodeTextString(uf)
		}
		if f, ok := doc.Resolve(fv["F"]).(pdfobj.String); ok {
			return pdfobj.DecodeTextString(f)
		}
	}
	return ""
}

func describeTarget(t LinkTarget) string {
	switch {
	case t.URI != "":
		return t.URI
	case t.File != "":
		return t.File
	case t.NamedDest != "":
		return t.NamedDest
	case t.HasPage:
		return "(page destination)"
	}
	return ""
}

// rewriteCrossDocument points the annotation at the packaged location
// of its target. Returns the rewritten path, or an error string when
// the target is not part of the package.
func rewriteCrossDocument(doc *pdfobj.Document, annot pdfobj.Dict, t LinkTarget, opts LinkOptions) (string, string) {
	raw := t.URI
	if raw == "" {
		raw = t.File
	}
	base, fragment := splitFragment(raw)

	packaged, ok := opts.Paths.Lookup(base)
	if !ok {
		return "", fmt.Sprintf("target %q not found in package", base)
	}
	rel := ectd.RelativePath(opts.BasePath, packaged)

	if action, ok := doc.ResolveDict(annot["A"]); ok {
		switch s, _ := action["S"].(pdfobj.Name); s {
		case "URI":
			action["URI"] = pdfobj.TextString(rel + fragment)
		case "GoToR":
			action["F"] = pdfobj.TextString(rel)
		}
	}
	return rel + fragment, ""
}

// setAnnots writes the filtered annotation array back, keeping the
// array indirect if it was indirect before.
func setAnnots(doc *pdfobj.Document, page pdfobj.Dict, annots pdfobj.Array) {
	if len(annots) == 0 {
		if ref, ok := page["Annots"].(pdfobj.Ref); ok {
			doc.Delete(ref)
		}
		delete(page, "Annots")
		return
	}
	if ref, ok := page["Annots"].(pdfobj.Ref); ok {
		doc.Set(ref, annots)
		return
	}
	page["Annots"] = annots
}
