package pdfproc

import (
	"strings"
	"testing"

	"github.com/clindesk/ectdpack/internal/pdfobj"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		target LinkTarget
		prior  LinkType
		want   LinkType
	}{
		{"http", LinkTarget{URI: "http://example.com"}, LinkUnknown, LinkExternal},
		{"https", LinkTarget{URI: "https://fda.gov/guidance"}, LinkUnknown, LinkExternal},
		{"ftp", LinkTarget{URI: "ftp://host/file"}, LinkUnknown, LinkExternal},
		{"mailto", LinkTarget{URI: "mailto:ra@sponsor.com"}, LinkUnknown, LinkExternal},
		{"scheme beats pdf suffix", LinkTarget{URI: "https://host/report.pdf"}, LinkUnknown, LinkExternal},
		{"bare pdf", LinkTarget{URI: "study-report.pdf"}, LinkUnknown, LinkCrossDocument},
		{"pdf with fragment", LinkTarget{URI: "study-report.pdf#section-9"}, LinkUnknown, LinkCrossDocument},
		{"mixed case pdf", LinkTarget{URI: "Final.PDF"}, LinkUnknown, LinkCrossDocument},
		{"remote goto file", LinkTarget{File: "appendix.pdf", HasPage: true}, LinkUnknown, LinkCrossDocument},
		{"page dest", LinkTarget{HasPage: true}, LinkUnknown, LinkInternal},
		{"named dest", LinkTarget{NamedDest: "section4"}, LinkUnknown, LinkInternal},
		{"nothing", LinkTarget{}, LinkUnknown, LinkUnknown},
		{"prior preserved", LinkTarget{URI: "weird:thing"}, LinkExternal, LinkExternal},
	}
	for _, c := range cases {
		if got := Classify(c.target, c.prior); got != c.want {
			t.Errorf("%s: Classify(%+v) = %q, want %q", c.name, c.target, got, c.want)
		}
	}
}

func TestPathMap_FilenameFallbackLastWriterWins(t *testing.T) {
	m := PathMap{}
	m.Add("uploads/a/report.pdf", "m5/study-001/16-2-1/report.pdf")
	m.Add("uploads/b/report.pdf", "m5/study-001/16-2-2/report.pdf")

	if got, _ := m.Lookup("uploads/a/report.pdf"); got != "m5/study-001/16-2-1/report.pdf" {
		t.Errorf("full-path lookup = %q", got)
	}
	if got, _ := m.Lookup("report.pdf"); got != "m5/study-001/16-2-2/report.pdf" {
		t.Errorf("bare filename lookup = %q, want the later registration", got)
	}
	if _, ok := m.Lookup("absent.pdf"); ok {
		t.Error("lookup of unknown target should fail")
	}
}

// addURILink attaches a /URI link annotation to the given page.
func addURILink(t *testing.T, doc *pdfobj.Document, pageIdx int, uri string) pdfobj.Ref {
	t.Helper()
	return addLink(t, doc, pageIdx, pdfobj.Dict{
		"S":   pdfobj.Name("URI"),
		"URI": pdfobj.String(uri),
	})
}

func addLink(t *testing.T, doc *pdfobj.Document, pageIdx int, action pdfobj.Dict) pdfobj.Ref {
	t.Helper()
	pages := doc.Pages()
	if pageIdx >= len(pages) {
		t.Fatalf("page %d out of range", pageIdx)
	}
	annot := pdfobj.Dict{
		"Type":    pdfobj.Name("Annot"),
		"Subtype": pdfobj.Name("Link"),
		"Rect":    pdfobj.Array{int64(72), int64(700), int64(300), int64(714)},
	}
	if action != nil {
		annot["A"] = action
	}
	ref := doc.Add(annot)
	page, _ := doc.ResolveDict(pages[pageIdx])
	arr, _ := page["Annots"].(pdfobj.Array)
	page["Annots"] = append(arr, ref)
	return ref
}

func TestProcessLinks_RewritesCrossDocument(t *testing.T) {
	doc := newTestDoc(t, 1)
	addURILink(t, doc, 0, "study-report.pdf#appendix")

	paths := PathMap{}
	paths.Add("uploads/raw/study-report.pdf", "m5/study-001/16-2-2/study-report.pdf")

	res := ProcessLinks(doc, LinkOptions{
		SourceFile: "m5/study-001/16-2-1/protocol.pdf",
		BasePath:   "m5/study-001/16-2-1",
		Paths:      paths,
	})
	if res.Total != 1 || res.Updated != 1 {
		t.Fatalf("result = %+v", res)
	}
	link := res.Links[0]
	if link.Type != LinkCrossDocument {
		t.Errorf("type = %q", link.Type)
	}
	if link.Rewritten != "../16-2-2/study-report.pdf#appendix" {
		t.Errorf("rewritten = %q", link.Rewritten)
	}

	// The annotation itself must carry the new target.
	page, _ := doc.ResolveDict(doc.Pages()[0])
	annots := doc.Resolve(page["Annots"]).(pdfobj.Array)
	annot, _ := doc.ResolveDict(annots[0])
	action, _ := doc.ResolveDict(annot["A"])
	uri, _ := doc.Resolve(action["URI"]).(pdfobj.String)
	if got := pdfobj.DecodeTextString(uri); got != "../16-2-2/study-report.pdf#appendix" {
		t.Errorf("annotation URI = %q", got)
	}
}

func TestProcessLinks_BrokenCrossDocumentKept(t *testing.T) {
	doc := newTestDoc(t, 1)
	addURILink(t, doc, 0, "not-in-package.pdf")

	res := ProcessLinks(doc, LinkOptions{BasePath: "m5/study-001/16-2-1", Paths: PathMap{}})
	if res.Total != 1 || res.Kept != 1 || res.Updated != 0 {
		t.Fatalf("result = %+v", res)
	}
	link := res.Links[0]
	if !link.Broken || link.Error == "" {
		t.Errorf("expected a broken link with an error, got %+v", link)
	}
}

func TestProcessLinks_RemovalFlags(t *testing.T) {
	build := func() *pdfobj.Document {
		doc := newTestDoc(t, 1)
		addURILink(t, doc, 0, "https://clinicaltrials.gov/study")
		addURILink(t, doc, 0, "mailto:regulatory@sponsor.com")
		return doc
	}

	// Flag-only run keeps both.
	res := ProcessLinks(build(), LinkOptions{})
	if res.Total != 2 || res.Kept != 2 || res.Removed != 0 {
		t.Fatalf("flag-only result = %+v", res)
	}

	// RemoveExternal drops the web link but not the mailto.
	doc := build()
	res = ProcessLinks(doc, LinkOptions{RemoveExternal: true})
	if res.Removed != 1 || res.Kept != 1 {
		t.Fatalf("RemoveExternal result = %+v", res)
	}
	page, _ := doc.ResolveDict(doc.Pages()[0])
	annots, _ := doc.Resolve(page["Annots"]).(pdfobj.Array)
	if len(annots) != 1 {
		t.Errorf("page has %d annotations, want 1", len(annots))
	}

	// Both flags drop both; the /Annots key disappears entirely.
	doc = build()
	res = ProcessLinks(doc, LinkOptions{RemoveExternal: true, RemoveMailto: true})
	if res.Removed != 2 || res.Kept != 0 {
		t.Fatalf("full removal result = %+v", res)
	}
	page, _ = doc.ResolveDict(doc.Pages()[0])
	if _, has := page["Annots"]; has {
		t.Error("empty /Annots array should be removed")
	}
}

func TestProcessLinks_CountInvariant(t *testing.T) {
	doc := newTestDoc(t, 2)
	addURILink(t, doc, 0, "https://example.org")
	addURILink(t, doc, 0, "mailto:x@y.z")
	addURILink(t, doc, 0, "linked.pdf")
	addURILink(t, doc, 1, "missing.pdf")
	addLink(t, doc, 1, pdfobj.Dict{"S": pdfobj.Name("GoTo"), "D": pdfobj.String("sec2")})
	addLink(t, doc, 1, nil) // no action, no dest

	paths := PathMap{}
	paths.Add("linked.pdf", "m5/study-001/16-1/linked.pdf")

	res := ProcessLinks(doc, LinkOptions{
		BasePath:       "m5/study-001/16-2-1",
		Paths:          paths,
		RemoveExternal: true,
	})
	if res.Total != 6 {
		t.Fatalf("Total = %d, want 6", res.Total)
	}
	if got := res.Updated + res.Removed + res.Kept; got != res.Total {
		t.Errorf("updated(%d)+removed(%d)+kept(%d) = %d, want %d",
			res.Updated, res.Removed, res.Kept, got, res.Total)
	}
	if res.Removed != 1 {
		t.Errorf("Removed = %d, want 1 (mailto kept without RemoveMailto)", res.Removed)
	}
	if res.Updated != 1 {
		t.Errorf("Updated = %d, want 1", res.Updated)
	}
}

func TestProcessLinks_InternalAndNonLinkUntouched(t *testing.T) {
	doc := newTestDoc(t, 2)
	addLink(t, doc, 0, pdfobj.Dict{"S": pdfobj.Name("GoTo"), "D": pdfobj.String("chapter2")})

	// A non-link annotation must not count toward totals.
	pages := doc.Pages()
	page, _ := doc.ResolveDict(pages[0])
	widget := doc.Add(pdfobj.Dict{"Type": pdfobj.Name("Annot"), "Subtype": pdfobj.Name("Widget")})
	page["Annots"] = append(page["Annots"].(pdfobj.Array), widget)

	res := ProcessLinks(doc, LinkOptions{RemoveExternal: true, RemoveMailto: true})
	if res.Total != 1 {
		t.Fatalf("Total = %d, want 1", res.Total)
	}
	if res.Links[0].Type != LinkInternal {
		t.Errorf("type = %q, want internal", res.Links[0].Type)
	}
	annots, _ := doc.Resolve(page["Annots"]).(pdfobj.Array)
	if len(annots) != 2 {
		t.Errorf("annotations shrank to %d; widget must survive", len(annots))
	}
}

func TestProcess_DisableLinksAndEncryption(t *testing.T) {
	doc := newTestDoc(t, 1)
	addURILink(t, doc, 0, "https://example.org")

	res, err := Process(doc, Options{
		Bookmarks:    []BookmarkSpec{{Title: "Front", PageNumber: 1}},
		Links:        &LinkOptions{RemoveExternal: true},
		DisableLinks: true,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Bookmarks == nil || !res.Bookmarks.Success {
		t.Errorf("bookmark pass missing: %+v", res.Bookmarks)
	}
	if res.Links != nil {
		t.Error("link pass ran despite DisableLinks")
	}

	// Encrypted documents are rejected outright.
	enc := newTestDoc(t, 1)
	enc.Trailer()["Encrypt"] = pdfobj.Ref{Num: 99}
	data, err := enc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	loaded, err := pdfobj.Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Process(loaded, Options{RemoveBookmarks: true}); err == nil ||
		!strings.Contains(err.Error(), "encrypted") {
		t.Errorf("Process on encrypted doc: err = %v, want encryption refusal", err)
	}
}
