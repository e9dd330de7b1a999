// Package coverpage renders the submission's front-matter PDF: a table
// of contents over every packaged file, with one link annotation per
// row and a bookmark tree mirroring the row nesting. The page lives at
// a fixed location inside the bundle, so every link target is computed
// relative to that directory.
package coverpage

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/clindesk/ectdpack/internal/ectd"
	"github.com/clindesk/ectdpack/internal/manifest"
	"github.com/clindesk/ectdpack/internal/pdfobj"
	"github.com/clindesk/ectdpack/internal/pdfproc"
)

// Page geometry, US Letter with one-inch margins.
const (
	pageWidth  = 612.0
	pageHeight = 792.0
	marginLeft = 72.0
	marginTop  = 72.0
	marginBot  = 72.0

	rowHeight   = 16.0
	indentStep  = 18.0
	bodySize    = 10.0
	headerStart = pageHeight - marginTop
)

// Entry is one table-of-contents row.
type Entry struct {
	Title    string
	NodeCode string
	Level    int
	Target   string
}

// Result is the rendered cover page.
type Result struct {
	PDF        []byte
	EntryCount int
	PageCount  int
	Warnings   []string
}

// pageDraft accumulates one page's content stream and annotations
// before the PDF objects exist.
type pageDraft struct {
	content bytes.Buffer
	annots  []pdfobj.Dict
}

// Generate builds the cover page for a manifest. An empty manifest
// still renders a valid, link-free page.
func Generate(m *manifest.PackageManifest, generatedAt time.Time) (Result, error) {
	entries := buildEntries(m)
	res := Result{EntryCount: len(entries)}

	coverDir := strings.TrimSuffix(ectd.CoverPagePath, "/cover.pdf")
	maxWidth := pageWidth - 2*marginLeft

	drafts := []*pageDraft{{}}
	cur := drafts[0]
	y := headerStart

	line := func(font string, size float64, x float64, text string) {
		fmt.Fprintf(&cur.content, "BT /%s %g Tf %.1f %.1f Td (%s) Tj ET\n",
			font, size, x, y, escapeText(text))
	}

	// Header block on the first page only.
	line("F2", 16, marginLeft, m.StudyNumber)
	y -= 22
	if m.StudyTitle != "" {
		line("F1", 11, marginLeft, truncateToWidth(m.StudyTitle, 11, maxWidth))
		y -= 18
	}
	line("F2", 13, marginLeft, "Table of Contents")
	y -= 16
	cur.content.WriteString("0.45 g\n")
	line("F1", 9, marginLeft, "Generated "+generatedAt.UTC().Format("2006-01-02 15:04 MST"))
	cur.content.WriteString("0 g\n")
	y -= 26

	if len(entries) == 0 {
		cur.content.WriteString("0.45 g\n")
		line("F1", bodySize, marginLeft, "No documents in this package.")
		cur.content.WriteString("0 g\n")
	}

	// entryPage records which cover page each row landed on, for the
	// bookmark mirror.
	entryPage := make([]int, len(entries))
	for i, e := range entries {
		if y < marginBot+rowHeight {
			cur = &pageDraft{}
			drafts = append(drafts, cur)
			y = pageHeight - marginTop
		}
		x := marginLeft + indentStep*float64(e.Level)
		text := e.NodeCode + "  " + e.Title
		text = truncateToWidth(text, bodySize, maxWidth-indentStep*float64(e.Level))
		line("F1", bodySize, x, text)

		rel := ectd.RelativePath(coverDir, e.Target)
		cur.annots = append(cur.annots, pdfobj.Dict{
			"Type":    pdfobj.Name("Annot"),
			"Subtype": pdfobj.Name("Link"),
			"Rect": pdfobj.Array{
				x, y - 3, x + textWidth(text, bodySize), y + bodySize + 2,
			},
			"Border": pdfobj.Array{int64(0), int64(0), int64(0)},
			"A": pdfobj.Dict{
				"S":   pdfobj.Name("URI"),
				"URI": pdfobj.TextString(rel),
			},
		})
		entryPage[i] = len(drafts)
		y -= rowHeight
	}

	doc := pdfobj.NewDocument()
	resources := pdfobj.Dict{"Font": pdfobj.Dict{
		"F1": pdfobj.StandardFont("Helvetica"),
		"F2": pdfobj.StandardFont("Helvetica-Bold"),
	}}
	for _, draft := range drafts {
		pageRef, err := doc.AppendPage(pageWidth, pageHeight, draft.content.Bytes(), resources)
		if err != nil {
			return res, fmt.Errorf("cover page layout: %w", err)
		}
		if len(draft.annots) == 0 {
			continue
		}
		page, _ := doc.ResolveDict(pageRef)
		arr := make(pdfobj.Array, 0, len(draft.annots))
		for _, a := range draft.annots {
			arr = append(arr, doc.Add(a))
		}
		page["Annots"] = arr
	}
	res.PageCount = len(drafts)

	if len(entries) > 0 {
		specs := bookmarkMirror(entries, entryPage)
		br := pdfproc.InjectBookmarks(doc, specs, pdfproc.BookmarkOptions{})
		res.Warnings = append(res.Warnings, br.Warnings...)
		if !br.Success && br.Error != "" {
			res.Warnings = append(res.Warnings, "cover bookmarks: "+br.Error)
		}
	}

	pdf, err := doc.Bytes()
	if err != nil {
		return res, fmt.Errorf("render cover page: %w", err)
	}
	res.PDF = pdf
	return res, nil
}

// buildEntries flattens the manifest into TOC rows. Files arrive
// sorted by node code; nesting depth comes from the dotted code.
func buildEntries(m *manifest.PackageManifest) []Entry {
	entries := make([]Entry, 0, len(m.Files))
	for _, f := range m.Files {
		title := f.NodeTitle
		if title == "" {
			title = f.FileName
		}
		entries = append(entries, Entry{
			Title:    title,
			NodeCode: f.NodeCode,
			Level:    ectd.NodeDepth(f.NodeCode),
			Target:   f.TargetPath,
		})
	}
	return entries
}

// bookmarkMirror rebuilds the TOC nesting as a bookmark tree. Each
// bookmark points at the cover page its row is printed on.
func bookmarkMirror(entries []Entry, entryPage []int) []pdfproc.BookmarkSpec {
	type node struct {
		spec     pdfproc.BookmarkSpec
		children []*node
	}
	type frame struct {
		n     *node
		level int
	}
	var roots []*node
	var stack []frame

	for i, e := range entries {
		n := &node{spec: pdfproc.BookmarkSpec{
			Title:      e.NodeCode + " " + e.Title,
			PageNumber: entryPage[i],
		}}
		// Parent is the most recent shallower entry.
		for len(stack) > 0 && stack[len(stack)-1].level >= e.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			n.spec.Open = true
			roots = append(roots, n)
		} else {
			parent := stack[len(stack)-1].n
			parent.children = append(parent.children, n)
		}
		stack = append(stack, frame{n: n, level: e.Level})
	}

	var materialize func(ns []*node) []pdfproc.BookmarkSpec
	materialize = func(ns []*node) []pdfproc.BookmarkSpec {
		if len(ns) == 0 {
			return nil
		}
		out := make([]pdfproc.BookmarkSpec, 0, len(ns))
		for _, n := range ns {
			s := n.spec
			s.Children = materialize(n.children)
			out = append(out, s)
		}
		return out
	}
	return materialize(roots)
}
