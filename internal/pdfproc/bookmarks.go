// Package pdfproc rewrites PDF navigation structure: outline
// (bookmark) trees and link annotations. It operates on the object
// graph exposed by pdfobj and never touches page content, so visual
// rendering is unchanged by any operation here.
package pdfproc

import (
	"fmt"

	"github.com/clindesk/ectdpack/internal/pdfobj"
)

// BookmarkSpec is one requested outline entry. Page numbers are
// 1-based; entries pointing outside the document are dropped with a
// warning rather than failing the run.
type BookmarkSpec struct {
	Title      string         `json:"title"`
	PageNumber int            `json:"pageNumber"`
	Open       bool           `json:"isOpen,omitempty"`
	Children   []BookmarkSpec `json:"children,omitempty"`
}

// BookmarkOptions controls InjectBookmarks.
type BookmarkOptions struct {
	// Remove deletes any existing outline without installing a new one.
	Remove bool
}

// BookmarkResult reports what the injection actually did.
type BookmarkResult struct {
	Success       bool     `json:"success"`
	BookmarkCount int      `json:"bookmarkCount"`
	MaxDepth      int      `json:"maxDepth"`
	Warnings      []string `json:"warnings,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// InjectBookmarks replaces the document outline with the given tree.
// Entries with out-of-range pages are dropped, children included, and
// reported as warnings. An existing outline is removed first; with
// opts.Remove no new outline is installed.
func InjectBookmarks(doc *pdfobj.Document, specs []BookmarkSpec, opts BookmarkOptions) BookmarkResult {
	res := BookmarkResult{}

	pages := doc.Pages()
	if len(pages) == 0 {
		res.Error = "document has no pages"
		return res
	}
	cat, err := doc.Catalog()
	if err != nil {
		res.Error = err.Error()
		return res
	}

	if _, had := cat["Outlines"]; had {
		removeOutline(doc, cat)
		if !opts.Remove {
			res.Warnings = append(res.Warnings, "existing bookmarks replaced")
		}
	}
	if opts.Remove {
		res.Success = true
		return res
	}

	kept := filterSpecs(specs, len(pages), &res.Warnings)
	res.BookmarkCount = countSpecs(kept)
	res.MaxDepth = specDepth(kept)

	if len(kept) == 0 {
		res.Success = true
		return res
	}

	root := pdfobj.Dict{"Type": pdfobj.Name("Outlines")}
	rootRef := doc.Add(root)
	buildOutlineLevel(doc, rootRef, root, kept, pages)
	root["Count"] = int64(visibleFrom(kept))

	cat["Outlines"] = rootRef
	cat["PageMode"] = pdfobj.Name("UseOutlines")

	res.Success = true
	return res
}

// filterSpecs drops entries with invalid page numbers, including their
// subtrees, and records one warning per dropped entry.
func filterSpecs(specs []BookmarkSpec, pageCount int, warnings *[]string) []BookmarkSpec {
	kept := make([]BookmarkSpec, 0, len(specs))
	for _, s := range specs {
		if s.PageNumber < 1 || s.PageNumber > pageCount {
			*warnings = append(*warnings, fmt.Sprintf(
				"bookmark %q dropped: page %d outside document (1-%d)",
				s.Title, s.PageNumber, pageCount))
			continue
		}
		s.Children = filterSpecs(s.Children, pageCount, warnings)
		kept = append(kept, s)
	}
	return kept
}

func countSpecs(specs []BookmarkSpec) int {
	n := len(specs)
	for _, s := range specs {
		n += countSpecs(s.Children)
	}
	return n
}

func specDepth(specs []BookmarkSpec) int {
	depth := 0
	for _, s := range specs {
		d := 1 + specDepth(s.Children)
		if d > depth {
			depth = d
		}
	}
	return depth
}

// visibleFrom counts the entries a viewer shows for a level: every
// direct entry, plus the expansion of each open one.
func visibleFrom(specs []BookmarkSpec) int {
	n := len(specs)
	for _, s := range specs {
		if s.Open {
			n += visibleFrom(s.Children)
		}
	}
	return n
}

// buildOutlineLevel creates the sibling chain for one level and wires
// First/Last on the parent dictionary.
func buildOutlineLevel(doc *pdfobj.Document, parentRef pdfobj.Ref, parent pdfobj.Dict, specs []BookmarkSpec, pages []pdfobj.Ref) {
	refs := make([]pdfobj.Ref, len(specs))
	dicts := make([]pdfobj.Dict, len(specs))
	for i, s := range specs {
		item := pdfobj.Dict{
			"Title":  pdfobj.TextString(s.Title),
			"Parent": parentRef,
			"Dest":   pdfobj.Array{pages[s.PageNumber-1], pdfobj.Name("XYZ"), nil, nil, nil},
		}
		refs[i] = doc.Add(item)
		dicts[i] = item
	}
	for i, s := range specs {
		if i > 0 {
			dicts[i]["Prev"] = refs[i-1]
		}
		if i < len(specs)-1 {
			dicts[i]["Next"] = refs[i+1]
		}
		if len(s.Children) > 0 {
			buildOutlineLevel(doc, refs[i], dicts[i], s.Children, pages)
			count := int64(visibleFrom(s.Children))
			if !s.Open {
				count = -count
			}
			dicts[i]["Count"] = count
		}
	}
	if len(refs) > 0 {
		parent["First"] = refs[0]
		parent["Last"] = refs[len(refs)-1]
	}
}

// removeOutline deletes the outline tree reachable from the catalog
// and clears the catalog entries pointing at it.
func removeOutline(doc *pdfobj.Document, cat pdfobj.Dict) {
	rootRef, ok := cat["Outlines"].(pdfobj.Ref)
	if ok {
		deleteOutlineItems(doc, rootRef, map[pdfobj.Ref]bool{})
	}
	delete(cat, "Outlines")
	if pm, _ := cat["PageMode"].(pdfobj.Name); pm == "UseOutlines" {
		delete(cat, "PageMode")
	}
}

func deleteOutlineItems(doc *pdfobj.Document, ref pdfobj.Ref, seen map[pdfobj.Ref]bool) {
	if seen[ref] || len(seen) > 4096 {
		return
	}
	seen[ref] = true
	node, ok := doc.ResolveDict(ref)
	if !ok {
		return
	}
	if first, ok := node["First"].(pdfobj.Ref); ok {
		deleteOutlineItems(doc, first, seen)
	}
	if next, ok := node["Next"].(pdfobj.Ref); ok {
		deleteOutlineItems(doc, next, seen)
	}
	doc.Delete(ref)
}
