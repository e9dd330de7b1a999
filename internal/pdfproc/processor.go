package pdfproc

import (
	"fmt"

	"github.com/clindesk/ectdpack/internal/pdfobj"
)

// Options selects which passes Process runs on a document.
type Options struct {
	// Bookmarks, when non-nil, replaces the document outline. An empty
	// non-nil slice clears it.
	Bookmarks []BookmarkSpec
	// RemoveBookmarks deletes the outline without installing a new one.
	RemoveBookmarks bool

	// Links, when non-nil, runs the hyperlink pass.
	Links *LinkOptions
	// DisableLinks skips the hyperlink pass even when Links is set.
	DisableLinks bool
}

// Result combines the outputs of both passes.
type Result struct {
	Bookmarks *BookmarkResult `json:"bookmarks,omitempty"`
	Links     *LinkResult     `json:"hyperlinks,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// Process runs bookmark injection and then hyperlink processing on one
// document, merging warnings. Encrypted documents are refused: their
// object graph cannot be rewritten without the document keys.
func Process(doc *pdfobj.Document, opts Options) (Result, error) {
	var res Result
	if doc.Encrypted() {
		return res, fmt.Errorf("document is encrypted")
	}

	if opts.Bookmarks != nil || opts.RemoveBookmarks {
		br := InjectBookmarks(doc, opts.Bookmarks, BookmarkOptions{Remove: opts.RemoveBookmarks})
		res.Bookmarks = &br
		res.Warnings = append(res.Warnings, br.Warnings...)
	}

	if opts.Links != nil && !opts.DisableLinks {
		lr := ProcessLinks(doc, *opts.Links)
		res.Links = &lr
		res.Warnings = append(res.Warnings, lr.Warnings...)
	}
	return res, nil
}
