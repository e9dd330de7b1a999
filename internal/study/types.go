// Package study defines the collaborator boundary of the packaging
// engine: the study, template, and document state the engine reads, and
// the repository interfaces the surrounding application implements. The
// engine never reaches into a database itself.
package study

import "context"

// DocumentStatus is the review-workflow state of a document. The
// workflow itself lives outside this system; packaging only reads the
// current state.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusInReview  DocumentStatus = "in_review"
	StatusApproved  DocumentStatus = "approved"
	StatusPublished DocumentStatus = "published"
	StatusArchived  DocumentStatus = "archived"
)

// Terminal reports whether a status needs no further review before
// submission.
func (s DocumentStatus) Terminal() bool {
	return s == StatusApproved || s == StatusPublished
}

// ValidationStatus is the outcome of the per-document QC validation run
// by the review workflow.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
)

// KindCorrectionRequired marks annotations that block export until
// resolved.
const KindCorrectionRequired = "correction_required"

// Annotation is a reviewer note attached to a document.
type Annotation struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Resolved bool   `json:"resolved"`
	Note     string `json:"note,omitempty"`
}

// Document is one uploaded study document as the repository reports it.
type Document struct {
	ID               string           `json:"id"`
	NodeCode         string           `json:"nodeCode"`
	Title            string           `json:"title"`
	FileName         string           `json:"fileName"`
	Version          int              `json:"version"`
	Status           DocumentStatus   `json:"status"`
	ValidationStatus ValidationStatus `json:"validationStatus"`
	SourcePath       string           `json:"sourcePath"`
	FileSize         int64            `json:"fileSize"`
	PageCount        int              `json:"pageCount,omitempty"`
	Bookmarks        []OutlineSpec    `json:"bookmarks,omitempty"`
	Annotations      []Annotation     `json:"annotations,omitempty"`
}

// UnresolvedCorrections counts open correction-required annotations.
func (d Document) UnresolvedCorrections() int {
	n := 0
	for _, a := range d.Annotations {
		if a.Kind == KindCorrectionRequired && !a.Resolved {
			n++
		}
	}
	return n
}

// OutlineSpec is the authored bookmark tree for a document, stored by
// the review workflow and injected during packaging.
type OutlineSpec struct {
	Title      string        `json:"title"`
	PageNumber int           `json:"pageNumber"`
	Open       bool          `json:"open,omitempty"`
	Children   []OutlineSpec `json:"children,omitempty"`
}

// TemplateNode is one slot in the study structure: a position a document
// may (or must) fill.
type TemplateNode struct {
	Code     string `json:"code"`
	Title    string `json:"title"`
	Required bool   `json:"required"`
}

// Template is the active study structure definition.
type Template struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Active bool           `json:"active"`
	Nodes  []TemplateNode `json:"nodes"`
}

// Study aggregates everything the manifest assembler needs in one read.
type Study struct {
	ID          string     `json:"id"`
	StudyNumber string     `json:"studyNumber"`
	Title       string     `json:"title"`
	Template    *Template  `json:"template"`
	Documents   []Document `json:"documents"`
}

// Sponsor carries the applicant metadata for regional XML.
type Sponsor struct {
	Name              string `json:"name"`
	ApplicationType   string `json:"applicationType,omitempty"`
	ApplicationNumber string `json:"applicationNumber,omitempty"`
	DUNSNumber        string `json:"dunsNumber,omitempty"`
}

// Repository is the single read the packaging engine performs against
// study state.
type Repository interface {
	FindStudyWithTemplateAndDocuments(ctx context.Context, studyID string) (*Study, error)
}

// SponsorLookup resolves applicant metadata for a study.
type SponsorLookup interface {
	SponsorForStudy(ctx context.Context, studyID string) (*Sponsor, error)
}
