// Package manifest turns study state into the file plan of one export:
// which document fills which slot, where it lands in the eCTD tree, and
// whether the study is ready to submit at all.
package manifest

import (
	"time"

	"github.com/clindesk/ectdpack/internal/ectd"
	"github.com/clindesk/ectdpack/internal/study"
)

// PackageFile is one document placed into the package.
type PackageFile struct {
	SourceDocumentID string `json:"sourceDocumentId"`
	SourcePath       string `json:"sourcePath"`
	TargetPath       string `json:"targetPath"`
	NodeCode         string `json:"nodeCode"`
	NodeTitle        string `json:"nodeTitle"`
	FileName         string `json:"fileName"`
	Version          int    `json:"version"`
	FileSize         int64  `json:"fileSize"`
	PageCount        int    `json:"pageCount,omitempty"`
}

// MissingSlot is a required template node no eligible document fills.
type MissingSlot struct {
	NodeCode  string `json:"nodeCode"`
	NodeTitle string `json:"nodeTitle"`
}

// PendingDocument is a selected document still in a non-terminal review
// state.
type PendingDocument struct {
	DocumentID string               `json:"documentId"`
	NodeCode   string               `json:"nodeCode"`
	Title      string               `json:"title"`
	Status     study.DocumentStatus `json:"status"`
}

// ReadinessCheck is the export-eligibility snapshot for a study.
type ReadinessCheck struct {
	Ready                 bool              `json:"ready"`
	MissingRequired       []MissingSlot     `json:"missingRequired"`
	PendingApproval       []PendingDocument `json:"pendingApproval"`
	ValidationErrors      int               `json:"validationErrors"`
	UnresolvedAnnotations int               `json:"unresolvedAnnotations"`
	TotalFiles            int               `json:"totalFiles"`
	TotalRequiredNodes    int               `json:"totalRequiredNodes"`
}

// PackageManifest is the full file set of one export, computed fresh per
// call and never persisted.
type PackageManifest struct {
	StudyID         string             `json:"studyId"`
	StudyNumber     string             `json:"studyNumber"`
	StudyTitle      string             `json:"studyTitle,omitempty"`
	GeneratedAt     time.Time          `json:"generatedAt"`
	Files           []PackageFile      `json:"files"`
	FolderStructure []*ectd.FolderNode `json:"folderStructure"`
	Readiness       ReadinessCheck     `json:"readiness"`
}

// FileByTarget returns the package file with the given target path, or
// nil.
func (m *PackageManifest) FileByTarget(targetPath string) *PackageFile {
	for i := range m.Files {
		if m.Files[i].TargetPath == targetPath {
			return &m.Files[i]
		}
	}
	return nil
}

// TotalSize sums the sizes of all files in the manifest.
func (m *PackageManifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.FileSize
	}
	return total
}
