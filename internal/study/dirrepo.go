package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a study ID resolves to nothing.
var ErrNotFound = errors.New("study not found")

// DirRepository reads study state from a fixture directory:
// <root>/<studyID>/study.json. It stands in for the application's
// database layer so the service runs self-contained; tests and small
// deployments use it directly.
type DirRepository struct {
	root string
}

// NewDirRepository creates a repository over the given root directory.
func NewDirRepository(root string) *DirRepository {
	return &DirRepository{root: root}
}

type studyFixture struct {
	Study
	Sponsor *Sponsor `json:"sponsor,omitempty"`
}

// FindStudyWithTemplateAndDocuments loads <root>/<studyID>/study.json.
func (r *DirRepository) FindStudyWithTemplateAndDocuments(ctx context.Context, studyID string) (*Study, error) {
	fx, err := r.load(studyID)
	if err != nil {
		return nil, err
	}
	s := fx.Study
	return &s, nil
}

// SponsorForStudy returns the sponsor block of the study fixture, or nil
// when the fixture has none.
func (r *DirRepository) SponsorForStudy(ctx context.Context, studyID string) (*Sponsor, error) {
	fx, err := r.load(studyID)
	if err != nil {
		return nil, err
	}
	return fx.Sponsor, nil
}

func (r *DirRepository) load(studyID string) (*studyFixture, error) {
	// Study IDs come from callers; never let them walk out of the root.
	if studyID == "" || studyID != filepath.Base(studyID) {
		return nil, fmt.Errorf("%w: invalid study id %q", ErrNotFound, studyID)
	}
	path := filepath.Join(r.root, studyID, "study.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, studyID)
		}
		return nil, fmt.Errorf("read study fixture: %w", err)
	}
	var fx studyFixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode study fixture %s: %w", path, err)
	}
	if fx.ID == "" {
		fx.ID = studyID
	}
	return &fx, nil
}
