package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/clindesk/ectdpack/internal/ectd"
	"github.com/clindesk/ectdpack/internal/study"
)

// ErrNoActiveTemplate is returned when a study has no active template to
// define its slots.
var ErrNoActiveTemplate = errors.New("study has no active template")

// Options selects which document statuses are eligible for packaging.
// The zero value is normalized to the default: approved and published
// only.
type Options struct {
	IncludeDrafts    bool
	IncludeApproved  bool
	IncludePublished bool
}

// DefaultOptions returns the standard eligibility: approved + published.
func DefaultOptions() Options {
	return Options{IncludeApproved: true, IncludePublished: true}
}

func (o Options) normalized() Options {
	if !o.IncludeDrafts && !o.IncludeApproved && !o.IncludePublished {
		return DefaultOptions()
	}
	return o
}

func (o Options) eligible(s study.DocumentStatus) bool {
	switch s {
	case study.StatusPublished:
		return o.IncludePublished
	case study.StatusApproved:
		return o.IncludeApproved
	case study.StatusDraft, study.StatusInReview:
		return o.IncludeDrafts
	default:
		// Archived documents never ship.
		return false
	}
}

// statusRank orders candidate documents for a slot; higher wins.
func statusRank(s study.DocumentStatus) int {
	switch s {
	case study.StatusPublished:
		return 3
	case study.StatusApproved:
		return 2
	case study.StatusInReview:
		return 1
	case study.StatusDraft:
		return 0
	default:
		return -1
	}
}

// Assembler builds package manifests from repository state.
type Assembler struct {
	repo study.Repository
	log  *slog.Logger
	now  func() time.Time
}

// NewAssembler wires an assembler to its study source. A nil logger
// falls back to slog.Default().
func NewAssembler(repo study.Repository, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{repo: repo, log: log, now: time.Now}
}

// Build loads one study and assembles its manifest.
func (a *Assembler) Build(ctx context.Context, studyID string, opts Options) (*PackageManifest, error) {
	st, err := a.repo.FindStudyWithTemplateAndDocuments(ctx, studyID)
	if err != nil {
		return nil, fmt.Errorf("load study %s: %w", studyID, err)
	}
	return a.BuildFrom(st, opts)
}

// BuildFrom assembles the manifest for an already-loaded study. For
// every template node it selects the single best eligible candidate
// (published > approved > in_review > draft, ties broken by highest
// version); nodes with no eligible candidate are excluded. Files come
// back sorted by numeric-aware node code.
func (a *Assembler) BuildFrom(st *study.Study, opts Options) (*PackageManifest, error) {
	opts = opts.normalized()

	if st.Template == nil || !st.Template.Active {
		return nil, fmt.Errorf("study %s: %w", st.ID, ErrNoActiveTemplate)
	}

	// Group candidates by slot; documents whose node code matches no
	// template node have no slot and are ignored.
	bySlot := make(map[string][]study.Document, len(st.Template.Nodes))
	slots := make(map[string]study.TemplateNode, len(st.Template.Nodes))
	for _, node := range st.Template.Nodes {
		slots[node.Code] = node
		bySlot[node.Code] = nil
	}
	for _, doc := range st.Documents {
		if _, ok := slots[doc.NodeCode]; !ok {
			a.log.Warn("document has no matching template node",
				"study_id", st.ID, "document_id", doc.ID, "node_code", doc.NodeCode)
			continue
		}
		if opts.eligible(doc.Status) {
			bySlot[doc.NodeCode] = append(bySlot[doc.NodeCode], doc)
		}
	}

	m := &PackageManifest{
		StudyID:     st.ID,
		StudyNumber: st.StudyNumber,
		StudyTitle:  st.Title,
		GeneratedAt: a.now().UTC(),
	}

	readiness := ReadinessCheck{
		MissingRequired: []MissingSlot{},
		PendingApproval: []PendingDocument{},
	}

	selected := make(map[string]study.Document)
	for code, candidates := range bySlot {
		if len(candidates) == 0 {
			continue
		}
		best := pickBest(candidates)
		selected[code] = best

		node := slots[code]
		m.Files = append(m.Files, PackageFile{
			SourceDocumentID: best.ID,
			SourcePath:       best.SourcePath,
			TargetPath:       ectd.TargetPath(code, st.StudyNumber, best.FileName),
			NodeCode:         code,
			NodeTitle:        node.Title,
			FileName:         ectd.SanitizeFileName(best.FileName),
			Version:          best.Version,
			FileSize:         best.FileSize,
			PageCount:        best.PageCount,
		})
	}

	sort.Slice(m.Files, func(i, j int) bool {
		return ectd.CompareNodeCodes(m.Files[i].NodeCode, m.Files[j].NodeCode) < 0
	})

	for _, node := range st.Template.Nodes {
		if !node.Required {
			continue
		}
		readiness.TotalRequiredNodes++
		if _, ok := selected[node.Code]; !ok {
			readiness.MissingRequired = append(readiness.MissingRequired, MissingSlot{
				NodeCode:  node.Code,
				NodeTitle: node.Title,
			})
		}
	}
	sort.Slice(readiness.MissingRequired, func(i, j int) bool {
		return ectd.CompareNodeCodes(readiness.MissingRequired[i].NodeCode, readiness.MissingRequired[j].NodeCode) < 0
	})

	for _, f := range m.Files {
		doc := selected[f.NodeCode]
		if doc.ValidationStatus == study.ValidationFailed {
			readiness.ValidationErrors++
		}
		readiness.UnresolvedAnnotations += doc.UnresolvedCorrections()
		if !doc.Status.Terminal() {
			readiness.PendingApproval = append(readiness.PendingApproval, PendingDocument{
				DocumentID: doc.ID,
				NodeCode:   doc.NodeCode,
				Title:      doc.Title,
				Status:     doc.Status,
			})
		}
	}

	readiness.TotalFiles = len(m.Files)
	readiness.Ready = len(readiness.MissingRequired) == 0 &&
		readiness.ValidationErrors == 0 &&
		readiness.UnresolvedAnnotations == 0

	m.Readiness = readiness

	targetPaths := make([]string, len(m.Files))
	for i, f := range m.Files {
		targetPaths[i] = f.TargetPath
	}
	m.FolderStructure = ectd.BuildFolderTree(targetPaths)

	a.log.Info("manifest assembled",
		"study_id", st.ID,
		"files", len(m.Files),
		"ready", readiness.Ready,
		"missing_required", len(readiness.MissingRequired),
	)
	return m, nil
}

func pickBest(candidates []study.Document) study.Document {
	best := candidates[0]
	for _, c := range candidates[1:] {
		br, cr := statusRank(best.Status), statusRank(c.Status)
		if cr > br || (cr == br && c.Version > best.Version) {
			best = c
		}
	}
	return best
}
