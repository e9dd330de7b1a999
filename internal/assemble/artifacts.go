package assemble

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/clindesk/ectdpack/internal/backbone"
	"github.com/clindesk/ectdpack/internal/manifest"
	"github.com/clindesk/ectdpack/internal/pdfproc"
	"github.com/clindesk/ectdpack/internal/validate"
	"github.com/yuin/goldmark"
)

// StructureDirName is the subdirectory of an export that holds the
// submission tree itself; everything beside it is QC material.
const StructureDirName = "ectd"

// FileOutcome records what processing did to one packaged file.
type FileOutcome struct {
	TargetPath string                  `json:"targetPath"`
	Bookmarks  *pdfproc.BookmarkResult `json:"bookmarks,omitempty"`
	Links      *pdfproc.LinkResult     `json:"links,omitempty"`
}

// ArtifactInputs is everything WriteArtifacts needs beyond the tree
// already on disk.
type ArtifactInputs struct {
	Manifest   *manifest.PackageManifest
	Meta       backbone.Meta
	PackageID  string
	Outcomes   []FileOutcome
	Validation *validate.Report // nil when validation was skipped
	Backbone   backbone.Options
}

// Artifacts lists everything an export produced.
type Artifacts struct {
	Root             string `json:"root"`
	StructureDir     string `json:"structureDir"`
	IndexXML         string `json:"indexXml"`
	RegionalXML      string `json:"regionalXml"`
	BookmarkManifest string `json:"bookmarkManifest"`
	HyperlinkReport  string `json:"hyperlinkReport"`
	QCSummary        string `json:"qcSummary"`
	QCReport         string `json:"qcReport"`
	ZipPath          string `json:"zipPath"`
	ZipSize          int64  `json:"zipSize"`
	ZipEntries       int    `json:"zipEntries"`
}

// BookmarkRollup summarizes bookmark injection across the package.
type BookmarkRollup struct {
	FilesWithBookmarks int `json:"filesWithBookmarks"`
	TotalBookmarks     int `json:"totalBookmarks"`
	Warnings           int `json:"warnings"`
}

// LinkRollup summarizes the hyperlink pass across the package.
type LinkRollup struct {
	Total         int `json:"total"`
	Internal      int `json:"internal"`
	CrossDocument int `json:"crossDocument"`
	External      int `json:"external"`
	Updated       int `json:"updated"`
	Removed       int `json:"removed"`
	Broken        int `json:"broken"`
}

// XMLRollup records the rendered backbone files.
type XMLRollup struct {
	IndexPath    string `json:"indexPath"`
	RegionalPath string `json:"regionalPath"`
	Leaves       int    `json:"leaves"`
}

// QCSummary is the machine-readable roll-up written next to the
// archive.
type QCSummary struct {
	StudyID     string                  `json:"studyId"`
	StudyNumber string                  `json:"studyNumber"`
	PackageID   string                  `json:"packageId"`
	GeneratedAt time.Time               `json:"generatedAt"`
	FileCount   int                     `json:"fileCount"`
	TotalSize   int64                   `json:"totalSize"`
	Readiness   manifest.ReadinessCheck `json:"readiness"`
	Bookmarks   BookmarkRollup          `json:"bookmarks"`
	Hyperlinks  LinkRollup              `json:"hyperlinks"`
	XML         XMLRollup               `json:"xml"`
	Validation  *validate.Report        `json:"validation,omitempty"`
}

// WriteArtifacts renders the XML backbone into the already-built tree
// under outDir/ectd, writes the QC artifacts next to it, and zips the
// tree. The tree must exist: processing happens before artifacts so
// the leaf checksums digest the bytes that actually ship.
func (a *Assembler) WriteArtifacts(ctx context.Context, outDir string, in ArtifactInputs) (*Artifacts, error) {
	structDir := filepath.Join(outDir, StructureDirName)
	if _, err := os.Stat(structDir); err != nil {
		return nil, fmt.Errorf("package structure missing: %w", err)
	}

	art := &Artifacts{Root: outDir, StructureDir: structDir}

	leaves, err := backbone.BuildLeafEntries(in.Manifest, func(target string) (string, error) {
		return secureJoin(structDir, target)
	}, in.Backbone)
	if err != nil {
		return nil, fmt.Errorf("build leaf entries: %w", err)
	}

	indexXML, err := backbone.RenderIndexXML(in.Meta, leaves, in.Backbone)
	if err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	art.IndexXML = filepath.Join(structDir, "index.xml")
	if err := writeArtifact(art.IndexXML, indexXML); err != nil {
		return nil, err
	}

	regionalXML, err := backbone.RenderRegionalXML(in.Meta)
	if err != nil {
		return nil, fmt.Errorf("render regional: %w", err)
	}
	art.RegionalXML = filepath.Join(structDir, "us-regional.xml")
	if err := writeArtifact(art.RegionalXML, regionalXML); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	art.BookmarkManifest = filepath.Join(outDir, "bookmark-manifest.json")
	if err := writeJSON(art.BookmarkManifest, map[string]any{
		"studyId":     in.Manifest.StudyID,
		"packageId":   in.PackageID,
		"generatedAt": in.Meta.GeneratedAt,
		"files":       in.Outcomes,
	}); err != nil {
		return nil, err
	}

	art.HyperlinkReport = filepath.Join(outDir, "hyperlink-report.csv")
	if err := writeArtifact(art.HyperlinkReport, hyperlinkCSV(in.Outcomes)); err != nil {
		return nil, err
	}

	summary := QCSummary{
		StudyID:     in.Manifest.StudyID,
		StudyNumber: in.Manifest.StudyNumber,
		PackageID:   in.PackageID,
		GeneratedAt: in.Meta.GeneratedAt,
		FileCount:   len(in.Manifest.Files),
		TotalSize:   in.Manifest.TotalSize(),
		Readiness:   in.Manifest.Readiness,
		Bookmarks:   bookmarkRollup(in.Outcomes),
		Hyperlinks:  linkRollup(in.Outcomes),
		XML: XMLRollup{
			IndexPath:    filepath.ToSlash(filepath.Join(StructureDirName, "index.xml")),
			RegionalPath: filepath.ToSlash(filepath.Join(StructureDirName, "us-regional.xml")),
			Leaves:       len(leaves),
		},
	}
	if in.Validation != nil {
		summary.Validation = in.Validation.ForTransport()
	}
	art.QCSummary = filepath.Join(outDir, "qc-summary.json")
	if err := writeJSON(art.QCSummary, summary); err != nil {
		return nil, err
	}

	html, err := qcReportHTML(in.Validation, in.Manifest)
	if err != nil {
		return nil, fmt.Errorf("render qc report: %w", err)
	}
	art.QCReport = filepath.Join(outDir, "qc-report.html")
	if err := writeArtifact(art.QCReport, html); err != nil {
		return nil, err
	}

	zipRes, err := a.CreateZipArchive(ctx, structDir, filepath.Join(outDir, "package.zip"))
	if err != nil {
		return nil, fmt.Errorf("archive package: %w", err)
	}
	art.ZipPath = zipRes.Path
	art.ZipSize = zipRes.Size
	art.ZipEntries = zipRes.Entries

	a.log.Info("export artifacts written", "dir", outDir, "leaves", len(leaves), "zipBytes", art.ZipSize)
	return art, nil
}

func writeArtifact(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return writeArtifact(path, append(data, '\n'))
}

// hyperlinkCSV renders the hyperlink QC report: one row per link that
// needs attention (broken, removed, or flagged external), then a
// summary block.
func hyperlinkCSV(outcomes []FileOutcome) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write([]string{"Source File", "Page", "Link Type", "Target", "Status", "Error"})

	for _, oc := range outcomes {
		if oc.Links == nil {
			continue
		}
		for _, l := range oc.Links.Links {
			var status string
			switch {
			case l.Broken:
				status = "BROKEN"
			case l.Removed:
				status = "REMOVED"
			case l.Type == pdfproc.LinkExternal:
				status = "FLAGGED"
			default:
				continue
			}
			w.Write([]string{l.SourceFile, strconv.Itoa(l.Page), string(l.Type), l.Target, status, l.Error})
		}
	}

	roll := linkRollup(outcomes)
	w.Write([]string{})
	w.Write([]string{"Summary", "", "", "", "", ""})
	w.Write([]string{"Total Links", strconv.Itoa(roll.Total), "", "", "", ""})
	w.Write([]string{"Internal Links", strconv.Itoa(roll.Internal), "", "", "", ""})
	w.Write([]string{"Cross-Document Links", strconv.Itoa(roll.CrossDocument), "", "", "", ""})
	w.Write([]string{"External Links", strconv.Itoa(roll.External), "", "", "", ""})
	w.Write([]string{"Updated Links", strconv.Itoa(roll.Updated), "", "", "", ""})
	w.Write([]string{"Removed Links", strconv.Itoa(roll.Removed), "", "", "", ""})
	w.Write([]string{"Broken Links", strconv.Itoa(roll.Broken), "", "", "", ""})
	w.Flush()
	return buf.Bytes()
}

func bookmarkRollup(outcomes []FileOutcome) BookmarkRollup {
	var roll BookmarkRollup
	for _, oc := range outcomes {
		if oc.Bookmarks == nil {
			continue
		}
		if oc.Bookmarks.BookmarkCount > 0 {
			roll.FilesWithBookmarks++
		}
		roll.TotalBookmarks += oc.Bookmarks.BookmarkCount
		roll.Warnings += len(oc.Bookmarks.Warnings)
	}
	return roll
}

func linkRollup(outcomes []FileOutcome) LinkRollup {
	var roll LinkRollup
	for _, oc := range outcomes {
		if oc.Links == nil {
			continue
		}
		roll.Total += oc.Links.Total
		roll.Updated += oc.Links.Updated
		roll.Removed += oc.Links.Removed
		for _, l := range oc.Links.Links {
			switch l.Type {
			case pdfproc.LinkInternal:
				roll.Internal++
			case pdfproc.LinkCrossDocument:
				roll.CrossDocument++
			case pdfproc.LinkExternal:
				roll.External++
			}
			if l.Broken {
				roll.Broken++
			}
		}
	}
	return roll
}

const qcReportShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>QC Report %s</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; color: #222; }
h1, h2 { border-bottom: 1px solid #ccc; padding-bottom: .2em; }
code { background: #f4f4f4; padding: 0 .3em; }
</style>
</head>
<body>
%s</body>
</html>
`

// qcReportHTML renders the validation report to HTML. With validation
// skipped it still produces a page saying so.
func qcReportHTML(rep *validate.Report, m *manifest.PackageManifest) ([]byte, error) {
	md := "# Package Validation Report\n\nValidation was skipped for this export.\n"
	if rep != nil {
		md = rep.MarkdownReport()
	}
	var body bytes.Buffer
	if err := goldmark.New().Convert([]byte(md), &body); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(qcReportShell, m.StudyNumber, body.String())), nil
}
