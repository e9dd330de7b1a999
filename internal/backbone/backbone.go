// Package backbone produces the submission's XML skeleton: the eCTD
// index with one checksummed <leaf> per packaged file, and the FDA
// regional metadata document. Output is deterministic for identical
// input, byte for byte.
package backbone

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"time"

	"github.com/clindesk/ectdpack/internal/checksum"
	"github.com/clindesk/ectdpack/internal/ectd"
	"github.com/clindesk/ectdpack/internal/manifest"
)

const (
	ectdNamespace  = "http://www.ich.org/ectd"
	xlinkNamespace = "http://www.w3c.org/1999/xlink"
	fdaNamespace   = "http://www.fda.gov/cder/eregs/fda-regional"

	dtdVersion         = "3.2"
	regionalDTDVersion = "2.01"
	dtdPath            = "util/dtd/ich-ectd-3-2.dtd"

	checksumType = "md5"
)

// LeafEntry is one <leaf> element of index.xml.
type LeafEntry struct {
	ID           string
	Href         string
	Checksum     string
	ChecksumType string
	FileSize     int64
	Title        string
	NodeCode     string
}

// Options controls leaf building and index rendering.
type Options struct {
	// SkipChecksums leaves the checksum attributes empty. Dry runs and
	// tests use this to avoid touching source files.
	SkipChecksums bool
	// IncludeDTDRef emits the DOCTYPE line referencing the ICH DTD.
	IncludeDTDRef bool
}

// Meta carries the submission header fields shared by both documents.
type Meta struct {
	SequenceNumber    string
	SubmissionType    ectd.SubmissionType
	ApplicantName     string
	ApplicationType   string
	ApplicationNumber string
	DUNSNumber        string
	StudyNumber       string
	StudyTitle        string
	GeneratedAt       time.Time
}

// ChecksumError reports a source file that could not be digested.
type ChecksumError struct {
	Path string
	Err  error
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum for %s: %v", e.Path, e.Err)
}

func (e *ChecksumError) Unwrap() error { return e.Err }

// BuildLeafEntries turns the manifest's files into leaf entries sorted
// by node code. resolve maps a file's package-relative TargetPath to
// its location on disk; it is only consulted when checksums are
// computed. Checksums digest the assembled files, so any in-place
// processing must happen before leaves are built.
func BuildLeafEntries(m *manifest.PackageManifest, resolve func(string) (string, error), opts Options) ([]LeafEntry, error) {
	leaves := make([]LeafEntry, 0, len(m.Files))
	ordinals := map[string]int{}

	for _, f := range m.Files {
		code := ectd.SanitizePathComponent(f.NodeCode)
		ordinals[code]++
		leaf := LeafEntry{
			ID:       fmt.Sprintf("leaf-%s-%d", code, ordinals[code]),
			Href:     f.TargetPath,
			FileSize: f.FileSize,
			Title:    f.NodeTitle,
			NodeCode: f.NodeCode,
		}
		if leaf.Title == "" {
			leaf.Title = f.FileName
		}
		if !opts.SkipChecksums {
			full := f.TargetPath
			if resolve != nil {
				var err error
				if full, err = resolve(f.TargetPath); err != nil {
					return nil, &ChecksumError{Path: f.TargetPath, Err: err}
				}
			}
			sum, err := checksum.SumFile(full)
			if err != nil {
				return nil, &ChecksumError{Path: f.TargetPath, Err: err}
			}
			leaf.Checksum = sum
			leaf.ChecksumType = checksumType
		}
		leaves = append(leaves, leaf)
	}

	sort.SliceStable(leaves, func(i, j int) bool {
		return ectd.CompareNodeCodes(leaves[i].NodeCode, leaves[j].NodeCode) < 0
	})
	return leaves, nil
}

type indexLeaf struct {
	ID           string `xml:"ID,attr"`
	Href         string `xml:"xlink:href,attr"`
	Checksum     string `xml:"checksum,attr,omitempty"`
	ChecksumType string `xml:"checksum-type,attr,omitempty"`
	Title        string `xml:"title"`
}

type indexStudy struct {
	Number string `xml:"number,attr"`
	Title  string `xml:",chardata"`
}

type indexDoc struct {
	XMLName    xml.Name    `xml:"ectd:ectd"`
	ECTDNS     string      `xml:"xmlns:ectd,attr"`
	XlinkNS    string      `xml:"xmlns:xlink,attr"`
	DTDVersion string      `xml:"dtd-version,attr"`
	Header     string      `xml:",comment"`
	Applicant  string      `xml:"applicant"`
	Study      indexStudy  `xml:"study"`
	Leaves     []indexLeaf `xml:"m5-clinical-study-reports>leaf"`
}

// RenderIndexXML produces index.xml for the given leaves.
func RenderIndexXML(meta Meta, leaves []LeafEntry, opts Options) ([]byte, error) {
	doc := indexDoc{
		ECTDNS:     ectdNamespace,
		XlinkNS:    xlinkNamespace,
		DTDVersion: dtdVersion,
		Header: fmt.Sprintf(" sequence %s (%s), generated %s ",
			meta.SequenceNumber, meta.SubmissionType,
			meta.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST")),
		Applicant: meta.ApplicantName,
		Study:     indexStudy{Number: meta.StudyNumber, Title: meta.StudyTitle},
	}
	for _, l := range leaves {
		doc.Leaves = append(doc.Leaves, indexLeaf{
			ID:           l.ID,
			Href:         l.Href,
			Checksum:     l.Checksum,
			ChecksumType: l.ChecksumType,
			Title:        l.Title,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if opts.IncludeDTDRef {
		fmt.Fprintf(&buf, "<!DOCTYPE ectd:ectd SYSTEM %q>\n", dtdPath)
	}
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("render index.xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

type regionalApplicant struct {
	CompanyName       string `xml:"company-name"`
	ApplicationType   string `xml:"application-type,omitempty"`
	ApplicationNumber string `xml:"application-number,omitempty"`
	DUNSNumber        string `xml:"duns-number,omitempty"`
}

type regionalDoc struct {
	XMLName        xml.Name          `xml:"fda-regional:fda-regional"`
	FDANS          string            `xml:"xmlns:fda-regional,attr"`
	DTDVersion     string            `xml:"dtd-version,attr"`
	Applicant      regionalApplicant `xml:"admin>applicant-info"`
	SequenceNumber string            `xml:"sequence-number"`
	SubmissionType string            `xml:"submission-type"`
}

// RenderRegionalXML produces us-regional.xml.
func RenderRegionalXML(meta Meta) ([]byte, error) {
	doc := regionalDoc{
		FDANS:      fdaNamespace,
		DTDVersion: regionalDTDVersion,
		Applicant: regionalApplicant{
			CompanyName:       meta.ApplicantName,
			ApplicationType:   meta.ApplicationType,
			ApplicationNumber: meta.ApplicationNumber,
			DUNSNumber:        meta.DUNSNumber,
		},
		SequenceNumber: meta.SequenceNumber,
		SubmissionType: string(meta.SubmissionType),
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("render us-regional.xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
