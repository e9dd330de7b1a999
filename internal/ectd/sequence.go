package ectd

import (
	"fmt"
	"strconv"
)

// SubmissionType distinguishes the first sequence of an application from
// everything after it.
type SubmissionType string

const (
	SubmissionOriginal  SubmissionType = "original"
	SubmissionAmendment SubmissionType = "amendment"
)

// SequenceInfo describes one submission sequence.
type SequenceInfo struct {
	Number string         `json:"number"`
	Type   SubmissionType `json:"type"`
}

// FormatSequenceNumber renders n as the 4-digit zero-padded string the
// eCTD folder layout uses: FormatSequenceNumber(999) == "0999". Numbers
// past 9999 keep their natural width.
func FormatSequenceNumber(n int) string {
	return fmt.Sprintf("%04d", n)
}

// NextSequence increments a sequence string and re-pads it:
// NextSequence("0999") == "1000".
func NextSequence(seq string) (string, error) {
	n, err := strconv.Atoi(seq)
	if err != nil {
		return "", fmt.Errorf("invalid sequence number %q: %w", seq, err)
	}
	return FormatSequenceNumber(n + 1), nil
}

// DetermineSubmissionType reports "original" for sequence 0000 and
// "amendment" for everything else.
func DetermineSubmissionType(seq string) SubmissionType {
	if seq == "0000" {
		return SubmissionOriginal
	}
	return SubmissionAmendment
}

// SequenceInfoFor bundles a sequence number with its derived type.
func SequenceInfoFor(seq string) SequenceInfo {
	return SequenceInfo{Number: seq, Type: DetermineSubmissionType(seq)}
}
