// Package ectd holds the structural conventions of an eCTD submission:
// hierarchical node codes, sanitized directory layout, folder trees, and
// sequence numbers.
package ectd

import (
	"sort"
	"strconv"
	"strings"
)

// CompareNodeCodes orders two dotted node codes hierarchically with
// numeric-aware segment comparison, so 16.2 sorts before 16.10. A code
// that is a prefix of another sorts first. Non-numeric segments sort
// after numeric ones and compare as plain strings.
func CompareNodeCodes(a, b string) int {
	return compareSegmented(a, b, ".")
}

// CompareFolderNames orders hyphenated folder names ("16-2" vs "16-10")
// with the same numeric-aware rules as node codes.
func CompareFolderNames(a, b string) int {
	return compareSegmented(a, b, "-")
}

func compareSegmented(a, b, sep string) int {
	if a == b {
		return 0
	}
	as := strings.Split(a, sep)
	bs := strings.Split(b, sep)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	// Equal prefix: the shorter code is the parent and sorts first.
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareSegment(a, b string) int {
	an, aNum := parseNumericSegment(a)
	bn, bNum := parseNumericSegment(b)
	switch {
	case aNum && bNum:
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func parseNumericSegment(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortNodeCodes sorts codes in place using CompareNodeCodes.
func SortNodeCodes(codes []string) {
	sort.Slice(codes, func(i, j int) bool {
		return CompareNodeCodes(codes[i], codes[j]) < 0
	})
}

// NodeDepth returns the nesting level of a dotted code: "16" is 0,
// "16.2.1" is 2.
func NodeDepth(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(code, ".")
}
