// Package checksum computes the MD5 digests that back eCTD leaf entries.
// The eCTD 3.2 specification mandates MD5 for file integrity, so this is
// not a general hashing utility.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Sum returns the MD5 digest of data as a 32-character lowercase hex string.
func Sum(data []byte) string {
	h := md5.Sum(data)
	return hex.EncodeToString(h[:])
}

// SumReader computes the MD5 digest of everything read from r.
func SumReader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFile streams the file at path through MD5. Large files are never
// loaded into memory whole.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := SumReader(f)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return sum, nil
}
