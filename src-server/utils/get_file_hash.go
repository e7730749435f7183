package utils

import (
	"crypto/sha256"
	"fmt"
	"io"
)

// GetFileHash hashes an uploaded file's content; attachments are stored on
// disk under this hash so duplicate receipts don't pile up.
func GetFileHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("GetFileHash: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
