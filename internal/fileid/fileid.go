// Package fileid derives stable identifiers for imported files: a content
// checksum for change detection and a normalized origin path.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "sha256:"

// Checksum returns a stable digest of content. Same bytes always yield the same value.
func Checksum(content []byte) string {
	hash := sha256.Sum256(content)
	return prefix + hex.EncodeToString(hash[:])
}

// Origin returns the cleaned absolute form of path, used to recognise a file
// that was imported before. Relative paths are resolved against the working directory.
func Origin(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
