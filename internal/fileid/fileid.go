// Package fileid derives stable document IDs from file paths.
package fileid

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Prefix marks document IDs that were derived from a file path.
const Prefix = "file:"

// FromPath returns the document ID for path. The path is cleaned first, so
// "/a/./b" and "/a/b/" map to the same ID as "/a/b".
func FromPath(path string) string {
	clean := filepath.ToSlash(filepath.Clean(path))
	return Prefix + uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+clean)).String()
}

// IsFileID reports whether id was produced by FromPath.
func IsFileID(id string) bool {
	rest, ok := strings.CutPrefix(id, Prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
