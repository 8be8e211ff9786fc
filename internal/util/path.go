package util

import (
	"path"
	"path/filepath"
	"strings"
)

// SnapshotName derives the snapshot name from a manifest folder: its base
// name, lower-cased.
func SnapshotName(folder string) string {
	cleaned := strings.TrimRight(filepath.ToSlash(folder), "/")
	return strings.ToLower(path.Base(cleaned))
}

// IsGranularFolder reports whether folder holds a tenant-scoped backup. The
// backup daemon names such folders with a "granular" marker.
func IsGranularFolder(folder string) bool {
	return strings.Contains(folder, "granular")
}

// ParseBool accepts the boolean spellings the backup daemon passes on the
// command line. Anything else is false.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "t", "1":
		return true
	}
	return false
}
