// Package version holds build metadata set through -ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("sbu %s (commit %s, built %s)", Version, Commit, Date)
}
