// Package version carries build information stamped in with -ldflags.
package version

import "fmt"

var (
	// Version is the current regiondb release
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build information for `regiondb version`.
func String() string {
	return fmt.Sprintf("regiondb %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
