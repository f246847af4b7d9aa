// Package version holds build metadata stamped in via -ldflags.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single-line human readable version string.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
