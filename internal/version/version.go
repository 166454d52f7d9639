// Package version carries build metadata injected via -ldflags.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
)

// String returns the version with the commit when one is known.
func String() string {
	if GitSHA == "unknown" {
		return Version
	}
	return Version + " (" + GitSHA + ")"
}
