// Package version holds build metadata injected at link time.
package version

// Set via -ldflags "-X github.com/cattern/rovercam/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
)
