// Package version provides build-time version information.
package version

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the version line printed by both binaries.
func String() string {
	return Version + " (commit " + Commit + ", built " + BuildDate + ")"
}
