package version

// Set at build time, for example:
// go build -ldflags "-X github.com/pysugar/launcher-accounts/internal/version.Version=v0.2.0"
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String formats the build metadata for --version output.
func String() string {
	return Version + " (commit " + Commit + ", built " + BuildTime + ")"
}
