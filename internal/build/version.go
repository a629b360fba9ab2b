package build

// Set through -ldflags "-X github.com/rohmanhakim/catalog-crawler/internal/build.Version=..." at release time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// FullVersion returns the version string with commit hash appended.
// Format: "Version+Commit" (e.g., "1.0.0+abc123")
func FullVersion() string {
	return Version + "+" + Commit
}

// UserAgent is the default User-Agent of catalog-crawler requests.
func UserAgent() string {
	return "catalog-crawler/" + Version
}
