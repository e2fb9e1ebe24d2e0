// Package version reports the uprogd build. Variables are set via ldflags;
// when they are not, the VCS stamp the go tool embeds is used instead.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Example: go build -ldflags "-X github.com/ucd-os-blue-s18/pintos-p2/internal/version.Version=v1.0.0"
var (
	// Version is the semantic version (e.g., "v1.0.0" or "dev").
	Version = "dev"

	// GitCommit is the git commit SHA.
	GitCommit = "unknown"

	// BuildDate is the build timestamp in RFC3339 format.
	BuildDate = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	commit, date := stamp(debug.ReadBuildInfo())
	return fmt.Sprintf("uprogd %s (commit: %s, built: %s, go: %s)",
		Version, commit, date, runtime.Version())
}

// stamp fills in whatever ldflags left unknown from the embedded VCS
// settings.
func stamp(info *debug.BuildInfo, ok bool) (commit, date string) {
	commit, date = GitCommit, BuildDate
	if !ok {
		return commit, date
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && commit == "unknown":
			commit = s.Value
		case s.Key == "vcs.time" && date == "unknown":
			date = s.Value
		}
	}
	return commit, date
}
