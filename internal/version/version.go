// Package version carries the build-time version identity of the binary.
package version

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// Version is the current released version. Overridden at build time:
//
//	go build -ldflags "-X github.com/parleyhq/parley/internal/version.Version=v0.3.0"
var Version = "0.0.0-dev"

// GitCommit is the git commit hash at build time.
// Set via ldflags: -X github.com/parleyhq/parley/internal/version.GitCommit=$(git rev-parse HEAD)
var GitCommit = "unknown"

// GetCurrentVersion returns the version string, suffixed with the short
// commit hash outside of release builds.
func GetCurrentVersion(mode string) string {
	if mode == "prod" {
		return Version
	}
	return String()
}

// IsVersionGreaterOrEqualThan reports whether version >= target in semver
// order. Used when deciding whether stored data needs migration.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare(fmt.Sprintf("v%s", version), fmt.Sprintf("v%s", target)) > -1
}

// String returns the version string with the short commit hash appended when
// one was stamped in.
func String() string {
	v := Version
	if GitCommit != "" && GitCommit != "unknown" {
		shortCommit := GitCommit
		if len(shortCommit) > 8 {
			shortCommit = shortCommit[:8]
		}
		v = fmt.Sprintf("%s-%s", v, shortCommit)
	}
	return v
}
