// Package buildconfig carries build-time identity injected via ldflags:
//
//	go build -ldflags "-X .../internal/buildconfig.version=v0.3.0 \
//	  -X .../internal/buildconfig.commit=$(git rev-parse --short HEAD)"
package buildconfig

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string { return version }

func Commit() string { return commit }

// String renders the identity the way startup logs and the metrics
// endpoint report it.
func String() string {
	return fmt.Sprintf("doxa %s (%s)", version, commit)
}

// VersionInfo returns the identity as a map for JSON surfaces.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
