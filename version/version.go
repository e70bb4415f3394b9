// Package version reports the build identifier exchanged in the setup handshake.
package version

import (
	"runtime/debug"
)

// BuildID is set at link time:
//
//	go build -ldflags "-X github.com/cwsmith/redev/version.BuildID=$(git rev-parse HEAD)"
var BuildID string

// Unknown is reported when no build identifier is available.
const Unknown = "unknown"

// Get returns the build identifier.
//
// The link-time BuildID wins; otherwise the VCS revision recorded by the Go
// toolchain is used, suffixed with "-dirty" for modified trees.
func Get() string {
	if BuildID != "" {
		return BuildID
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Unknown
	}

	return fromSettings(info.Settings)
}

func fromSettings(settings []debug.BuildSetting) string {
	var revision string
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	if revision == "" {
		return Unknown
	}
	if dirty {
		return revision + "-dirty"
	}

	return revision
}
