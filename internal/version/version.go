// Package version reports what konnector build is running. Release builds
// set the variables below with -ldflags; go install builds fall back to the
// module and VCS data embedded by the toolchain.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(info)
	}
}

// fillFromBuildInfo only touches values ldflags left at their defaults.
func fillFromBuildInfo(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && Commit == "none":
			Commit = s.Value
			if len(Commit) > 12 {
				Commit = Commit[:12]
			}
		case s.Key == "vcs.time" && Date == "unknown":
			Date = s.Value
		}
	}
}

// IsDev reports whether this is an unreleased build.
func IsDev() bool {
	return Version == "dev"
}

// Full returns the line printed by `konnector version`.
func Full() string {
	if IsDev() {
		if Commit != "none" {
			return fmt.Sprintf("konnector version dev (%s)", Commit)
		}
		return "konnector version dev (built from source)"
	}
	return fmt.Sprintf("konnector version %s (%s, %s)", Version, Commit, Date)
}

// UserAgent is sent with every Clickup and Todoist request.
func UserAgent() string {
	return "konnector/" + Version + " (https://github.com/basecamp/konnector)"
}
