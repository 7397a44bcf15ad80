// Package version holds the build-time version variables for the posture binary.
// GoReleaser injects the real values via -ldflags at release time. Local
// builds without ldflags report the VCS stamp the Go toolchain embeds, when
// there is one.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are overridden by GoReleaser ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns the formatted version string printed by posture version.
func Info() string {
	commit, date := Commit, Date
	if commit == "none" {
		if rev, at, ok := vcsStamp(); ok {
			commit, date = rev, at
		}
	}
	return fmt.Sprintf(
		"posture version %s\ncommit: %s\nbuilt: %s\ngo: %s\n",
		Version,
		commit,
		date,
		runtime.Version(),
	)
}

func vcsStamp() (rev, at string, ok bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.time":
			at = s.Value
		}
	}
	return rev, at, rev != ""
}
