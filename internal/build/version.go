package build

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0
)

var (
	// Commit is stamped at link time with -ldflags "-X ...build.Commit=".
	Commit string

	// GoVersion is filled from the embedded build info when available.
	GoVersion string
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	GoVersion = info.GoVersion
	if Commit != "" {
		return
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			Commit = setting.Value
		}
	}
}

// Version returns the semantic version string of the binaries.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

// Summary renders the version line printed by both binaries.
func Summary(binary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s", binary, Version())
	if Commit != "" {
		fmt.Fprintf(&b, " commit=%s", Commit)
	}
	if GoVersion != "" {
		fmt.Fprintf(&b, " go=%s", GoVersion)
	}

	return b.String()
}
