// Package version reports build and VCS information for the photo-search binary.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

const unknown = "unknown"

// Set at build time with -ldflags "-X github.com/richardwooding/photo-search/version.Version=...".
var (
	Version   = "dev"
	GitCommit = unknown
	BuildDate = unknown
)

// Info contains version information
type Info struct {
	Version   string
	GitCommit string
	BuildDate string
	GoVersion string
}

// Get returns version information, filling commit and date from the VCS
// stamp of the binary when they were not set at build time.
func Get() Info {
	info := Info{
		Version:   strings.TrimPrefix(Version, "v"),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}

	if Version != "dev" {
		return info
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if v := buildInfo.Main.Version; v != "" && v != "(devel)" {
		info.Version = strings.TrimPrefix(v, "v")
	}
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == unknown {
				info.GitCommit = shortCommit(setting.Value)
			}
		case "vcs.time":
			if info.BuildDate == unknown {
				info.BuildDate = setting.Value
			}
		}
	}
	return info
}

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// GetVersion returns just the version string
func GetVersion() string {
	return Get().Version
}

// GetFullVersion returns the version with the short commit appended when known.
func GetFullVersion() string {
	info := Get()
	if info.GitCommit != unknown && info.GitCommit != "" {
		return info.Version + "-" + info.GitCommit
	}
	return info.Version
}

// UserAgent is sent on every outbound request.
func UserAgent() string {
	return "photo-search/" + GetVersion()
}
