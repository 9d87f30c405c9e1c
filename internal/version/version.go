// Package version reports the build's version, set with -ldflags or read
// from the embedded module build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/conneroisu/assetpipe/internal/version.Version=v1.2.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Dirty     bool      `json:"dirty" yaml:"dirty"`
}

// Info collects the build information of the running binary.
func Info() BuildInfo {
	var built time.Time
	if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
		built = t
	}

	return BuildInfo{
		Version:   Short(),
		GitCommit: commit(),
		BuildTime: built,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Dirty:     setting("vcs.modified") == "true",
	}
}

// Short returns the version for display: the ldflags version, the module
// version, or dev-<commit> for untagged builds.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	if c := commit(); len(c) >= 7 {
		return "dev-" + c[:7]
	}

	return "dev"
}

// IsRelease reports whether this is a tagged build.
func IsRelease() bool {
	v := Short()
	return v != "dev" && !strings.HasPrefix(v, "dev-")
}

// String renders the build info as aligned lines.
func (b BuildInfo) String() string {
	lines := []string{"Version:  " + b.Version}
	if b.GitCommit != "unknown" {
		lines = append(lines, "Commit:   "+b.GitCommit)
	}
	if !b.BuildTime.IsZero() {
		lines = append(lines, "Built:    "+b.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "Go:       "+b.GoVersion, "Platform: "+b.Platform)
	if b.Dirty {
		lines = append(lines, "Modified: true")
	}

	return strings.Join(lines, "\n")
}

func commit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := setting("vcs.revision"); rev != "" {
		return rev
	}

	return "unknown"
}

func setting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}

	return ""
}
