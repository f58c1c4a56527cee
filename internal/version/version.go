// Package version carries the build identity stamped in at link time.
package version

import (
	"fmt"
	"runtime"
	"time"
)

// Set at build time via -ldflags, e.g.:
//
//	-X github.com/burrowgate/burrowgate/internal/version.Version=v1.2.0
//	-X github.com/burrowgate/burrowgate/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)
//	-X github.com/burrowgate/burrowgate/internal/version.GitCommit=$(git rev-parse HEAD)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// BuildInfo contains the complete build identity.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the build identity of this binary.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Info returns a one-line version string for CLI output.
func Info() string {
	info := GetBuildInfo()
	if info.BuildTime == "unknown" {
		return fmt.Sprintf("%s (development build)", info.Version)
	}

	buildTime, err := time.Parse(time.RFC3339, info.BuildTime)
	if err != nil {
		return fmt.Sprintf("%s (built %s)", info.Version, info.BuildTime)
	}

	commit := info.GitCommit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return fmt.Sprintf("%s (built %s, commit %s)", info.Version, buildTime.Format("2006-01-02 15:04:05 UTC"), commit)
}
