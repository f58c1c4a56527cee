package version

import (
	"strings"
	"testing"
)

func TestInfoDevelopmentBuild(t *testing.T) {
	origVersion, origBuildTime, origCommit := Version, BuildTime, GitCommit
	t.Cleanup(func() { Version, BuildTime, GitCommit = origVersion, origBuildTime, origCommit })

	Version, BuildTime, GitCommit = "dev", "unknown", "unknown"
	if got := Info(); got != "dev (development build)" {
		t.Errorf("Info() = %q", got)
	}
}

func TestInfoReleaseBuild(t *testing.T) {
	origVersion, origBuildTime, origCommit := Version, BuildTime, GitCommit
	t.Cleanup(func() { Version, BuildTime, GitCommit = origVersion, origBuildTime, origCommit })

	Version = "v1.2.0"
	BuildTime = "2025-06-01T10:30:00Z"
	GitCommit = "0123456789abcdef"

	got := Info()
	if !strings.HasPrefix(got, "v1.2.0 (built 2025-06-01 10:30:00 UTC") {
		t.Errorf("Info() = %q", got)
	}
	if !strings.Contains(got, "commit 01234567") {
		t.Errorf("Info() = %q, want truncated commit", got)
	}
}

func TestGetBuildInfoPopulatesRuntimeFields(t *testing.T) {
	info := GetBuildInfo()
	if info.GoVersion == "" {
		t.Error("GoVersion is empty")
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q, want os/arch", info.Platform)
	}
}
