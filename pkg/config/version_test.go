package config

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetBuildInfo(t *testing.T) {
	old := Commit
	Commit = "0123456789abcdef0123"
	t.Cleanup(func() { Commit = old })

	info := GetBuildInfo()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.Commit != "0123456789abcdef0123" {
		t.Errorf("Commit = %q, ldflags value should win", info.Commit)
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
	if info.BuildTime == "" {
		t.Error("BuildTime should never be empty")
	}
}

func TestVersionStringShortensCommit(t *testing.T) {
	old := Commit
	Commit = "0123456789abcdef0123"
	t.Cleanup(func() { Commit = old })

	s := VersionString()
	if !strings.HasPrefix(s, "callwatch "+Version+" (0123456789ab") {
		t.Errorf("VersionString() = %q", s)
	}
	if strings.Contains(s, "0123456789abc") {
		t.Errorf("commit not shortened: %q", s)
	}
}
