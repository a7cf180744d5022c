package config

import (
	"strings"
	"testing"
)

func TestVersionString(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	s := VersionString()
	if !strings.HasPrefix(s, "pawwatch 1.2.3 (") {
		t.Errorf("unexpected version string %q", s)
	}
	if UserAgent() != "pawwatch/1.2.3" {
		t.Errorf("user agent = %q", UserAgent())
	}
	if GetBuildInfo().Platform == "" {
		t.Error("missing platform")
	}
}
