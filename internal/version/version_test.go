package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, sha, bt string) { Version, GitSHA, BuildTime = v, sha, bt }(Version, GitSHA, BuildTime)
	Version, GitSHA, BuildTime = "1.2.0", "abc123", "2026-03-01T12:00:00Z"

	if got, want := String(), "celltower 1.2.0 (abc123, built 2026-03-01T12:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := Current(); got.Version != "1.2.0" || got.GitSHA != "abc123" {
		t.Errorf("Current() = %+v", got)
	}
}
