// Package version carries build metadata set with -ldflags -X.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Info is the build metadata as reported by the status endpoint.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

func Current() Info {
	return Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
}

func String() string {
	return fmt.Sprintf("celltower %s (%s, built %s)", Version, GitSHA, BuildTime)
}
