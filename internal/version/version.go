// Package version exposes the build metadata served by the /version
// endpoint.
package version

import "runtime"

// Populated at link time:
//
//	-ldflags "-X .../internal/version.Version=v1.2.3 ..."
//
// The defaults identify a local, untagged build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the /version response payload.
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get assembles the build info for the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		GoVersion: runtime.Version(),
		Commit:    Commit,
		BuildTime: BuildTime,
	}
}
