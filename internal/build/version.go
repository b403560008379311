// Package build carries build metadata and the logging bootstrap shared by
// the broker binaries.
package build

import "fmt"

// Version components. Overridden at link time for release builds.
var (
	// Commit is the git commit the binary was built from.
	Commit string

	appMajor = 0
	appMinor = 1
	appPatch = 0

	// appPreRelease is appended to non-release builds.
	appPreRelease = "beta"
)

// Version returns the semantic version string of the broker.
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		v = fmt.Sprintf("%s-%s", v, appPreRelease)
	}

	return v
}
