// Package version holds the server's semantic version, reported by the
// UDP discovery responder, the HTTP /version endpoint and the CLI.
package version

import "fmt"

const (
	Major = 0
	Minor = 3
	Patch = 0
)

// String returns the dotted semantic version.
func String() string {
	return fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
}
