// Package version reports the release and build of this module.
package version

import (
	"runtime/debug"

	"github.com/pzverkov/bolt8/internal/constants"
)

// Release is the semantic version of this tree.
const Release = "v0.1.0"

// Protocol is the Noise protocol name this release speaks.
const Protocol = constants.ProtocolName

// String returns Release.
func String() string { return Release }

// Full returns the release with the protocol name, plus the VCS revision
// when the binary was built from a checkout.
func Full() string {
	s := "bolt8 " + Release + " (" + Protocol + ")"
	if rev := Commit(); rev != "" {
		s += " " + rev
	}
	return s
}

// Commit returns the short VCS revision stamped by the go command, with a
// "+dirty" suffix for modified trees. It is empty for test binaries and
// builds outside a checkout.
func Commit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "+dirty"
			}
		}
	}
	if rev == "" {
		return ""
	}
	return rev[:min(len(rev), 12)] + dirty
}
