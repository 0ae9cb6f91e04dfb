// Package buildinfo carries version data stamped in with -ldflags "-X".
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info is the JSON form of pdpsolve -version.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}

// String renders the version line printed by pdpsolve -version.
func String() string {
	s := Version
	if Commit != "" {
		s += fmt.Sprintf(" (commit %s)", Commit)
	}
	if BuiltAt != "" {
		s += " built " + BuiltAt
	}
	return s
}
