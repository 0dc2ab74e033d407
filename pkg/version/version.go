// Package version derives the build version from embedded VCS metadata.
package version

import (
	"runtime/debug"
	"sync"
)

// AppName prefixes version strings in logs and health responses.
const AppName = "dndtracker"

// commitOverride can be set with -ldflags for container builds that have no
// .git directory available.
var commitOverride string

var commit = sync.OnceValue(func() string {
	raw := commitOverride
	if raw == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					raw = s.Value
					break
				}
			}
		}
	}
	if raw == "" {
		return "dev"
	}
	if len(raw) > 8 {
		raw = raw[:8]
	}
	return raw
})

// Commit returns the short git commit hash, or "dev" when no VCS metadata
// was embedded (go test, non-git builds).
func Commit() string {
	return commit()
}

// Full returns "dndtracker/<commit>".
func Full() string {
	return AppName + "/" + Commit()
}
