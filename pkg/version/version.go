// Package version reports which build of watchtower is running.
package version

import "runtime/debug"

const app = "watchtower"

// commitOverride exists for container builds where no .git directory is
// present at compile time:
//
//	-ldflags "-X github.com/agentfleet/watchtower/pkg/version.commitOverride=<sha>"
var commitOverride string

// Commit is the short revision this binary was built from, resolved once
// at init: the ldflags override wins, then the VCS revision embedded by
// the toolchain, then "dev" for test and non-git builds.
var Commit = resolve()

func resolve() string {
	if commitOverride != "" {
		return short(commitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return short(s.Value)
			}
		}
	}
	return "dev"
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "watchtower/<commit>", reported by the health endpoint
// and the startup log.
func Full() string {
	return app + "/" + Commit
}
