// Package version exposes build metadata stamped via -ldflags, falling back
// to what the Go toolchain records in the binary.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
)

// AppName is the service name used in logs, metrics, traces and profiles.
const AppName = "onterra-web"

// Stamped with -ldflags "-X github.com/onterra/onterra-web/internal/version.Version=...".
var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildID    string
	GoVersion  string
	VCSDirty   *bool
)

// Info is the build identity of the running binary.
type Info struct {
	AppName    string `json:"app"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildID    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// Get merges the ldflags values with the toolchain build info.
func Get() Info {
	bi, _ := debug.ReadBuildInfo()
	return merge(stamped(), bi)
}

func stamped() Info {
	return Info{
		AppName:    AppName,
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildID:    BuildID,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
}

// merge fills the gaps in in from bi. Explicit ldflags values win except
// for the Go version, which the toolchain always knows better.
func merge(in Info, bi *debug.BuildInfo) Info {
	if bi == nil {
		return in
	}
	if bi.GoVersion != "" {
		in.GoVersion = bi.GoVersion
	}
	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}
	if rev := settings["vcs.revision"]; rev != "" && in.Commit == "none" {
		in.Commit = rev
	}
	if ts, ok := settings["vcs.time"]; ok {
		in.CommitDate = ts
		if in.BuildDate == "" {
			in.BuildDate = ts
		}
	}
	// absent or garbled keeps whatever ldflags set
	if dirty, err := strconv.ParseBool(settings["vcs.modified"]); err == nil {
		in.VCSDirty = &dirty
	}
	return in
}

// Dirty reports whether the binary was built from a modified tree. Unknown
// counts as clean.
func (i Info) Dirty() bool { return i.VCSDirty != nil && *i.VCSDirty }

// String is the one-line form printed by -V and `contentctl version`.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%t)",
		i.AppName, i.Version, i.Commit, i.CommitDate, i.BuildID, i.BuildDate, i.GoVersion, i.Dirty())
}
