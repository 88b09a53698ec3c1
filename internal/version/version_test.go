package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func ptr(b bool) *bool { return &b }

func TestMerge(t *testing.T) {
	settings := func(kv ...string) []debug.BuildSetting {
		var out []debug.BuildSetting
		for i := 0; i+1 < len(kv); i += 2 {
			out = append(out, debug.BuildSetting{Key: kv[i], Value: kv[i+1]})
		}
		return out
	}
	base := Info{AppName: AppName, Version: "dev", Commit: "none"}

	tests := []struct {
		name string
		in   Info
		bi   *debug.BuildInfo
		want Info
	}{
		{
			name: "no build info",
			in:   base,
			want: base,
		},
		{
			name: "vcs fills gaps",
			in:   base,
			bi: &debug.BuildInfo{GoVersion: "go1.24.11", Settings: settings(
				"vcs.revision", "abc123", "vcs.time", "2026-01-02T03:04:05Z", "vcs.modified", "true")},
			want: Info{AppName: AppName, Version: "dev", Commit: "abc123", CommitDate: "2026-01-02T03:04:05Z",
				BuildDate: "2026-01-02T03:04:05Z", GoVersion: "go1.24.11", VCSDirty: ptr(true)},
		},
		{
			name: "ldflags win",
			in:   Info{AppName: AppName, Version: "v1.2.0", Commit: "deadbeef", BuildDate: "2026-02-01", VCSDirty: ptr(true)},
			bi: &debug.BuildInfo{GoVersion: "go1.24.11", Settings: settings(
				"vcs.revision", "abc123", "vcs.time", "2026-01-02T03:04:05Z", "vcs.modified", "false")},
			want: Info{AppName: AppName, Version: "v1.2.0", Commit: "deadbeef", CommitDate: "2026-01-02T03:04:05Z",
				BuildDate: "2026-02-01", GoVersion: "go1.24.11", VCSDirty: ptr(false)},
		},
		{
			name: "dirty flag absent keeps ldflags",
			in:   Info{AppName: AppName, Commit: "none", VCSDirty: ptr(true)},
			bi:   &debug.BuildInfo{GoVersion: "go1.24.11"},
			want: Info{AppName: AppName, Commit: "none", GoVersion: "go1.24.11", VCSDirty: ptr(true)},
		},
		{
			name: "garbled dirty flag ignored",
			in:   base,
			bi:   &debug.BuildInfo{Settings: settings("vcs.modified", "maybe")},
			want: base,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := merge(tt.in, tt.bi)
			if got.String() != tt.want.String() {
				t.Fatalf("merge =\n  %s\nwant\n  %s", got, tt.want)
			}
			if (got.VCSDirty == nil) != (tt.want.VCSDirty == nil) {
				t.Fatalf("VCSDirty = %v, want %v", got.VCSDirty, tt.want.VCSDirty)
			}
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.AppName != AppName {
		t.Fatalf("AppName = %q, want %q", info.AppName, AppName)
	}
	if info.GoVersion == "" {
		t.Fatal("GoVersion empty")
	}
	s := info.String()
	if !strings.HasPrefix(s, AppName+" "+info.Version+" (") {
		t.Fatalf("String() = %q", s)
	}
	if !strings.HasSuffix(s, "dirty=false)") && !strings.HasSuffix(s, "dirty=true)") {
		t.Fatalf("String() missing dirty flag: %q", s)
	}
}

func TestDirty(t *testing.T) {
	for _, tt := range []struct {
		in   *bool
		want bool
	}{{nil, false}, {ptr(false), false}, {ptr(true), true}} {
		if got := (Info{VCSDirty: tt.in}).Dirty(); got != tt.want {
			t.Errorf("Dirty(%v) = %v", tt.in, got)
		}
	}
}
