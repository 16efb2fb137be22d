// Package version reports what hammer binary is running: its release, the
// commit it was built from and the compiler and runtime versions bundled in.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// These variables are set at build time using -ldflags, for example
// -X github.com/conneroisu/hammer/internal/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	// BuildTime is RFC3339.
	BuildTime = "unknown"
)

const (
	esbuildModule = "github.com/evanw/esbuild"
	gojaModule    = "github.com/dop251/goja"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Esbuild   string    `json:"esbuild"`
	Goja      string    `json:"goja"`
	Dirty     bool      `json:"dirty"`
	Release   bool      `json:"release"`
}

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Get collects the build information.
func Get() BuildInfo {
	info := BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Esbuild:   dependency(esbuildModule),
		Goja:      dependency(gojaModule),
		Dirty:     setting("vcs.modified") == "true",
	}
	info.Release = info.Version != "dev" && !strings.HasPrefix(info.Version, "dev-")

	return info
}

// GetVersion returns the release version, falling back to the module
// version and then to dev-<short commit>.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	if rev := setting("vcs.revision"); len(rev) >= 7 {
		return "dev-" + rev[:7]
	}

	return "dev"
}

// GetGitCommit returns the commit hash.
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := setting("vcs.revision"); rev != "" {
		return rev
	}

	return "unknown"
}

// Short renders the one-line form printed by `hammer version`.
func (b BuildInfo) Short() string {
	var sb strings.Builder
	sb.WriteString("hammer " + b.Version)
	if len(b.GitCommit) >= 7 && b.GitCommit != "unknown" && !strings.HasSuffix(b.Version, b.GitCommit[:7]) {
		fmt.Fprintf(&sb, " (%s)", b.GitCommit[:7])
	}
	if b.Dirty {
		sb.WriteString(" (dirty)")
	}

	return sb.String()
}

// Detailed renders every field, one per line.
func (b BuildInfo) Detailed() string {
	lines := []string{b.Short()}
	if b.GitCommit != "unknown" {
		lines = append(lines, "Commit: "+b.GitCommit)
	}
	if !b.BuildTime.IsZero() {
		lines = append(lines, "Built: "+b.BuildTime.UTC().Format(time.RFC3339))
	}
	lines = append(lines,
		"Go: "+b.GoVersion,
		"Platform: "+b.Platform,
		"esbuild: "+b.Esbuild,
		"goja: "+b.Goja,
	)

	return strings.Join(lines, "\n")
}

func setting(key string) string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}

	return ""
}

func dependency(path string) string {
	info, ok := readBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil {
			return dep.Replace.Version
		}
		return dep.Version
	}

	return "unknown"
}

// parseTime accepts RFC3339 with or without a zone, zero on failure.
func parseTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}

	return time.Time{}
}
