// Package version exposes build and dependency information extracted from
// the running binary, used to construct a default User-Agent string for the
// usage agent and supergraph fetcher.
package version

import (
	"fmt"
	"runtime/debug"
	"sort"
)

// modulePath is the module path of this repository, used to identify our
// own entry in the build's dependency graph.
const modulePath = "go.hive.dev/agent"

// DependencyInfo describes one module dependency and its resolved version.
type DependencyInfo struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Replace string `json:"replace,omitempty"`
}

// BuildInfo holds build-time information about the hosting binary.
type BuildInfo struct {
	GoVersion    string           `json:"goVersion"`
	MainModule   string           `json:"mainModule"`
	MainVersion  string           `json:"mainVersion"`
	Dependencies []DependencyInfo `json:"dependencies"`
}

// GetBuildInfo extracts build information from the current binary via
// runtime/debug.
func GetBuildInfo() *BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return &BuildInfo{GoVersion: "unknown", MainModule: "unknown", MainVersion: "unknown"}
	}

	build := &BuildInfo{
		GoVersion:    info.GoVersion,
		MainModule:   info.Path,
		MainVersion:  info.Main.Version,
		Dependencies: make([]DependencyInfo, 0, len(info.Deps)),
	}

	for _, dep := range info.Deps {
		d := DependencyInfo{Path: dep.Path, Version: dep.Version}
		if dep.Replace != nil {
			d.Replace = dep.Replace.Path + "@" + dep.Replace.Version
		}
		build.Dependencies = append(build.Dependencies, d)
	}

	sort.Slice(build.Dependencies, func(i, j int) bool {
		return build.Dependencies[i].Path < build.Dependencies[j].Path
	})

	return build
}

// AgentVersion returns the resolved version of this module as seen by the
// host binary's dependency graph, or "dev" when running from source.
func AgentVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	if info.Path == modulePath {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		return "dev"
	}

	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			if dep.Replace != nil {
				return dep.Replace.Version + " (replaced)"
			}
			return dep.Version
		}
	}

	return "unknown"
}

// DefaultUserAgent builds the default User-Agent string sent with every
// outbound request, e.g. "hive-agent-go/dev".
func DefaultUserAgent() string {
	return fmt.Sprintf("hive-agent-go/%s", AgentVersion())
}

// GetDependency returns version information for a specific dependency path,
// or nil if it is not part of the build.
func GetDependency(path string) *DependencyInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			d := &DependencyInfo{Path: dep.Path, Version: dep.Version}
			if dep.Replace != nil {
				d.Replace = dep.Replace.Path + "@" + dep.Replace.Version
			}
			return d
		}
	}
	return nil
}
