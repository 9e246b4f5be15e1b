/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package libinfo resolves the version of this library as it's linked into the running binary.
package libinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LibShortName is used as the product token of the User-Agent header.
const LibShortName = "consoletext-go"

const moduleName = "github.com/consoletext/" + LibShortName

// PrometheusLibVersionLabel is the constant label carrying the library version on every metric.
const PrometheusLibVersionLabel = "consoletext_go_version"

// Version may be set at link time (-ldflags "-X ...libinfo.Version=v1.2.3") for the CLI binary,
// where the module is the main module and build info reports "(devel)".
var Version string

var libVersion string
var libVersionOnce sync.Once

// GetLibVersion returns the module version, or "v0.0.0" if it can't be determined.
func GetLibVersion() string {
	libVersionOnce.Do(initLibVersion)
	return libVersion
}

// UserAgent returns "consoletext-go/<version>".
func UserAgent() string {
	return LibShortName + "/" + GetLibVersion()
}

// AddPrometheusLibVersionLabel returns a copy of labels with the library version label added.
func AddPrometheusLibVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusLibVersionLabel] = GetLibVersion()
	return labelsCopy
}

func initLibVersion() {
	libVersion = Version
	if libVersion == "" {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			libVersion = extractLibVersion(buildInfo, moduleName)
		}
	}
	if libVersion == "" {
		libVersion = "v0.0.0"
	}
}

var versionSuffixRe = regexp.MustCompile(`^(/v[0-9]+)?$`)

// extractLibVersion looks modName up among the dependencies, and then the main module.
// A "/vN" major version suffix on the path is accepted.
func extractLibVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	matches := func(path string) bool {
		return len(path) >= len(modName) && path[:len(modName)] == modName &&
			versionSuffixRe.MatchString(path[len(modName):])
	}
	for _, dep := range buildInfo.Deps {
		if matches(dep.Path) {
			return dep.Version
		}
	}
	if matches(buildInfo.Main.Path) && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	return ""
}
