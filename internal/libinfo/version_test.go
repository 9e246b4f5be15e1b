/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package libinfo

import (
	"debug/buildinfo"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestExtractLibVersion(t *testing.T) {
	tests := []struct {
		name        string
		buildInfo   *buildinfo.BuildInfo
		expectedVer string
	}{
		{
			name: "dependency",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: moduleName, Version: "v1.2.3"}},
			},
			expectedVer: "v1.2.3",
		},
		{
			name: "dependency, v2",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: moduleName + "/v2", Version: "v2.0.0"}},
			},
			expectedVer: "v2.0.0",
		},
		{
			name: "similar path is not matched",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: moduleName + "-extra", Version: "v9.9.9"}},
			},
			expectedVer: "",
		},
		{
			name: "main module",
			buildInfo: &buildinfo.BuildInfo{
				Main: debug.Module{Path: moduleName, Version: "v0.4.0"},
			},
			expectedVer: "v0.4.0",
		},
		{
			name: "main module, devel build",
			buildInfo: &buildinfo.BuildInfo{
				Main: debug.Module{Path: moduleName, Version: "(devel)"},
			},
			expectedVer: "",
		},
		{
			name:        "nil build info",
			buildInfo:   nil,
			expectedVer: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expectedVer, extractLibVersion(tt.buildInfo, moduleName))
		})
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	require.True(t, strings.HasPrefix(ua, LibShortName+"/v"), ua)
}

func TestAddPrometheusLibVersionLabel(t *testing.T) {
	labels := prometheus.Labels{"a": "b"}
	res := AddPrometheusLibVersionLabel(labels)
	require.Equal(t, GetLibVersion(), res[PrometheusLibVersionLabel])
	require.Equal(t, "b", res["a"])
	require.NotContains(t, labels, PrometheusLibVersionLabel)
}
