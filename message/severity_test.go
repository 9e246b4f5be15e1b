/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Severity
		wantErr bool
	}{
		{name: "empty defaults to info", input: "", want: SeverityInfo},
		{name: "critical", input: "critical", want: SeverityCritical},
		{name: "mixed case", input: "Warning", want: SeverityWarning},
		{name: "surrounding spaces", input: " error ", want: SeverityError},
		{name: "unknown", input: "fatal", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSeverity(tt.input)
			if tt.wantErr {
				require.ErrorContains(t, err, `unknown severity "fatal"`)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSeverityIsUrgent(t *testing.T) {
	require.True(t, SeverityCritical.IsUrgent())
	require.True(t, SeverityError.IsUrgent())
	require.False(t, SeverityWarning.IsUrgent())
	require.False(t, SeverityInfo.IsUrgent())
	require.Equal(t, "warning", SeverityWarning.String())
}
