/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consoletext/consoletext-go/config"
)

func loadConfig(t *testing.T, yamlData string) (*Config, error) {
	t.Helper()
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(yamlData), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(t, "")
	require.NoError(t, err)

	want := NewDefaultConfig()
	require.Equal(t, want.Level, cfg.Level)
	require.Equal(t, want.Format, cfg.Format)
	require.Equal(t, want.Output, cfg.Output)
	require.Equal(t, want.File, cfg.File)
	require.Equal(t, want.Masking.Enabled, cfg.Masking.Enabled)
	require.Equal(t, want.Masking.UseDefaultRules, cfg.Masking.UseDefaultRules)
	require.Empty(t, cfg.Masking.Rules)
}

func TestConfigFromYAML(t *testing.T) {
	cfg, err := loadConfig(t, `
log:
  level: DEBUG
  format: text
  output: file
  nocolor: true
  addCaller: true
  file:
    path: /var/log/consoletext.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 5
  masking:
    useDefaultRules: false
    rules:
      - field: password
        formats: [json, urlencoded]
        masks:
          - regexp: "pw-[0-9]+"
            mask: "pw-***"
`)
	require.NoError(t, err)

	require.Equal(t, LevelDebug, cfg.Level)
	require.Equal(t, FormatText, cfg.Format)
	require.Equal(t, OutputFile, cfg.Output)
	require.True(t, cfg.NoColor)
	require.True(t, cfg.AddCaller)
	require.Equal(t, FileOutputConfig{
		Path: "/var/log/consoletext.log",
		Rotation: FileRotationConfig{
			Compress:   true,
			MaxSize:    100 * 1024 * 1024,
			MaxBackups: 5,
		},
	}, cfg.File)
	require.True(t, cfg.Masking.Enabled)
	require.False(t, cfg.Masking.UseDefaultRules)
	require.Equal(t, []MaskingRuleConfig{{
		Field:   "password",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
		Masks:   []MaskConfig{{RegExp: "pw-[0-9]+", Mask: "pw-***"}},
	}}, cfg.Masking.Rules)
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown level",
			yaml:    "log:\n  level: trace",
			wantErr: "log.level: unknown value",
		},
		{
			name:    "unknown format",
			yaml:    "log:\n  format: xml",
			wantErr: "log.format: unknown value",
		},
		{
			name:    "unknown output",
			yaml:    "log:\n  output: syslog",
			wantErr: "log.output: unknown value",
		},
		{
			name:    "file output without path",
			yaml:    "log:\n  output: file",
			wantErr: "log.file.path: cannot be empty",
		},
		{
			name:    "too small rotation size",
			yaml:    "log:\n  file:\n    rotation:\n      maxSize: 1K",
			wantErr: "log.file.rotation.maxSize: should be >=",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(t, tt.yaml)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
