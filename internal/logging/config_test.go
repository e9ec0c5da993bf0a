package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Output.Stdout)
	assert.False(t, cfg.Output.OTEL)
	assert.True(t, cfg.Sampling.Enabled)
	assert.True(t, cfg.Redaction.Enabled)
	assert.Equal(t, "takeoffd", cfg.Fields["service"])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad format",
			mutate:  func(c *Config) { c.Format = "logfmt" },
			wantErr: "format must be",
		},
		{
			name: "no outputs",
			mutate: func(c *Config) {
				c.Output.Stdout = false
				c.Output.OTEL = false
			},
			wantErr: "at least one output",
		},
		{
			name: "zero sampling tick",
			mutate: func(c *Config) {
				c.Sampling.Enabled = true
				c.Sampling.Tick = 0
			},
			wantErr: "sampling tick",
		},
		{
			name: "negative sampling counts",
			mutate: func(c *Config) {
				c.Sampling.Initial = -1
			},
			wantErr: "sampling counts",
		},
		{
			name:    "negative caller skip",
			mutate:  func(c *Config) { c.Caller.Skip = -1 },
			wantErr: "caller skip",
		},
		{
			name: "invalid redaction pattern",
			mutate: func(c *Config) {
				c.Redaction.Patterns = append(c.Redaction.Patterns, "([unclosed")
			},
			wantErr: "invalid redaction pattern",
		},
		{
			name: "oversized redaction pattern",
			mutate: func(c *Config) {
				c.Redaction.Patterns = append(c.Redaction.Patterns, strings.Repeat("a", 201))
			},
			wantErr: "too long",
		},
		{
			name: "empty field key",
			mutate: func(c *Config) {
				c.Fields[""] = "x"
			},
			wantErr: "field key cannot be empty",
		},
		{
			name: "empty field value",
			mutate: func(c *Config) {
				c.Fields["component"] = ""
			},
			wantErr: "empty value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLevelFromString(t *testing.T) {
	level, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, level)

	level, err = LevelFromString("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	level, err = LevelFromString("error")
	require.NoError(t, err)
	assert.Equal(t, zapcore.ErrorLevel, level)

	_, err = LevelFromString("shouty")
	assert.Error(t, err)
}
