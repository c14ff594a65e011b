package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"bad level", func(c *Config) { c.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Format = "xml" }, true},
		{"bad output", func(c *Config) { c.Output = "syslog" }, true},
		{"file without name", func(c *Config) { c.Output = "file"; c.File.Filename = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewWritesToFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.Format = "json"
	cfg.File.Filename = filepath.Join(t.TempDir(), "nested", "app.log")

	log, err := New(cfg)
	require.NoError(t, err)
	log.Info("[test] hello")
	_ = log.Sync()

	data, err := os.ReadFile(cfg.File.Filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[test] hello")
}
