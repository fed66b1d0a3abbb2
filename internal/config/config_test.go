package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", cfg.Output.Format)
	assert.Equal(t, "last", cfg.Parsing.WavelengthPolicy)
	assert.True(t, cfg.Processing.Catalog)
	assert.False(t, cfg.Processing.FailFast)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "specconv.yaml")
	content := `
output:
  format: duckdb
  directory: out
parsing:
  wavelength_policy: strict
processing:
  fail_fast: true
server:
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", cfg.Output.Format)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.Output.Directory)
	assert.Equal(t, "strict", cfg.Parsing.WavelengthPolicy)
	assert.True(t, cfg.Processing.FailFast)
	assert.True(t, cfg.Processing.Catalog, "unset keys keep their defaults")
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9000", cfg.GetServerAddr())
}

func TestLoadConfigRejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parsing:\n  wavelength_policy: first\n"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "wavelength_policy")
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: [unterminated"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SPECCONV_FORMAT", "duckdb")
	t.Setenv("SPECCONV_OUTPUT_DIR", "/tmp/spectra")
	t.Setenv("SPECCONV_LOG_LEVEL", "debug")
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "duckdb", cfg.Output.Format)
	assert.Equal(t, "/tmp/spectra", cfg.Output.Directory)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "specconv.yaml")
	cfg := DefaultConfig()
	cfg.Output.Format = "duckdb"
	cfg.Output.Directory = "/data/out"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEnsureOutputDirectory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Directory = filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, cfg.EnsureOutputDirectory())
	info, err := os.Stat(cfg.Output.Directory)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOutputPerm(t *testing.T) {
	perm, err := OutputConfig{}.Perm()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), perm)

	perm, err = OutputConfig{FileMode: "0600"}.Perm()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), perm)

	_, err = OutputConfig{FileMode: "rw-r--r--"}.Perm()
	assert.Error(t, err)
}
