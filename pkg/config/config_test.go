package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_root: /srv/corectl\nmax_concurrent_jobs: 42\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/corectl", cfg.DataRoot)
	assert.Equal(t, 42, cfg.MaxConcurrentJobs)
	assert.Equal(t, Default().HTTPListen, cfg.HTTPListen)
}

func TestApplyEnvOverridesFields(t *testing.T) {
	cfg := Default()
	t.Setenv("CORECTL_DATA_ROOT", "/env/data")
	t.Setenv("CORECTL_MAX_CONCURRENT_JOBS", "7")
	cfg.ApplyEnv()
	assert.Equal(t, "/env/data", cfg.DataRoot)
	assert.Equal(t, 7, cfg.MaxConcurrentJobs)
}

func TestValidateRejectsEmptyDataRoot(t *testing.T) {
	cfg := Default()
	cfg.DataRoot = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsWebhookWithoutURL(t *testing.T) {
	cfg := Default()
	cfg.Webhooks = []WebhookPolicy{{MaxAttempts: 3}}
	assert.Error(t, cfg.Validate())
}
