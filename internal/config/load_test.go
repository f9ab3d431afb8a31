package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoad_ParsesValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
root_path = "/srv/sync"
environment = "prod"
conflict_policy = "local_wins"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "/srv/sync", cfg.RootPath)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, ConflictPolicyLocalWins, cfg.ConflictPolicy)
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
root_path = "/srv/sync"
confict_policy = "local_wins"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestLoadOrDefault_MissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	cfg, err := LoadOrDefault(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolveConfigPath_Priority(t *testing.T) {
	logger := discardLogger()

	assert.NotEmpty(t, ResolveConfigPath(EnvOverrides{}, CLIOverrides{}, logger))

	env := EnvOverrides{ConfigPath: "/env/config.toml"}
	assert.Equal(t, "/env/config.toml", ResolveConfigPath(env, CLIOverrides{}, logger))

	cli := CLIOverrides{ConfigPath: "/cli/config.toml"}
	assert.Equal(t, "/cli/config.toml", ResolveConfigPath(env, cli, logger))
}

func TestResolve_AppliesEnvThenCLIOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`root_path = "/file"`), 0o600))

	env := EnvOverrides{ConfigPath: path, RootPath: "/env"}
	cli := CLIOverrides{RootPath: "/cli"}

	cfg, err := Resolve(env, cli, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "/cli", cfg.RootPath)
}
