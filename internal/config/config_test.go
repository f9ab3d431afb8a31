package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, ConflictPolicyRemoteWins, cfg.ConflictPolicy)
	assert.Equal(t, "0", cfg.MaxRunDuration)
	assert.Equal(t, "8s", cfg.LockWaitDuration)
	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)
	assert.Equal(t, 30, cfg.Logging.LogRetentionDays)
	assert.Equal(t, "10s", cfg.Network.ConnectTimeout)
	assert.Equal(t, "60s", cfg.Network.DataTimeout)
}

func TestValidate_RequiresRootPath(t *testing.T) {
	cfg := DefaultConfig()
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root_path must be set")
}

func TestValidate_RejectsUnknownConflictPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootPath = "/data"
	cfg.ConflictPolicy = "newest_wins"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict_policy")
}

func TestValidate_AccumulatesAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConflictPolicy = "bogus"
	cfg.LockWaitDuration = "not-a-duration"
	cfg.Logging.LogLevel = "verbose"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root_path must be set")
	assert.Contains(t, err.Error(), "conflict_policy")
	assert.Contains(t, err.Error(), "lock_wait_duration")
	assert.Contains(t, err.Error(), "log_level")
}
