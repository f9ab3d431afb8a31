package config

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUnknownKeys_NoUnknown(t *testing.T) {
	var cfg Config

	md, err := toml.Decode(`root_path = "/data"`, &cfg)
	require.NoError(t, err)
	require.NoError(t, checkUnknownKeys(&md))
}

func TestCheckUnknownKeys_Typo(t *testing.T) {
	var cfg Config

	md, err := toml.Decode(`roott_path = "/data"`, &cfg)
	require.NoError(t, err)

	err = checkUnknownKeys(&md)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "root_path"`)
}

func TestCheckUnknownKeys_ExecutionRecordFields(t *testing.T) {
	var cfg Config

	md, err := toml.Decode(`
root_path = "/data"
execution_database_id = "db-1"
script_name = "dbsync"
script_version = "1.0"
script_id = "s1"
`, &cfg)
	require.NoError(t, err)
	require.NoError(t, checkUnknownKeys(&md))
}

func TestClosestMatch(t *testing.T) {
	assert.Equal(t, "root_path", closestMatch("root_patch", knownKeysList))
	assert.Equal(t, "", closestMatch("totally_unrelated_key_name", knownKeysList))
}
