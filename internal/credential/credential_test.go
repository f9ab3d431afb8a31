package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")

	in := Handle{Secret: "secret_abc123", Meta: map[string]string{"workspace": "Acme"}}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	h, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Handle{}, h)
}

func TestLoad_MissingSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	require.NoError(t, Save(path, Handle{Secret: "x"}))

	// Overwrite with a file lacking the secret field.
	require.NoError(t, os.WriteFile(path, []byte(`{"meta":{"workspace":"Acme"}}`), FilePerms))

	h, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, Handle{}, h)
}

func TestLoadAndMergeMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	require.NoError(t, Save(path, Handle{Secret: "x", Meta: map[string]string{"a": "1"}}))

	require.NoError(t, LoadAndMergeMeta(path, map[string]string{"b": "2"}))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, out.Meta)
}

func TestLoadAndMergeMeta_NoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	err := LoadAndMergeMeta(path, map[string]string{"a": "1"})
	require.Error(t, err)
}
