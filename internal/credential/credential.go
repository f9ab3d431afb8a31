// Package credential handles reading and writing the opaque remote-store
// credential handle (an integration secret or OAuth token) that spec §6
// calls credentialHandle. Adapted from the teacher's internal/tokenfile,
// which stored an oauth2.Token the same way: atomic write (temp file +
// rename + fsync), 0600 permissions, metadata cached alongside the secret.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential directory.
const DirPerms = 0o700

// Handle is the on-disk format for a stored credential: the opaque secret
// plus cached metadata (workspace name, bot ID) from the remote store's
// token-introspection response.
type Handle struct {
	Secret string            `json:"secret"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// Load reads a saved credential handle from disk. Returns a zero Handle and
// nil error if the file does not exist — callers detect "not found" by
// checking Secret == "". A file that exists but has no secret field is an
// error.
func Load(path string) (Handle, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Handle{}, nil
	}

	if err != nil {
		return Handle{}, fmt.Errorf("credential: reading %s: %w", path, err)
	}

	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return Handle{}, fmt.Errorf("credential: decoding %s: %w", path, err)
	}

	if h.Secret == "" {
		return Handle{}, fmt.Errorf("credential: %s missing secret field (re-authenticate required)", path)
	}

	return h, nil
}

// Save writes a credential handle to disk atomically (write-to-temp +
// rename) with 0600 permissions. Never logs the secret value.
func Save(path string, h Handle) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("credential: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credential: creating directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("credential: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: writing: %w", err)
	}

	// Flush to stable storage before rename so a crash between close and
	// rename cannot leave an empty or partial credential file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credential: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credential: renaming: %w", err)
	}

	success = true

	return nil
}

// LoadAndMergeMeta reads the current credential handle, merges new metadata
// keys (new keys overwrite existing), and saves. Returns an error if the
// file does not exist.
func LoadAndMergeMeta(path string, meta map[string]string) error {
	h, err := Load(path)
	if err != nil {
		return fmt.Errorf("reading credential for metadata update: %w", err)
	}

	if h.Secret == "" {
		return fmt.Errorf("no credential file at %s", path)
	}

	if h.Meta == nil {
		h.Meta = make(map[string]string, len(meta))
	}

	maps.Copy(h.Meta, meta)

	return Save(path, h)
}
