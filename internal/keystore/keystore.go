// Package keystore loads the pre-shared key that host and viewer share out
// of band, generating one on first use the same way the teacher's
// transports/obfs4/statefile.go bootstraps a fresh node identity: write to a
// temp file in the same directory, then atomically rename it into place.
package keystore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/yawning/relaydesk/csrand"
	"github.com/yawning/relaydesk/internal/wire"
)

// Load reads the 32-byte pre-shared key from path, generating and
// persisting a fresh one if the file does not exist. A key file whose
// length is not exactly wire.KeyLength is a fatal configuration error.
func Load(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return generate(path)
		}
		return nil, fmt.Errorf("keystore: reading %s: %w", path, err)
	}
	if len(key) != wire.KeyLength {
		return nil, fmt.Errorf("keystore: %s has %d bytes, want %d", path, len(key), wire.KeyLength)
	}
	return key, nil
}

func generate(path string) ([]byte, error) {
	key := make([]byte, wire.KeyLength)
	if err := csrand.Bytes(key); err != nil {
		return nil, fmt.Errorf("keystore: generating key: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".key-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("keystore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	// Two processes racing to create the key both hold equally valid
	// randomness; rename atomicity decides which one survives.
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(key); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("keystore: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("keystore: closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return nil, fmt.Errorf("keystore: setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("keystore: renaming into place: %w", err)
	}

	return key, nil
}
