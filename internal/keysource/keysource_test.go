package keysource

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyFile(t *testing.T, entries int) string {
	t.Helper()
	var out []keyFileEntry
	for i := 0; i < entries; i++ {
		seed := make([]byte, ed25519.SeedSize)
		seed[0] = byte(i + 1)
		out = append(out, keyFileEntry{Seed: hex.EncodeToString(seed)})
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLocalFileLoad(t *testing.T) {
	path := writeKeyFile(t, 3)
	l := NewLocalFile([]string{path})

	keys, err := l.Load()
	require.NoError(t, err)
	require.Len(t, keys, 3)
	for _, k := range keys {
		assert.Len(t, k.Public, ed25519.PublicKeySize)
		assert.Len(t, k.Private, ed25519.PrivateKeySize)
	}
}

func TestLocalFileLoadMissingFile(t *testing.T) {
	l := NewLocalFile([]string{filepath.Join(t.TempDir(), "missing.json")})
	_, err := l.Load()
	assert.Error(t, err)
}

func TestLocalFileLoadNoKeys(t *testing.T) {
	path := writeKeyFile(t, 0)
	l := NewLocalFile([]string{path})
	_, err := l.Load()
	assert.Error(t, err)
}
