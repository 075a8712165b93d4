// Package keysource defines the GovernanceKeyProvider interface the
// chain submitter consumes, plus the one concrete implementation this
// repository carries: local-file retrieval. Cloud secret-manager
// retrieval is an external collaborator per spec.md §1's Out-of-scope
// list and is represented only by the interface.
package keysource

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// KeyPair is a single governance keypair as held in memory.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GovernanceKeyProvider resolves a set of governance keypairs at
// startup. Implementations never write secrets to disk and are called
// exactly once, before the submitter begins its update loop.
type GovernanceKeyProvider interface {
	Load() ([]KeyPair, error)
}

// keyFileEntry is the JSON shape of one element in a local-keys file:
// a hex-encoded ed25519 seed. Concordium governance keys are ed25519,
// the same scheme the chain itself uses for account keys.
type keyFileEntry struct {
	Seed string `json:"seed"`
}

// LocalFile loads governance keypairs from the comma-separated list of
// filenames in the `local-keys` configuration option, each containing
// a JSON array of keypairs.
type LocalFile struct {
	Paths []string
}

// NewLocalFile builds a provider reading governance keys from the
// given filenames.
func NewLocalFile(paths []string) *LocalFile {
	return &LocalFile{Paths: paths}
}

func (l *LocalFile) Load() ([]KeyPair, error) {
	var keys []KeyPair

	for _, path := range l.Paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("keysource: reading %s: %w", path, err)
		}

		var entries []keyFileEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("keysource: parsing %s: %w", path, err)
		}

		for i, entry := range entries {
			seed, err := decodeSeed(entry.Seed)
			if err != nil {
				return nil, fmt.Errorf("keysource: %s entry %d: %w", path, i, err)
			}
			priv := ed25519.NewKeyFromSeed(seed)
			keys = append(keys, KeyPair{
				Public:  priv.Public().(ed25519.PublicKey),
				Private: priv,
			})
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("keysource: no governance keys loaded from %v", l.Paths)
	}
	return keys, nil
}

func decodeSeed(hexSeed string) ([]byte, error) {
	if len(hexSeed) != ed25519.SeedSize*2 {
		return nil, fmt.Errorf("seed must be %d hex characters, got %d", ed25519.SeedSize*2, len(hexSeed))
	}
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("decoding hex seed: %w", err)
	}
	return seed, nil
}
