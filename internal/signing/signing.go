// Package signing implements threshold signing of a chain update
// intent using the governance keypairs the submitter holds in memory.
// No corpus file signs Concordium transactions directly, so this
// package is grounded on spec.md §4.4 step 6 and uses the stdlib
// ed25519 implementation, matching Concordium's real account/
// governance key signature scheme.
package signing

import (
	"crypto/ed25519"
	"fmt"

	"github.com/concordium/eur2ccd-service/internal/keysource"
)

// Signature pairs a signer's public key with the signature it
// produced, so the submitter can present both to the chain.
type Signature struct {
	PublicKey ed25519.PublicKey
	Signature []byte
}

// KeyStore is the in-memory list of governance keypairs loaded once at
// startup. It is owned exclusively by the submitter and never written
// to disk.
type KeyStore struct {
	keys []keysource.KeyPair
}

// NewKeyStore loads keys from the given provider.
func NewKeyStore(provider keysource.GovernanceKeyProvider) (*KeyStore, error) {
	keys, err := provider.Load()
	if err != nil {
		return nil, fmt.Errorf("signing: loading governance keys: %w", err)
	}
	return &KeyStore{keys: keys}, nil
}

// Len reports how many governance keypairs are held.
func (k *KeyStore) Len() int {
	return len(k.keys)
}

// SignAll produces a signature from every held keypair over message.
// Per §4.4 step 6, the service presents every authorized key it holds,
// not merely the bare threshold — the chain's authorization check
// decides which of the presented signatures count.
func (k *KeyStore) SignAll(message []byte) []Signature {
	out := make([]Signature, len(k.keys))
	for i, kp := range k.keys {
		out[i] = Signature{
			PublicKey: kp.Public,
			Signature: ed25519.Sign(kp.Private, message),
		}
	}
	return out
}

// MeetsThreshold reports whether the held key count is at least the
// threshold dictated by the chain's current authorization policy.
// The submitter calls this after fetching chain parameters, before
// attempting to sign and broadcast.
func (k *KeyStore) MeetsThreshold(threshold int) bool {
	return len(k.keys) >= threshold
}
