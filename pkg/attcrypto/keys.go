// Package attcrypto provides the Ed25519 signing primitives and did:key
// encoding this system's trust chain is rooted in. Nothing here throws:
// Verify reports failure as a boolean, never an error, so a malformed
// signature or key is indistinguishable at the call site from an invalid one.
package attcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// KeyPair holds a generated Ed25519 key pair.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Generate creates a fresh Ed25519 key pair.
func Generate() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("attcrypto: key generation failed: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// Sign produces a 64-byte Ed25519 signature over data.
func Sign(priv ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(priv, data)
}

// Verify reports whether sig is a valid Ed25519 signature over data under
// pub. Any malformed input (wrong key size, wrong signature size) is treated
// as an invalid signature rather than an error — library faults never
// escape as exceptions.
func Verify(pub ed25519.PublicKey, data, sig []byte) (valid bool) {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	defer func() {
		if recover() != nil {
			valid = false
		}
	}()
	return ed25519.Verify(pub, data, sig)
}
