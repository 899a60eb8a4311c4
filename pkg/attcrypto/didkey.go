package attcrypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

const didKeyPrefix = "did:key:z"

// multicodec prefix for an Ed25519 public key: varint(0xed) || 0x01.
var ed25519Multicodec = [2]byte{0xed, 0x01}

// EncodeDIDKey encodes an Ed25519 public key as a did:key identifier:
// "did:key:z" + base58btc(0xed 0x01 || pub32).
func EncodeDIDKey(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("attcrypto: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	buf := make([]byte, 0, 2+ed25519.PublicKeySize)
	buf = append(buf, ed25519Multicodec[0], ed25519Multicodec[1])
	buf = append(buf, pub...)
	return didKeyPrefix + base58.Encode(buf), nil
}

// DecodeDIDKey extracts the Ed25519 public key from a did:key:z... identifier.
// Rejects any string lacking the "z" multibase prefix or whose decoded
// multicodec is not 0xed01.
func DecodeDIDKey(did string) (ed25519.PublicKey, error) {
	if len(did) <= len(didKeyPrefix) || did[:len(didKeyPrefix)] != didKeyPrefix {
		return nil, fmt.Errorf("attcrypto: invalid did:key format: %q", did)
	}

	decoded, err := base58.Decode(did[len(didKeyPrefix):])
	if err != nil {
		return nil, fmt.Errorf("attcrypto: failed to base58-decode did:key %q: %w", did, err)
	}

	if len(decoded) != 2+ed25519.PublicKeySize {
		return nil, fmt.Errorf("attcrypto: unexpected decoded length %d for did:key %q (want %d)", len(decoded), did, 2+ed25519.PublicKeySize)
	}
	if decoded[0] != ed25519Multicodec[0] || decoded[1] != ed25519Multicodec[1] {
		return nil, fmt.Errorf("attcrypto: unexpected multicodec prefix [%#x %#x] for did:key %q", decoded[0], decoded[1], did)
	}

	return ed25519.PublicKey(decoded[2:]), nil
}
