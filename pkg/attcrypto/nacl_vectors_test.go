package attcrypto

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	naclsign "golang.org/x/crypto/nacl/sign"
)

// TestSign_MatchesNaclSign cross-checks this package's Ed25519 signer
// against golang.org/x/crypto/nacl/sign's independent implementation of the
// same algorithm. Ed25519 signing is deterministic, so two separately
// maintained implementations given the same key and message must produce
// byte-identical signatures — agreement here is what makes a signature
// usable as a cross-library test vector rather than a tautology against
// this package's own Verify.
func TestSign_MatchesNaclSign(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	var naclPriv [64]byte
	copy(naclPriv[:], kp.Private)
	message := []byte("attestix deterministic vector")

	signed := naclsign.Sign(nil, message, &naclPriv)
	require.True(t, len(signed) >= ed25519.SignatureSize)
	naclSig := signed[:ed25519.SignatureSize]

	ourSig := Sign(kp.Private, message)
	assert.True(t, bytes.Equal(naclSig, ourSig),
		"nacl/sign and this package must agree on Ed25519 signature bytes for the same key and message")
	assert.True(t, Verify(kp.Public, message, naclSig),
		"a signature produced by nacl/sign must verify under this package's Verify")
}
