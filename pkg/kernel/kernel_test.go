package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VibeTensor/attestix/pkg/attcrypto"
)

type fakeSigner struct {
	kp  attcrypto.KeyPair
	did string
}

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	kp, err := attcrypto.Generate()
	require.NoError(t, err)
	did, err := attcrypto.EncodeDIDKey(kp.Public)
	require.NoError(t, err)
	return &fakeSigner{kp: kp, did: did}
}

func (s *fakeSigner) Sign(data []byte) []byte { return attcrypto.Sign(s.kp.Private, data) }
func (s *fakeSigner) DID() string             { return s.did }

func TestSignThenVerify_Roundtrip(t *testing.T) {
	signer := newFakeSigner(t)
	k := New(signer)

	obj := map[string]any{
		"agent_id":     "attestix:abcdef012345",
		"display_name": "demo-agent",
		"revoked":      false,
	}

	sig, err := k.Sign(obj, IdentityMask)
	require.NoError(t, err)
	obj["signature"] = sig

	result := Verify(obj, "signature", signer.did, IdentityMask)
	require.True(t, result.SignatureValid)
}

func TestVerify_RevocationFlipDoesNotInvalidateSignature(t *testing.T) {
	signer := newFakeSigner(t)
	k := New(signer)

	obj := map[string]any{
		"agent_id":     "attestix:abcdef012345",
		"display_name": "demo-agent",
		"revoked":      false,
	}
	sig, err := k.Sign(obj, IdentityMask)
	require.NoError(t, err)
	obj["signature"] = sig

	// Flip a mutable field after signing, as revoke() does.
	obj["revoked"] = true
	obj["revocation_reason"] = "compromised"

	result := Verify(obj, "signature", signer.did, IdentityMask)
	require.True(t, result.SignatureValid, "mutable-field mutation must not invalidate the signature")
}

func TestVerify_TamperedImmutableFieldInvalidatesSignature(t *testing.T) {
	signer := newFakeSigner(t)
	k := New(signer)

	obj := map[string]any{
		"agent_id":     "attestix:abcdef012345",
		"display_name": "demo-agent",
	}
	sig, err := k.Sign(obj, IdentityMask)
	require.NoError(t, err)
	obj["signature"] = sig
	obj["display_name"] = "tampered"

	result := Verify(obj, "signature", signer.did, IdentityMask)
	require.False(t, result.SignatureValid)
}

func TestVerify_MissingSignatureIsFalseNotPanic(t *testing.T) {
	signer := newFakeSigner(t)
	obj := map[string]any{"agent_id": "attestix:abcdef012345"}
	result := Verify(obj, "signature", signer.did, IdentityMask)
	require.False(t, result.SignatureValid)
}

func TestVerify_BadIssuerDIDIsFalseNotPanic(t *testing.T) {
	signer := newFakeSigner(t)
	k := New(signer)
	obj := map[string]any{"agent_id": "attestix:abcdef012345"}
	sig, err := k.Sign(obj, IdentityMask)
	require.NoError(t, err)
	obj["signature"] = sig

	result := Verify(obj, "signature", "did:key:znotarealkey", IdentityMask)
	require.False(t, result.SignatureValid)
}
