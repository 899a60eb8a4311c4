package attcrypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRFC8032Vector1_EmptyMessage(t *testing.T) {
	seed, err := hex.DecodeString("9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"[:64])
	require.NoError(t, err)
	wantPub, err := hex.DecodeString("d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"[:64])
	require.NoError(t, err)
	wantSig, err := hex.DecodeString(
		"e5564300c360ac729086e2cc806e828a" +
			"84877f1eb8e5d974d873e06522490155" +
			"5fb8821590a33bacc61e39701cf9b46b" +
			"d25bf5f0595bbe24655141438e7a100b")
	require.NoError(t, err)

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	assert.Equal(t, ed25519.PublicKey(wantPub), pub)

	sig := Sign(priv, []byte{})
	assert.Equal(t, wantSig, sig)
	assert.True(t, Verify(pub, []byte{}, sig))
}

func TestVerify_RejectsTamperedData(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	sig := Sign(kp.Private, []byte("hello"))
	assert.True(t, Verify(kp.Public, []byte("hello"), sig))
	assert.False(t, Verify(kp.Public, []byte("hello!"), sig))
}

func TestVerify_MalformedInputsNeverPanic(t *testing.T) {
	assert.False(t, Verify(nil, []byte("x"), []byte("y")))
	assert.False(t, Verify([]byte{1, 2, 3}, []byte("x"), []byte("y")))
}

func TestDIDKeyRoundtrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	did, err := EncodeDIDKey(kp.Public)
	require.NoError(t, err)
	assert.Contains(t, did, "did:key:z")

	pub, err := DecodeDIDKey(did)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, pub)
}

func TestDecodeDIDKey_RejectsBadPrefix(t *testing.T) {
	_, err := DecodeDIDKey("did:web:example.com")
	assert.Error(t, err)
}

func TestDecodeDIDKey_RejectsBadMulticodec(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	did, err := EncodeDIDKey(kp.Public)
	require.NoError(t, err)
	// A mutated base58 body must not panic, whatever the outcome.
	mutated := did[:len(did)-1] + "1"
	_, _ = DecodeDIDKey(mutated)

	// Same 34-byte layout as a valid did:key, but with the secp256k1
	// multicodec (0xe7 0x01) in place of Ed25519's 0xed 0x01.
	wrongCodec := append([]byte{0xe7, 0x01}, kp.Public...)
	_, err = DecodeDIDKey("did:key:z" + base58.Encode(wrongCodec))
	assert.Error(t, err)
}
