package delegation

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/VibeTensor/attestix/pkg/attcrypto"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	kp, err := attcrypto.Generate()
	require.NoError(t, err)
	did, err := attcrypto.EncodeDIDKey(kp.Public)
	require.NoError(t, err)

	st, err := safestore.New(filepath.Join(t.TempDir(), "delegations.json"), nil)
	require.NoError(t, err)

	return New(st, did, kp.Private, kp.Public)
}

func TestCreateThenVerify_Succeeds(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create("attestix:delegator", "attestix:audience", []string{"read", "write"}, 24, "")
	require.NoError(t, err)

	res := svc.Verify(created.Token)
	require.True(t, res.Valid)
	require.Equal(t, "attestix:delegator", res.Delegator)
	require.ElementsMatch(t, []string{"read", "write"}, res.Capabilities)
}

func TestRevoke_InvalidatesToken(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create("attestix:delegator", "attestix:audience", []string{"read"}, 24, "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(created.Record.JTI, "compromised"))

	res := svc.Verify(created.Token)
	require.False(t, res.Valid)
}

func TestRevoke_DoubleRevokeIsAnError(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create("attestix:delegator", "attestix:audience", []string{"read"}, 24, "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(created.Record.JTI, "first"))
	err = svc.Revoke(created.Record.JTI, "second")
	require.Error(t, err)
}

func TestVerify_TamperedTokenIsInvalid(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.Create("attestix:delegator", "attestix:audience", []string{"read"}, 24, "")
	require.NoError(t, err)

	tampered := created.Token[:len(created.Token)-2] + "xx"
	res := svc.Verify(tampered)
	require.False(t, res.Valid)
}

func TestVerify_RejectsUnsupportedUcanVersion(t *testing.T) {
	svc := newTestService(t)
	now := time.Now().UTC()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    svc.serverDID,
			Subject:   "attestix:audience",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        "future-token",
		},
		Attenuations: []string{"read"},
		Delegator:    "attestix:delegator",
		Typ:          tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	token.Header["ucv"] = "2.0.0"
	signed, err := svc.signToken(token)
	require.NoError(t, err)

	res := svc.Verify(signed)
	require.False(t, res.Valid)
}

func TestCreate_ChainsParentTokenIntoProofs(t *testing.T) {
	svc := newTestService(t)
	parent, err := svc.Create("attestix:root", "attestix:mid", []string{"read"}, 24, "")
	require.NoError(t, err)

	child, err := svc.Create("attestix:mid", "attestix:leaf", []string{"read"}, 1, parent.Token)
	require.NoError(t, err)

	res := svc.Verify(child.Token)
	require.True(t, res.Valid)
	require.Equal(t, []string{parent.Token}, res.ProofChain)
}
