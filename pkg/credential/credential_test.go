package credential

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VibeTensor/attestix/pkg/attcrypto"
	"github.com/VibeTensor/attestix/pkg/kernel"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

type fakeSigner struct {
	kp  attcrypto.KeyPair
	did string
}

func (s *fakeSigner) Sign(data []byte) []byte { return attcrypto.Sign(s.kp.Private, data) }
func (s *fakeSigner) DID() string             { return s.did }

func newTestService(t *testing.T) *Service {
	t.Helper()
	kp, err := attcrypto.Generate()
	require.NoError(t, err)
	did, err := attcrypto.EncodeDIDKey(kp.Public)
	require.NoError(t, err)

	st, err := safestore.New(filepath.Join(t.TempDir(), "credentials.json"), nil)
	require.NoError(t, err)

	k := kernel.New(&fakeSigner{kp: kp, did: did})
	return New(st, k, did)
}

func TestIssueThenVerify_Succeeds(t *testing.T) {
	svc := newTestService(t)
	vc, err := svc.Issue("attestix:abc123", "ComplianceCredential", "issuer", map[string]any{"tier": "minimal"}, 30)
	require.NoError(t, err)

	res, err := svc.Verify(vc.ID)
	require.NoError(t, err)
	require.True(t, res.Valid)
}

func TestRevoke_DoesNotInvalidateProof(t *testing.T) {
	svc := newTestService(t)
	vc, err := svc.Issue("attestix:abc123", "ComplianceCredential", "issuer", nil, 30)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(vc.ID, "superseded"))

	res, err := svc.Verify(vc.ID)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.False(t, res.Checks.NotRevoked)
	require.True(t, res.Checks.SignatureValid)
}

func TestCreatePresentation_RejectsCredentialNotHeldByHolder(t *testing.T) {
	svc := newTestService(t)
	vc, err := svc.Issue("attestix:abc123", "ComplianceCredential", "issuer", nil, 30)
	require.NoError(t, err)

	_, err = svc.CreatePresentation("attestix:someone-else", []string{vc.ID}, "", "")
	require.Error(t, err)
}

func TestCreatePresentation_Succeeds(t *testing.T) {
	svc := newTestService(t)
	vc, err := svc.Issue("attestix:abc123", "ComplianceCredential", "issuer", nil, 30)
	require.NoError(t, err)

	vp, err := svc.CreatePresentation("attestix:abc123", []string{vc.ID}, "verifier.example", "nonce-1")
	require.NoError(t, err)
	require.Len(t, vp.VerifiableCredential, 1)
	require.Equal(t, "nonce-1", vp.Proof.Challenge)
}
