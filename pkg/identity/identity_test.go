package identity

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

	st, err := safestore.New(filepath.Join(t.TempDir(), "identities.json"), nil)
	require.NoError(t, err)

	k := kernel.New(&fakeSigner{kp: kp, did: did})
	return New(st, k, did)
}

func TestCreateThenVerify_Succeeds(t *testing.T) {
	svc := newTestService(t)
	u, err := svc.Create("demo-agent", ProtocolA2A, []string{"read"}, "", "issuer", 30, "")
	require.NoError(t, err)

	res, err := svc.Verify(u.AgentID)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.True(t, res.Checks.SignatureValid)
}

func TestRevoke_DoesNotInvalidateSignature(t *testing.T) {
	svc := newTestService(t)
	u, err := svc.Create("demo-agent", ProtocolA2A, nil, "", "issuer", 30, "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(u.AgentID, "compromised"))

	res, err := svc.Verify(u.AgentID)
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.False(t, res.Checks.NotRevoked)
	require.True(t, res.Checks.SignatureValid)
}

func TestCreate_RejectsEmptyDisplayName(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create("", ProtocolA2A, nil, "", "issuer", 30, "")
	require.Error(t, err)
}

func TestPurge_RemovesIdentityAndReportsCounts(t *testing.T) {
	svc := newTestService(t)
	u, err := svc.Create("demo-agent", ProtocolA2A, nil, "", "issuer", 30, "")
	require.NoError(t, err)

	counts, err := svc.Purge(u.AgentID, map[string]func(string) (int, error){
		"credentials": func(string) (int, error) { return 2, nil },
	})
	require.NoError(t, err)
	require.Equal(t, 1, counts["identities"])
	require.Equal(t, 2, counts["credentials"])

	_, err = svc.Get(u.AgentID)
	require.Error(t, err)
}
