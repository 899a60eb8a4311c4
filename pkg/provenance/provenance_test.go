package provenance

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

	st, err := safestore.New(filepath.Join(t.TempDir(), "provenance.json"), nil)
	require.NoError(t, err)

	k := kernel.New(&fakeSigner{kp: kp, did: did})
	return New(st, k)
}

func TestAppendAudit_FirstEntryUsesGenesisHash(t *testing.T) {
	svc := newTestService(t)
	e, err := svc.AppendAudit("attestix:a", "tool_call", "in", "out", "ok", false, "system")
	require.NoError(t, err)
	require.Equal(t, genesisHash, e.PrevHash)
}

func TestAppendAudit_ChainsAcrossEntries(t *testing.T) {
	svc := newTestService(t)
	e1, err := svc.AppendAudit("attestix:a", "tool_call", "", "", "", false, "system")
	require.NoError(t, err)
	e2, err := svc.AppendAudit("attestix:a", "tool_call", "", "", "", false, "system")
	require.NoError(t, err)
	require.Equal(t, e1.ChainHash, e2.PrevHash)
}

func TestAppendAudit_PerAgentChainsAreIndependent(t *testing.T) {
	svc := newTestService(t)
	a1, err := svc.AppendAudit("attestix:a", "tool_call", "", "", "", false, "system")
	require.NoError(t, err)
	b1, err := svc.AppendAudit("attestix:b", "tool_call", "", "", "", false, "system")
	require.NoError(t, err)
	require.Equal(t, genesisHash, a1.PrevHash)
	require.Equal(t, genesisHash, b1.PrevHash)
}

func TestVerifyChain_DetectsValidChain(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AppendAudit("attestix:a", "tool_call", "", "", "", false, "system")
	require.NoError(t, err)
	_, err = svc.AppendAudit("attestix:a", "tool_call", "", "", "", false, "system")
	require.NoError(t, err)

	result, err := svc.VerifyChain("attestix:a")
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, 2, result.EntryCount)
}

func TestVerifyChain_DetectsTamperedPrevHash(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AppendAudit("attestix:a", "tool_call", "", "", "", false, "system")
	require.NoError(t, err)
	_, err = svc.AppendAudit("attestix:a", "tool_call", "", "", "", false, "system")
	require.NoError(t, err)

	entries, err := svc.ListAudit("attestix:a")
	require.NoError(t, err)
	entries[1].PrevHash = "tampered"

	col := &collection{Audit: entries}
	require.NoError(t, svc.store.Save(col))

	result, err := svc.VerifyChain("attestix:a")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, entries[1].LogID, result.BrokenAt)
}

func TestPurgeAgent_RemovesEntriesAndAudit(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RecordEntry(EntryTrainingData, "attestix:a", map[string]any{"source": "dataset-1"}, "system")
	require.NoError(t, err)
	_, err = svc.AppendAudit("attestix:a", "tool_call", "", "", "", false, "system")
	require.NoError(t, err)

	count, err := svc.PurgeAgent("attestix:a")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
