package anchor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VibeTensor/attestix/pkg/safestore"
)

type fakeLedger struct {
	submitCalls int
	receipts    map[string]AttestationReceipt
	validByUID  map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{receipts: map[string]AttestationReceipt{}, validByUID: map[string]bool{}}
}

func (l *fakeLedger) Submit(ctx context.Context, req AttestationRequest) (AttestationReceipt, error) {
	l.submitCalls++
	uid, err := idgen("uid")
	if err != nil {
		return AttestationReceipt{}, err
	}
	receipt := AttestationReceipt{TxHash: "0xdeadbeef", BlockNumber: uint64(l.submitCalls), AttestationUID: uid}
	l.receipts[uid] = receipt
	l.validByUID[uid] = true
	return receipt, nil
}

func (l *fakeLedger) Check(ctx context.Context, attestationUID string) (bool, string, error) {
	return l.validByUID[attestationUID], "0xattester", nil
}

func newTestService(t *testing.T, ledger Ledger) *Service {
	t.Helper()
	st, err := safestore.New(filepath.Join(t.TempDir(), "anchor.json"), nil)
	require.NoError(t, err)
	return New(st, ledger, "did:key:zServer", "0xschema")
}

func TestAnchorArtifact_RecordsReceipt(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger)

	hash, err := HashArtifact(map[string]any{"hello": "world"})
	require.NoError(t, err)

	rec, err := svc.AnchorArtifact(context.Background(), hash, ArtifactIdentity, "attestix:a")
	require.NoError(t, err)
	require.Equal(t, hash, rec.ArtifactHash)
	require.NotEmpty(t, rec.AttestationUID)
	require.Equal(t, 1, ledger.submitCalls)
}

func TestAnchorArtifact_RejectsUnknownArtifactType(t *testing.T) {
	svc := newTestService(t, newFakeLedger())
	_, err := svc.AnchorArtifact(context.Background(), "deadbeef", ArtifactType("bogus"), "attestix:a")
	require.Error(t, err)
}

func TestAnchorArtifact_WithoutLedgerFails(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.AnchorArtifact(context.Background(), "deadbeef", ArtifactIdentity, "attestix:a")
	require.Error(t, err)
}

func TestVerifyAnchor_LocalOnlyWithoutLedger(t *testing.T) {
	svc := newTestService(t, nil)
	result, err := svc.VerifyAnchor(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.Equal(t, "local_only", result.Status)
}

func TestVerifyAnchor_OnChainAfterAnchoring(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger)

	hash, err := HashArtifact(map[string]any{"hello": "world"})
	require.NoError(t, err)
	_, err = svc.AnchorArtifact(context.Background(), hash, ArtifactIdentity, "attestix:a")
	require.NoError(t, err)

	result, err := svc.VerifyAnchor(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, "on_chain", result.Status)
	require.True(t, result.OnChainValid)
}

func TestAnchorAuditBatch_AnchorsMerkleRoot(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger)

	entries := []any{
		map[string]any{"log_id": "1"},
		map[string]any{"log_id": "2"},
		map[string]any{"log_id": "3"},
	}
	rec, err := svc.AnchorAuditBatch(context.Background(), "attestix:a", entries)
	require.NoError(t, err)
	require.Equal(t, ArtifactAuditBatch, rec.ArtifactType)

	tree, err := BuildMerkleTree(entries)
	require.NoError(t, err)
	require.Equal(t, tree.Root, rec.ArtifactHash)
}
