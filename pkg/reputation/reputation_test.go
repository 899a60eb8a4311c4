package reputation

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VibeTensor/attestix/pkg/safestore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := safestore.New(filepath.Join(t.TempDir(), "reputation.json"), nil)
	require.NoError(t, err)
	return New(st)
}

func TestGet_EmptyHistoryIsZero(t *testing.T) {
	svc := newTestService(t)
	score, n, err := svc.Get("attestix:unknown")
	require.NoError(t, err)
	require.Zero(t, score)
	require.Zero(t, n)
}

func TestGet_AllSuccessIsOne(t *testing.T) {
	svc := newTestService(t)
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(Interaction{
			AgentID: "attestix:a", Outcome: OutcomeSuccess, Timestamp: now, Epoch: now.Unix(),
		}))
	}
	score, n, err := svc.Get("attestix:a")
	require.NoError(t, err)
	require.InDelta(t, 1.0, score, 1e-9)
	require.Equal(t, 3, n)
}

func TestGet_OldFailuresDecayTowardRecentSuccess(t *testing.T) {
	svc := newTestService(t)
	now := time.Now().UTC()
	old := now.Add(-60 * 24 * time.Hour) // two half-lives ago
	require.NoError(t, svc.Record(Interaction{AgentID: "attestix:a", Outcome: OutcomeFailure, Timestamp: old, Epoch: old.Unix()}))
	require.NoError(t, svc.Record(Interaction{AgentID: "attestix:a", Outcome: OutcomeSuccess, Timestamp: now, Epoch: now.Unix()}))

	score, _, err := svc.Get("attestix:a")
	require.NoError(t, err)
	// The failure's weight has decayed to 0.25: (0*0.25 + 1*1) / (0.25 + 1).
	require.InDelta(t, 0.8, score, 1e-3)
}

func TestQuery_SortsDescendingAndFiltersBounds(t *testing.T) {
	svc := newTestService(t)
	now := time.Now().UTC()
	require.NoError(t, svc.Record(Interaction{AgentID: "attestix:hi", Outcome: OutcomeSuccess, Timestamp: now, Epoch: now.Unix()}))
	require.NoError(t, svc.Record(Interaction{AgentID: "attestix:lo", Outcome: OutcomeFailure, Timestamp: now, Epoch: now.Unix()}))

	results, err := svc.Query(0.5, 1.0, 1, "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "attestix:hi", results[0].AgentID)
}
