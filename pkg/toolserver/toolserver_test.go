package toolserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VibeTensor/attestix/pkg/anchor"
	"github.com/VibeTensor/attestix/pkg/attcrypto"
	"github.com/VibeTensor/attestix/pkg/compliance"
	"github.com/VibeTensor/attestix/pkg/credential"
	"github.com/VibeTensor/attestix/pkg/delegation"
	"github.com/VibeTensor/attestix/pkg/identity"
	"github.com/VibeTensor/attestix/pkg/kernel"
	"github.com/VibeTensor/attestix/pkg/provenance"
	"github.com/VibeTensor/attestix/pkg/reputation"
	"github.com/VibeTensor/attestix/pkg/resolver"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

type fakeSigner struct {
	kp  attcrypto.KeyPair
	did string
}

func (s *fakeSigner) Sign(data []byte) []byte { return attcrypto.Sign(s.kp.Private, data) }
func (s *fakeSigner) DID() string             { return s.did }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	kp, err := attcrypto.Generate()
	require.NoError(t, err)
	did, err := attcrypto.EncodeDIDKey(kp.Public)
	require.NoError(t, err)
	k := kernel.New(&fakeSigner{kp: kp, did: did})

	store := func(name string) *safestore.Store {
		st, err := safestore.New(filepath.Join(t.TempDir(), name), nil)
		require.NoError(t, err)
		return st
	}

	idSvc := identity.New(store("identities.json"), k, did)
	credSvc := credential.New(store("credentials.json"), k, did)
	delSvc := delegation.New(store("delegations.json"), did, kp.Private, kp.Public)
	repSvc := reputation.New(store("reputation.json"))
	provSvc := provenance.New(store("provenance.json"), k)
	compSvc, err := compliance.New(store("compliance.json"), k, did, credSvc)
	require.NoError(t, err)
	anchorSvc := anchor.New(store("anchors.json"), nil, did, "")
	res := resolver.New("")
	keyMinter := resolver.NewKeyMinter(store("keypairs.json"))

	return New(idSvc, credSvc, delSvc, repSvc, provSvc, compSvc, anchorSvc, res, keyMinter)
}

func decodeResult(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestDispatch_UnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	raw := r.Dispatch(context.Background(), "no_such_tool", nil)
	result := decodeResult(t, raw)
	require.Contains(t, result["error"], "unknown tool")
}

func TestDispatch_CreateThenGetAgentIdentity(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	created := decodeResult(t, r.Dispatch(ctx, "create_agent_identity", map[string]any{
		"display_name": "test-agent",
	}))
	require.Empty(t, created["error"])
	agentID, ok := created["agent_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, agentID)

	fetched := decodeResult(t, r.Dispatch(ctx, "get_identity", map[string]any{
		"agent_id": agentID,
	}))
	require.Equal(t, agentID, fetched["agent_id"])

	verified := decodeResult(t, r.Dispatch(ctx, "verify_identity", map[string]any{
		"agent_id": agentID,
	}))
	require.Equal(t, true, verified["valid"])
}

func TestDispatch_GetIdentityMissing(t *testing.T) {
	r := newTestRegistry(t)
	raw := r.Dispatch(context.Background(), "get_identity", map[string]any{"agent_id": "attestix:nope"})
	result := decodeResult(t, raw)
	require.Contains(t, result["error"], "not found")
}

func TestDispatch_RevokeAndPurgeIdentity(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	created := decodeResult(t, r.Dispatch(ctx, "create_agent_identity", map[string]any{
		"display_name": "purge-me",
	}))
	agentID := created["agent_id"].(string)

	revoked := decodeResult(t, r.Dispatch(ctx, "revoke_identity", map[string]any{
		"agent_id": agentID,
		"reason":   "testing",
	}))
	require.Equal(t, true, revoked["revoked"])

	purged := decodeResult(t, r.Dispatch(ctx, "purge_agent_data", map[string]any{
		"agent_id": agentID,
	}))
	require.EqualValues(t, 1, purged["identities"])
}

func TestDispatch_CreateDelegationThenVerify(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	created := decodeResult(t, r.Dispatch(ctx, "create_delegation", map[string]any{
		"delegator":    "attestix:issuer",
		"audience":     "attestix:audience",
		"capabilities": []any{"read", "write"},
		"expiry_hours": 1.0,
	}))
	record, ok := created["record"].(map[string]any)
	require.True(t, ok)
	token, ok := created["token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)
	require.Equal(t, "attestix:audience", record["audience"])

	verified := decodeResult(t, r.Dispatch(ctx, "verify_delegation", map[string]any{"token": token}))
	require.Equal(t, true, verified["Valid"])
}

func TestDispatch_ReputationRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	recorded := decodeResult(t, r.Dispatch(ctx, "record_interaction", map[string]any{
		"agent_id":        "attestix:agent",
		"counterparty_id": "attestix:peer",
		"outcome":         "success",
	}))
	require.Empty(t, recorded["error"])

	score := decodeResult(t, r.Dispatch(ctx, "get_reputation", map[string]any{"agent_id": "attestix:agent"}))
	require.EqualValues(t, 1, score["interactions"])
}

func TestDispatch_ComplianceProfileLifecycle(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	created := decodeResult(t, r.Dispatch(ctx, "create_compliance_profile", map[string]any{
		"agent_id":         "attestix:compliant",
		"risk_category":    "limited",
		"intended_purpose": "customer support",
		"transparency":     "disclosed",
	}))
	require.Empty(t, created["error"])

	updated := decodeResult(t, r.Dispatch(ctx, "update_compliance_profile", map[string]any{
		"agent_id":         "attestix:compliant",
		"intended_purpose": "customer support v2",
	}))
	require.Equal(t, "customer support v2", updated["ai_system"])

	listed := decodeResult(t, r.Dispatch(ctx, "list_compliance_profiles", map[string]any{"risk_category": "limited"}))
	_, isError := listed["error"]
	require.False(t, isError)
}

func TestDispatch_IssueThenVerifyCredential(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	issued := decodeResult(t, r.Dispatch(ctx, "issue_credential", map[string]any{
		"subject_id":      "attestix:holder",
		"credential_type": "TestCredential",
	}))
	id, ok := issued["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	verified := decodeResult(t, r.Dispatch(ctx, "verify_credential", map[string]any{"id": id}))
	require.Equal(t, true, verified["valid"])
}

func TestDispatch_ProvenanceAndAuditTrail(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	recorded := decodeResult(t, r.Dispatch(ctx, "record_training_data", map[string]any{
		"agent_id": "attestix:trained",
		"fields":   map[string]any{"dataset": "public-corpus"},
	}))
	require.Empty(t, recorded["error"])

	logged := decodeResult(t, r.Dispatch(ctx, "log_action", map[string]any{
		"agent_id":    "attestix:trained",
		"action_type": "inference",
	}))
	require.Empty(t, logged["error"])

	trail := decodeResult(t, r.Dispatch(ctx, "get_audit_trail", map[string]any{"agent_id": "attestix:trained"}))
	verification, ok := trail["verification"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, verification["valid"])
}

func TestDispatch_AnchorIdentity_FailsWithoutLedger(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	created := decodeResult(t, r.Dispatch(ctx, "create_agent_identity", map[string]any{
		"display_name": "anchor-me",
	}))
	agentID := created["agent_id"].(string)

	anchored := decodeResult(t, r.Dispatch(ctx, "anchor_identity", map[string]any{"agent_id": agentID}))
	require.Contains(t, anchored["error"], "no attestation ledger")
}

func TestDispatch_GenerateAndParseAgentCard(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	generated := decodeResult(t, r.Dispatch(ctx, "generate_agent_card", map[string]any{
		"name": "Card Agent",
		"url":  "https://agent.example.com",
	}))
	card, ok := generated["agent_card"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Card Agent", card["name"])

	parsed := decodeResult(t, r.Dispatch(ctx, "parse_agent_card", map[string]any{"card": card}))
	require.Equal(t, "Card Agent", parsed["name"])
}

func TestDispatch_CreateDIDKeyThenResolve(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	created := decodeResult(t, r.Dispatch(ctx, "create_did_key", nil))
	did, ok := created["did"].(string)
	require.True(t, ok)
	require.Contains(t, did, "did:key:z")

	resolved := decodeResult(t, r.Dispatch(ctx, "resolve_did", map[string]any{"did": did}))
	require.Equal(t, did, resolved["id"])
}
