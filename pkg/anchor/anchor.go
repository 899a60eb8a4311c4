// Package anchor implements the Anchoring component: hashing artifacts,
// submitting them (or a Merkle root over a batch of them) to an external
// attestation ledger, and checking anchor status. The concrete ledger
// target is the Ethereum Attestation Service deployed on Base, at its fixed
// predeploy addresses.
package anchor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/VibeTensor/attestix/pkg/canonical"
	"github.com/VibeTensor/attestix/pkg/errs"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

// idgen mints a "<prefix>:<12 hex>" id, matching every other collection's id
// shape in this system.
func idgen(prefix string) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + ":" + hex.EncodeToString(buf), nil
}

// encodeAttestationData ABI-encodes the fields of AttestationSchema:
// bytes32 artifactHash, string artifactType, string artifactId, string issuerDid.
func encodeAttestationData(hashHex string, artifactType ArtifactType, artifactID, issuerDID string) ([]byte, error) {
	args := abi.Arguments{
		{Type: mustType("bytes32")},
		{Type: mustType("string")},
		{Type: mustType("string")},
		{Type: mustType("string")},
	}

	rawHash, err := hex.DecodeString(hashHex)
	if err != nil || len(rawHash) != sha256.Size {
		return nil, errs.Newf(errs.Validation, "artifact hash must be a 32-byte hex digest")
	}
	var hashBytes32 [32]byte
	copy(hashBytes32[:], rawHash)

	return args.Pack(hashBytes32, string(artifactType), artifactID, issuerDID)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic("anchor: invalid built-in abi type " + t + ": " + err.Error())
	}
	return typ
}

// Fixed EAS predeploy addresses on Base and the schema every anchor in this
// system registers under.
const (
	EASContractAddress           = "0x4200000000000000000000000000000000000021"
	SchemaRegistryContractAddress = "0x4200000000000000000000000000000000000020"
	AttestationSchema            = "bytes32 artifactHash, string artifactType, string artifactId, string issuerDid"
	Network                      = "base"
)

// ArtifactType is what kind of stored object an anchor covers.
type ArtifactType string

const (
	ArtifactIdentity    ArtifactType = "identity"
	ArtifactCredential  ArtifactType = "credential"
	ArtifactDeclaration ArtifactType = "declaration"
	ArtifactAuditBatch  ArtifactType = "audit_batch"
)

// AttestationRequest is what the Ledger submits on-chain.
type AttestationRequest struct {
	SchemaUID      string
	Recipient      string
	ExpirationTime uint64
	Revocable      bool
	Data           []byte // abi.encode(bytes32 hash, string type, string id, string issuerDid)
}

// AttestationReceipt is what a successful ledger submission returns.
type AttestationReceipt struct {
	TxHash         string
	BlockNumber    uint64
	AttestationUID string
}

// Ledger is the external attestation-service facade. Submit and Check both
// block on network RPC and are bounded only by the caller's context; this
// package applies no timeout of its own to either call.
type Ledger interface {
	Submit(ctx context.Context, req AttestationRequest) (AttestationReceipt, error)
	Check(ctx context.Context, attestationUID string) (onChainValid bool, attester string, err error)
}

// AnchorRecord is an append-only record of a successful anchor operation.
type AnchorRecord struct {
	AnchorID       string       `json:"anchor_id"`
	ArtifactType   ArtifactType `json:"artifact_type"`
	ArtifactID     string       `json:"artifact_id"`
	ArtifactHash   string       `json:"artifact_hash"`
	Network        string       `json:"network"`
	TxHash         string       `json:"tx_hash,omitempty"`
	AttestationUID string       `json:"attestation_uid,omitempty"`
	Attester       string       `json:"attester,omitempty"`
	BlockNumber    uint64       `json:"block_number,omitempty"`
	AnchoredAt     time.Time    `json:"anchored_at"`
	IssuerDID      string       `json:"issuer_did"`
}

type collection struct {
	Anchors []AnchorRecord `json:"anchors"`
}

// Service is the Anchoring component.
type Service struct {
	store     *safestore.Store
	ledger    Ledger // nil means ledger unconfigured: anchoring is local-only
	serverDID string
	schemaUID string
}

// New creates the Anchoring Service. ledger may be nil, in which case
// anchorArtifact fails with LedgerUnconfigured and verifyAnchor reports
// "local_only".
func New(store *safestore.Store, ledger Ledger, serverDID, schemaUID string) *Service {
	return &Service{store: store, ledger: ledger, serverDID: serverDID, schemaUID: schemaUID}
}

// HashArtifact computes the SHA-256 hex digest of an object's canonical
// serialization.
func HashArtifact(obj any) (string, error) {
	return canonical.Hash(obj)
}

// AnchorArtifact submits a single artifact's hash to the ledger and records
// the resulting attestation.
func (s *Service) AnchorArtifact(ctx context.Context, hash string, artifactType ArtifactType, artifactID string) (*AnchorRecord, error) {
	if err := validateArtifactType(artifactType); err != nil {
		return nil, err
	}
	if s.ledger == nil {
		return nil, errs.New(errs.LedgerUnconfigured, "no attestation ledger is configured")
	}

	data, err := encodeAttestationData(hash, artifactType, artifactID, s.serverDID)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "failed to encode attestation data", err)
	}

	// Recipient is left empty (zero address): attestations in this system are
	// self-issued over off-chain identities, not addressed to an Ethereum
	// account. The issuer DID travels inside Data instead.
	receipt, err := s.ledger.Submit(ctx, AttestationRequest{
		SchemaUID:      s.schemaUID,
		Recipient:      "",
		ExpirationTime: 0,
		Revocable:      true,
		Data:           data,
	})
	if err != nil {
		return nil, errs.Wrap(errs.LedgerFailure, "ledger submission failed", err)
	}

	id, err := idgen("anchor")
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate anchor id", err)
	}
	rec := AnchorRecord{
		AnchorID:       id,
		ArtifactType:   artifactType,
		ArtifactID:     artifactID,
		ArtifactHash:   hash,
		Network:        Network,
		TxHash:         receipt.TxHash,
		AttestationUID: receipt.AttestationUID,
		BlockNumber:    receipt.BlockNumber,
		AnchoredAt:     time.Now().UTC(),
		IssuerDID:      s.serverDID,
	}

	if err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		col.Anchors = append(col.Anchors, rec)
		return s.store.Save(col)
	}); err != nil {
		return nil, translateStoreErr(err)
	}
	return &rec, nil
}

// AnchorAuditBatch builds a Merkle tree over an agent's audit entries
// (already loaded by the caller — the Provenance service owns that
// collection) and anchors the root under artifact type audit_batch.
func (s *Service) AnchorAuditBatch(ctx context.Context, agentID string, entries []any) (*AnchorRecord, error) {
	tree, err := BuildMerkleTree(entries)
	if err != nil {
		return nil, err
	}
	return s.AnchorArtifact(ctx, tree.Root, ArtifactAuditBatch, agentID)
}

// VerifyResult is the outcome of checking an anchor's validity.
type VerifyResult struct {
	Status       string // "on_chain" | "local_only"
	OnChainValid bool
	Attester     string
	Record       *AnchorRecord
}

// VerifyAnchor checks the status of the first local anchor record matching
// hash; later records with the same hash are not checked. If no ledger is configured, it reports "local_only" with whatever local
// record exists rather than failing outright.
func (s *Service) VerifyAnchor(ctx context.Context, hash string) (VerifyResult, error) {
	col, err := s.load()
	if err != nil {
		return VerifyResult{}, translateStoreErr(err)
	}

	var match *AnchorRecord
	for i := range col.Anchors {
		if col.Anchors[i].ArtifactHash == hash {
			match = &col.Anchors[i]
			break
		}
	}

	if s.ledger == nil {
		return VerifyResult{Status: "local_only", Record: match}, nil
	}
	if match == nil {
		return VerifyResult{Status: "local_only", Record: nil}, nil
	}

	valid, attester, err := s.ledger.Check(ctx, match.AttestationUID)
	if err != nil {
		return VerifyResult{}, errs.Wrap(errs.LedgerFailure, "ledger check failed", err)
	}
	return VerifyResult{Status: "on_chain", OnChainValid: valid, Attester: attester, Record: match}, nil
}

// AnchorStatus groups an agent's anchors by artifact type.
type AnchorStatus struct {
	AgentID      string               `json:"agent_id"`
	TotalAnchors int                  `json:"total_anchors"`
	ByType       map[ArtifactType]int `json:"by_type"`
	Anchors      []AnchorRecord       `json:"anchors"`
	Network      string               `json:"network"`
}

// GetAnchorStatus returns every anchor whose artifact id equals agentID —
// its own identity anchor, or an audit-batch anchor recorded under the
// agent's id — grouped by artifact type.
func (s *Service) GetAnchorStatus(agentID string) (AnchorStatus, error) {
	col, err := s.load()
	if err != nil {
		return AnchorStatus{}, translateStoreErr(err)
	}

	status := AnchorStatus{AgentID: agentID, ByType: map[ArtifactType]int{}, Network: Network}
	for _, a := range col.Anchors {
		if a.ArtifactID != agentID {
			continue
		}
		status.Anchors = append(status.Anchors, a)
		status.ByType[a.ArtifactType]++
	}
	status.TotalAnchors = len(status.Anchors)
	return status, nil
}

// GasEstimator is implemented by ledgers that can report current network
// gas pricing and the signer's balance. EASLedger implements it; a nil
// Ledger or one that doesn't implement it yields a configuration error from
// EstimateAnchorCost.
type GasEstimator interface {
	EstimateGas(ctx context.Context) (GasEstimate, error)
}

// GasEstimate is the current cost to submit one attestation transaction.
type GasEstimate struct {
	ChainID          int64  `json:"chain_id"`
	Wallet           string `json:"wallet"`
	BalanceWei       string `json:"balance_wei"`
	EstimatedGas     uint64 `json:"estimated_gas"`
	GasPriceWei      string `json:"gas_price_wei"`
	EstimatedCostWei string `json:"estimated_cost_wei"`
	SufficientFunds  bool   `json:"sufficient_funds"`
}

// EstimateAnchorCost reports the current gas cost of one anchoring
// transaction. It requires a ledger configured with gas-estimation support.
func (s *Service) EstimateAnchorCost(ctx context.Context, artifactType ArtifactType) (GasEstimate, error) {
	if err := validateArtifactType(artifactType); err != nil {
		return GasEstimate{}, err
	}
	if s.ledger == nil {
		return GasEstimate{}, errs.New(errs.LedgerUnconfigured, "no ledger configured; set LEDGER_RPC_URL and LEDGER_PRIVATE_KEY")
	}
	estimator, ok := s.ledger.(GasEstimator)
	if !ok {
		return GasEstimate{}, errs.New(errs.LedgerUnconfigured, "configured ledger does not support cost estimation")
	}
	estimate, err := estimator.EstimateGas(ctx)
	if err != nil {
		return GasEstimate{}, errs.Wrap(errs.LedgerFailure, "failed to estimate gas", err)
	}
	return estimate, nil
}

func validateArtifactType(t ArtifactType) error {
	switch t {
	case ArtifactIdentity, ArtifactCredential, ArtifactDeclaration, ArtifactAuditBatch:
		return nil
	default:
		return errs.Newf(errs.Validation, "unknown artifact type %q", t)
	}
}

func (s *Service) load() (*collection, error) {
	col := &collection{}
	if err := s.store.Load(col); err != nil {
		return nil, err
	}
	return col, nil
}

func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if err == safestore.ErrBusy {
		return errs.Wrap(errs.StorageBusy, "anchor store busy", err)
	}
	return err
}
