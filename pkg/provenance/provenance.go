// Package provenance implements training-data/model-lineage provenance
// entries and the per-agent tamper-evident audit hash chain: each agent's
// audit entries link via prev_hash/chain_hash the way the teacher's
// AuditStore links a single global chain, except chained per agent rather
// than globally, and genesis is the 64 zero-hex digest rather than the
// string "genesis".
package provenance

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/VibeTensor/attestix/pkg/canonical"
	"github.com/VibeTensor/attestix/pkg/errs"
	"github.com/VibeTensor/attestix/pkg/kernel"
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

// genesisHash is the prev_hash of the first audit entry for any agent: 64
// zero-hex characters, matching the width of a SHA-256 digest.
var genesisHash = strings.Repeat("0", 64)

// EntryType distinguishes the two kinds of provenance entries.
type EntryType string

const (
	EntryTrainingData  EntryType = "training_data"
	EntryModelLineage  EntryType = "model_lineage"
)

// Entry is a signed, append-only provenance record.
type Entry struct {
	EntryID     string         `json:"entry_id"`
	EntryType   EntryType      `json:"entry_type"`
	AgentID     string         `json:"agent_id"`
	Fields      map[string]any `json:"fields"`
	RecordedAt  time.Time      `json:"recorded_at"`
	RecordedBy  string         `json:"recorded_by"`

	Signature string `json:"signature"`
}

// AuditEntry is one link in an agent's tamper-evident audit chain.
type AuditEntry struct {
	LogID             string    `json:"log_id"`
	AgentID           string    `json:"agent_id"`
	ActionType        string    `json:"action_type"`
	InputSummary      string    `json:"input_summary,omitempty"`
	OutputSummary     string    `json:"output_summary,omitempty"`
	DecisionRationale string    `json:"decision_rationale,omitempty"`
	HumanOverride     bool      `json:"human_override"`
	Timestamp         time.Time `json:"timestamp"`
	LoggedBy          string    `json:"logged_by"`
	PrevHash          string    `json:"prev_hash"`
	ChainHash         string    `json:"chain_hash"`

	Signature string `json:"signature"`
}

var entryMask = kernel.NewMask("signature")

// auditMask excludes only signature: chain_hash is computed first and then
// becomes part of the signed core, per the "sign over the full entry minus
// signature" rule.
var auditMask = kernel.NewMask("signature")

type collection struct {
	Entries []Entry      `json:"entries"`
	Audit   []AuditEntry `json:"audit_log"`
}

// Service is the Provenance + Audit Chain component.
type Service struct {
	store  *safestore.Store
	kernel *kernel.Kernel
}

// New creates the Provenance + Audit Chain service.
func New(store *safestore.Store, k *kernel.Kernel) *Service {
	return &Service{store: store, kernel: k}
}

// RecordEntry appends a signed training-data or model-lineage entry.
func (s *Service) RecordEntry(entryType EntryType, agentID string, fields map[string]any, recordedBy string) (*Entry, error) {
	id, err := idgen("prov")
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate entry id", err)
	}
	e := Entry{
		EntryID:    id,
		EntryType:  entryType,
		AgentID:    agentID,
		Fields:     fields,
		RecordedAt: time.Now().UTC(),
		RecordedBy: recordedBy,
	}

	m, err := kernel.ToMap(e)
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to marshal provenance entry", err)
	}
	sig, err := s.kernel.Sign(m, entryMask)
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to sign provenance entry", err)
	}
	e.Signature = sig

	if err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		col.Entries = append(col.Entries, e)
		return s.store.Save(col)
	}); err != nil {
		return nil, translateStoreErr(err)
	}
	return &e, nil
}

// ListEntries returns agentID's training-data and model-lineage provenance
// entries, optionally filtered to a single entryType.
func (s *Service) ListEntries(agentID string, entryType EntryType) ([]Entry, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}
	out := make([]Entry, 0)
	for _, e := range col.Entries {
		if e.AgentID != agentID {
			continue
		}
		if entryType != "" && e.EntryType != entryType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// AppendAudit appends a new audit entry to agentID's chain. The
// read-last-then-append sequence runs inside the store's single lock, so
// concurrent appends for the same agent cannot race on prev_hash.
func (s *Service) AppendAudit(agentID, actionType, inputSummary, outputSummary, decisionRationale string, humanOverride bool, loggedBy string) (*AuditEntry, error) {
	id, err := idgen("audit")
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate audit id", err)
	}

	var entry AuditEntry
	err = s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}

		prevHash := genesisHash
		for i := len(col.Audit) - 1; i >= 0; i-- {
			if col.Audit[i].AgentID == agentID {
				prevHash = col.Audit[i].ChainHash
				break
			}
		}

		entry = AuditEntry{
			LogID:             id,
			AgentID:           agentID,
			ActionType:        actionType,
			InputSummary:      inputSummary,
			OutputSummary:     outputSummary,
			DecisionRationale: decisionRationale,
			HumanOverride:     humanOverride,
			Timestamp:         time.Now().UTC(),
			LoggedBy:          loggedBy,
			PrevHash:          prevHash,
		}

		chainHash, err := hashEntry(entry)
		if err != nil {
			return err
		}
		entry.ChainHash = chainHash

		m, err := kernel.ToMap(entry)
		if err != nil {
			return errs.Wrap(errs.Cryptographic, "failed to marshal audit entry", err)
		}
		sig, err := s.kernel.Sign(m, auditMask)
		if err != nil {
			return errs.Wrap(errs.Cryptographic, "failed to sign audit entry", err)
		}
		entry.Signature = sig

		col.Audit = append(col.Audit, entry)
		return s.store.Save(col)
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return &entry, nil
}

// hashEntry computes chain_hash = SHA-256(canonicalize(entry \ {signature, chain_hash})).
func hashEntry(e AuditEntry) (string, error) {
	m, err := kernel.ToMap(e)
	if err != nil {
		return "", errs.Wrap(errs.Cryptographic, "failed to marshal audit entry for hashing", err)
	}
	delete(m, "signature")
	delete(m, "chain_hash")
	return canonical.Hash(m)
}

// ListAudit returns an agent's audit entries in append order.
func (s *Service) ListAudit(agentID string) ([]AuditEntry, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}
	out := make([]AuditEntry, 0)
	for _, e := range col.Audit {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ChainVerification is the result of recomputing an agent's audit chain.
type ChainVerification struct {
	Valid       bool   `json:"valid"`
	EntryCount  int    `json:"entry_count"`
	BrokenAt    string `json:"broken_at,omitempty"` // log_id of the first entry whose prev_hash or chain_hash mismatches
}

// VerifyChain recomputes agentID's chain and flags the first entry whose
// prev_hash differs from the previous entry's chain_hash, or whose own
// chain_hash differs from the hash recomputed from its fields.
func (s *Service) VerifyChain(agentID string) (ChainVerification, error) {
	entries, err := s.ListAudit(agentID)
	if err != nil {
		return ChainVerification{}, err
	}

	expected := genesisHash
	for _, e := range entries {
		if e.PrevHash != expected {
			return ChainVerification{Valid: false, EntryCount: len(entries), BrokenAt: e.LogID}, nil
		}
		recomputed, err := hashEntry(AuditEntry{
			LogID: e.LogID, AgentID: e.AgentID, ActionType: e.ActionType,
			InputSummary: e.InputSummary, OutputSummary: e.OutputSummary,
			DecisionRationale: e.DecisionRationale, HumanOverride: e.HumanOverride,
			Timestamp: e.Timestamp, LoggedBy: e.LoggedBy, PrevHash: e.PrevHash,
		})
		if err != nil {
			return ChainVerification{}, err
		}
		if recomputed != e.ChainHash {
			return ChainVerification{Valid: false, EntryCount: len(entries), BrokenAt: e.LogID}, nil
		}
		expected = e.ChainHash
	}
	return ChainVerification{Valid: true, EntryCount: len(entries)}, nil
}

// PurgeAgent removes every provenance and audit entry mentioning agentID,
// returning the count removed — used by the Identity Service's GDPR purge.
func (s *Service) PurgeAgent(agentID string) (int, error) {
	count := 0
	err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		col.Entries, count = filterOutEntries(col.Entries, agentID, count)
		var auditRemoved int
		col.Audit, auditRemoved = filterOutAudit(col.Audit, agentID)
		count += auditRemoved
		return s.store.Save(col)
	})
	return count, translateStoreErr(err)
}

func filterOutEntries(entries []Entry, agentID string, count int) ([]Entry, int) {
	kept := entries[:0]
	for _, e := range entries {
		if e.AgentID == agentID {
			count++
			continue
		}
		kept = append(kept, e)
	}
	return kept, count
}

func filterOutAudit(entries []AuditEntry, agentID string) ([]AuditEntry, int) {
	removed := 0
	kept := entries[:0]
	for _, e := range entries {
		if e.AgentID == agentID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	return kept, removed
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
		return errs.Wrap(errs.StorageBusy, "provenance store busy", err)
	}
	return err
}
