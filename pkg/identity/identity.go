// Package identity implements the Identity Service: creation, lookup,
// revocation, cross-protocol translation, and GDPR purge of Universal Agent
// Identity Tokens (UAITs) — the root entity every other service in this
// system references by agent_id.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/VibeTensor/attestix/pkg/errs"
	"github.com/VibeTensor/attestix/pkg/kernel"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

// SourceProtocol names the originating agent protocol an identity was
// minted for.
type SourceProtocol string

const (
	ProtocolA2A    SourceProtocol = "a2a"
	ProtocolMCP    SourceProtocol = "mcp"
	ProtocolOpenAI SourceProtocol = "openai_function"
	ProtocolCustom SourceProtocol = "custom"
)

// Issuer identifies the party that minted an identity.
type Issuer struct {
	Name string `json:"name"`
	DID  string `json:"did"`
}

// UAIT is a Universal Agent Identity Token — the signed core plus its
// mutable lifecycle fields.
type UAIT struct {
	Version         int            `json:"version"`
	AgentID         string         `json:"agent_id"`
	DisplayName     string         `json:"display_name"`
	Description     string         `json:"description,omitempty"`
	SourceProtocol  SourceProtocol `json:"source_protocol"`
	IdentityToken   string         `json:"identity_token,omitempty"`
	TokenInfo       map[string]any `json:"token_info,omitempty"`
	Capabilities    []string       `json:"capabilities"`
	Issuer          Issuer         `json:"issuer"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"`

	Signature        string     `json:"signature"`
	Revoked          bool       `json:"revoked"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	ReputationScore  float64    `json:"reputation_score"`
	EUComplianceRef  string     `json:"eu_compliance_ref,omitempty"`

	// SchemaVersion pins the UAIT shape this token was minted against, for
	// the kernel's structural-check phase. It is part of the signed core:
	// changing it after issuance invalidates the signature.
	SchemaVersion string `json:"schema_version"`
}

// currentUAITSchemaVersion is the schema_version stamped on every newly
// minted UAIT.
const currentUAITSchemaVersion = "1.0.0"

// collection holds every UAIT keyed by AgentID for in-process lookup, but
// persists on disk as identities.json: {"agents":[UAIT,...]}.
type collection struct {
	Identities map[string]UAIT
}

type collectionWire struct {
	Agents []UAIT `json:"agents"`
}

func (c collection) MarshalJSON() ([]byte, error) {
	agents := make([]UAIT, 0, len(c.Identities))
	for _, u := range c.Identities {
		agents = append(agents, u)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })
	return json.Marshal(collectionWire{Agents: agents})
}

func (c *collection) UnmarshalJSON(data []byte) error {
	var wire collectionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.Identities = make(map[string]UAIT, len(wire.Agents))
	for _, u := range wire.Agents {
		c.Identities[u.AgentID] = u
	}
	return nil
}

// Service is the Identity Service.
type Service struct {
	store     *safestore.Store
	kernel    *kernel.Kernel
	serverDID string
}

// New creates the Identity Service backed by store and kernel, with
// signatures verified against serverDID (the server's own did:key, since
// this system is the sole issuer of UAITs).
func New(store *safestore.Store, k *kernel.Kernel, serverDID string) *Service {
	return &Service{store: store, kernel: k, serverDID: serverDID}
}

// secretLikePrefixes are identity_token prefixes this service masks before
// persisting, so a raw provider API key never lands on disk verbatim.
var secretLikePrefixes = []string{"sk-", "Bearer ", "ghp_", "xox"}

func maskIfSecretLike(token string) string {
	for _, p := range secretLikePrefixes {
		if strings.HasPrefix(token, p) {
			return p + "***"
		}
	}
	return token
}

func newAgentID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "attestix:" + hex.EncodeToString(buf), nil
}

// Create mints a new UAIT.
func (s *Service) Create(displayName string, proto SourceProtocol, capabilities []string, description, issuerName string, expiryDays int, identityToken string) (*UAIT, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, errs.New(errs.Validation, "display_name must not be empty")
	}

	agentID, err := newAgentID()
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate agent id", err)
	}

	now := time.Now().UTC()
	u := UAIT{
		Version:        1,
		SchemaVersion:  currentUAITSchemaVersion,
		AgentID:        agentID,
		DisplayName:    displayName,
		Description:    description,
		SourceProtocol: proto,
		IdentityToken:  maskIfSecretLike(identityToken),
		Capabilities:   capabilities,
		Issuer:         Issuer{Name: issuerName, DID: s.serverDID},
		CreatedAt:      now,
		ExpiresAt:      now.AddDate(0, 0, expiryDays),
	}

	if err := s.sign(&u); err != nil {
		return nil, err
	}

	if err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		col.Identities[agentID] = u
		return s.save(col)
	}); err != nil {
		return nil, translateStoreErr(err)
	}

	return &u, nil
}

func (s *Service) sign(u *UAIT) error {
	m, err := kernel.ToMap(u)
	if err != nil {
		return errs.Wrap(errs.Cryptographic, "failed to marshal identity for signing", err)
	}
	sig, err := s.kernel.Sign(m, kernel.IdentityMask)
	if err != nil {
		return errs.Wrap(errs.Cryptographic, "failed to sign identity", err)
	}
	u.Signature = sig
	return nil
}

// Get retrieves a UAIT by agent id.
func (s *Service) Get(agentID string) (*UAIT, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}
	u, ok := col.Identities[agentID]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "identity %s not found", agentID)
	}
	return &u, nil
}

// List returns identities, optionally filtered by source protocol, excluding
// revoked identities unless includeRevoked is set, bounded by limit.
func (s *Service) List(proto SourceProtocol, includeRevoked bool, limit int) ([]UAIT, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}
	out := make([]UAIT, 0, len(col.Identities))
	for _, u := range col.Identities {
		if proto != "" && u.SourceProtocol != proto {
			continue
		}
		if u.Revoked && !includeRevoked {
			continue
		}
		out = append(out, u)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// VerifyChecks is the set of independent checks Verify reports.
type VerifyChecks struct {
	Exists         bool `json:"exists"`
	NotRevoked     bool `json:"not_revoked"`
	NotExpired     bool `json:"not_expired"`
	StructureValid bool `json:"structure_valid"`
	SignatureValid bool `json:"signature_valid"`
}

// VerifyResult is the outcome of verifying a UAIT.
type VerifyResult struct {
	Valid  bool         `json:"valid"`
	Checks VerifyChecks `json:"checks"`
}

// Verify reports whether agentID names a live, unexpired, validly signed
// identity. Valid is the conjunction of every check — no single failing
// check throws, each is simply false.
func (s *Service) Verify(agentID string) (VerifyResult, error) {
	col, err := s.load()
	if err != nil {
		return VerifyResult{}, translateStoreErr(err)
	}
	u, exists := col.Identities[agentID]
	checks := VerifyChecks{Exists: exists}
	if !exists {
		return VerifyResult{Valid: false, Checks: checks}, nil
	}

	checks.NotRevoked = !u.Revoked
	checks.NotExpired = time.Now().UTC().Before(u.ExpiresAt)

	m, err := kernel.ToMap(u)
	if err == nil {
		checks.StructureValid = kernel.ValidateStructure(kernel.KindIdentity, m) == nil
		res := kernel.Verify(m, "signature", u.Issuer.DID, kernel.IdentityMask)
		checks.SignatureValid = res.SignatureValid
	}

	valid := checks.Exists && checks.NotRevoked && checks.NotExpired && checks.StructureValid && checks.SignatureValid
	return VerifyResult{Valid: valid, Checks: checks}, nil
}

// Revoke flips the mutable revocation fields. The signature, computed only
// over the immutable core, remains valid after this call.
func (s *Service) Revoke(agentID, reason string) error {
	return s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		u, ok := col.Identities[agentID]
		if !ok {
			return errs.Newf(errs.NotFound, "identity %s not found", agentID)
		}
		now := time.Now().UTC()
		u.Revoked = true
		u.RevocationReason = reason
		u.RevokedAt = &now
		col.Identities[agentID] = u
		return s.save(col)
	})
}

// TranslationTarget is a rendering format Translate can produce.
type TranslationTarget string

const (
	TargetA2AAgentCard TranslationTarget = "a2a_agent_card"
	TargetDIDDocument  TranslationTarget = "did_document"
	TargetOAuthClaims  TranslationTarget = "oauth_claims"
	TargetSummary      TranslationTarget = "summary"
)

// Translate renders the stored UAIT into an external representation. This is
// pure projection — it never re-signs or mutates the stored entity.
func (s *Service) Translate(agentID string, target TranslationTarget) (map[string]any, error) {
	u, err := s.Get(agentID)
	if err != nil {
		return nil, err
	}

	switch target {
	case TargetA2AAgentCard:
		return map[string]any{
			"name":         u.DisplayName,
			"description":  u.Description,
			"capabilities": u.Capabilities,
			"provider":     map[string]any{"organization": u.Issuer.Name},
		}, nil
	case TargetDIDDocument:
		return map[string]any{
			"id": u.Issuer.DID,
			"verificationMethod": []map[string]any{{
				"id":                 u.Issuer.DID + "#keyfragment",
				"type":               "Ed25519VerificationKey2020",
				"controller":         u.Issuer.DID,
				"publicKeyMultibase": strings.TrimPrefix(u.Issuer.DID, "did:key:"),
			}},
		}, nil
	case TargetOAuthClaims:
		return map[string]any{
			"sub":   u.AgentID,
			"name":  u.DisplayName,
			"scope": strings.Join(u.Capabilities, " "),
			"iss":   u.Issuer.DID,
		}, nil
	case TargetSummary:
		return map[string]any{
			"agent_id": u.AgentID,
			"name":     u.DisplayName,
			"protocol": u.SourceProtocol,
			"revoked":  u.Revoked,
		}, nil
	default:
		return nil, errs.Newf(errs.Validation, "unknown translation target %q", target)
	}
}

// PurgeCounts is the per-category removal count a GDPR purge reports.
type PurgeCounts map[string]int

// Purge removes every record mentioning agentID from the collections passed
// in purgers — each purger is a closure over one other service's store. The
// identity record is deleted under the identity collection's lock; the
// purgers run after that lock is released, each under its own store's lock
// (the toolserver's purge_agent_data handler wires every service's purge
// hook together).
func (s *Service) Purge(agentID string, purgers map[string]func(agentID string) (int, error)) (PurgeCounts, error) {
	counts := make(PurgeCounts)

	err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		if _, ok := col.Identities[agentID]; ok {
			delete(col.Identities, agentID)
			counts["identities"] = 1
		} else {
			counts["identities"] = 0
		}
		return s.save(col)
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	for name, purge := range purgers {
		n, err := purge(agentID)
		if err != nil {
			return counts, fmt.Errorf("purge %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}

func (s *Service) load() (*collection, error) {
	col := &collection{Identities: map[string]UAIT{}}
	if err := s.store.Load(col); err != nil {
		return nil, err
	}
	if col.Identities == nil {
		col.Identities = map[string]UAIT{}
	}
	return col, nil
}

func (s *Service) save(col *collection) error {
	return s.store.Save(col)
}

func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if err == safestore.ErrBusy {
		return errs.Wrap(errs.StorageBusy, "identity store busy", err)
	}
	return err
}
