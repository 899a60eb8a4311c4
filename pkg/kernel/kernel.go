// Package kernel implements the Signed-Object Kernel: the single sign/verify
// operation every persisted entity with a signature field goes through. Each
// entity type statically declares a Mask of the fields excluded from its
// signed core — mutable fields such as revocation status or reputation score
// that may change after signing without invalidating the signature.
package kernel

import (
	"encoding/base64"
	"encoding/json"

	"github.com/VibeTensor/attestix/pkg/attcrypto"
	"github.com/VibeTensor/attestix/pkg/canonical"
)

// Mask names the fields of an entity that are excluded from its signed core.
type Mask map[string]struct{}

// NewMask builds a Mask from a list of field names.
func NewMask(fields ...string) Mask {
	m := make(Mask, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}

// Static per-entity-type mutable-field masks for identities, credentials,
// presentations and compliance profiles. Packages with entity types of their
// own (provenance, compliance) declare their masks with NewMask.
var (
	IdentityMask = NewMask(
		"signature", "revoked", "revocation_reason", "revoked_at",
		"reputation_score", "eu_compliance_ref",
	)
	CredentialMask        = NewMask("proof", "credentialStatus")
	PresentationMask      = NewMask("proof")
	ComplianceProfileMask = NewMask("conformity", "updated_at", "signature")
)

// Signer is anything able to produce an Ed25519 signature over bytes and
// report its own did:key — satisfied by *serverkey.Key.
type Signer interface {
	Sign(data []byte) []byte
	DID() string
}

// Kernel signs and verifies entities against a single server key.
type Kernel struct {
	key Signer
}

// New creates a Kernel backed by key.
func New(key Signer) *Kernel {
	return &Kernel{key: key}
}

// Sign computes the signature over the canonical bytes of object's signed
// core (object with mask's fields removed), base64url-encoded, and returns
// it. object must already be (or be convertible via JSON round-trip to) a
// map[string]any — the shape every stored entity takes.
func (k *Kernel) Sign(object map[string]any, mask Mask) (string, error) {
	core := signedCore(object, mask)
	data, err := canonical.Canonicalize(core)
	if err != nil {
		return "", err
	}
	sig := k.key.Sign(data)
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyResult reports the outcome of a signature check. It is always
// populated — Verify has no error return; a failure to canonicalize the
// candidate object is reported as SignatureValid=false like any other.
type VerifyResult struct {
	SignatureValid bool
}

// Verify recomputes the canonical bytes of object's signed core (ignoring
// whatever mutable-field values are currently present) and checks the
// base64url signature in object[signatureField] against issuerDID's public
// key. It never panics and never returns true on any malformed input —
// missing signature, undecodable base64, bad did:key, or an actual
// cryptographic mismatch all yield SignatureValid=false.
func Verify(object map[string]any, signatureField, issuerDID string, mask Mask) VerifyResult {
	sigVal, ok := object[signatureField].(string)
	if !ok || sigVal == "" {
		return VerifyResult{SignatureValid: false}
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigVal)
	if err != nil {
		return VerifyResult{SignatureValid: false}
	}

	pub, err := attcrypto.DecodeDIDKey(issuerDID)
	if err != nil {
		return VerifyResult{SignatureValid: false}
	}

	core := signedCore(object, mask)
	data, err := canonical.Canonicalize(core)
	if err != nil {
		return VerifyResult{SignatureValid: false}
	}

	return VerifyResult{SignatureValid: attcrypto.Verify(pub, data, sig)}
}

// signedCore returns a shallow copy of object with every masked field
// removed, leaving only the immutable signed core.
func signedCore(object map[string]any, mask Mask) map[string]any {
	core := make(map[string]any, len(object))
	for k, v := range object {
		if _, excluded := mask[k]; excluded {
			continue
		}
		core[k] = v
	}
	return core
}

// ToMap round-trips a typed struct through JSON to the map[string]any shape
// Sign/Verify operate on, so callers can work with concrete entity structs
// and still share the generic kernel.
func ToMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
