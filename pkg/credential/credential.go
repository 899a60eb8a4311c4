// Package credential implements the Credential Service: issuance,
// verification, and revocation of W3C Verifiable Credentials, and
// presentation of credential bundles as Verifiable Presentations.
package credential

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/VibeTensor/attestix/pkg/errs"
	"github.com/VibeTensor/attestix/pkg/kernel"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

const (
	vcContextW3C      = "https://www.w3.org/2018/credentials/v1"
	vcContextEd25519  = "https://w3id.org/security/suites/ed25519-2020/v1"
)

// Proof is the Ed25519Signature2020 proof block attached to a VC or VP.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
	Domain             string `json:"domain,omitempty"`
	Challenge          string `json:"challenge,omitempty"`
}

// CredentialStatus is the mutable revocation status of a VC.
type CredentialStatus struct {
	Revoked bool   `json:"revoked"`
	Reason  string `json:"reason,omitempty"`
}

// CredentialSubject is the entity a VC makes claims about.
type CredentialSubject struct {
	ID     string         `json:"id"`
	Claims map[string]any `json:"claims"`
}

// Issuer identifies a VC's issuer.
type Issuer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VC is a W3C Verifiable Credential.
type VC struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id"`
	Type              []string          `json:"type"`
	Issuer            Issuer            `json:"issuer"`
	IssuanceDate      time.Time         `json:"issuanceDate"`
	ExpirationDate    time.Time         `json:"expirationDate"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`

	Proof            Proof            `json:"proof"`
	CredentialStatus CredentialStatus `json:"credentialStatus"`

	// SchemaVersion pins the VC shape this credential was issued against,
	// checked by the kernel's structural-check phase. Part of the signed
	// core: changing it after issuance invalidates the proof.
	SchemaVersion string `json:"schemaVersion"`
}

// currentVCSchemaVersion is the schemaVersion stamped on every newly issued VC.
const currentVCSchemaVersion = "1.0.0"

// VP is a W3C Verifiable Presentation. Presentations are transient — they
// are returned to the caller and never written to Safe Store.
type VP struct {
	Context              []string `json:"@context"`
	ID                   string   `json:"id"`
	Type                 string   `json:"type"`
	Holder               string   `json:"holder"`
	VerifiableCredential []VC     `json:"verifiableCredential"`

	Proof Proof `json:"proof"`
}

type collection struct {
	Credentials map[string]VC `json:"credentials"`
}

// Service is the Credential Service.
type Service struct {
	store     *safestore.Store
	kernel    *kernel.Kernel
	serverDID string
}

// New creates the Credential Service.
func New(store *safestore.Store, k *kernel.Kernel, serverDID string) *Service {
	return &Service{store: store, kernel: k, serverDID: serverDID}
}

// Issue mints a new Verifiable Credential for subjectID.
func (s *Service) Issue(subjectID, credentialType, issuerName string, claims map[string]any, expiryDays int) (*VC, error) {
	now := time.Now().UTC()
	vc := VC{
		Context:       []string{vcContextW3C, vcContextEd25519},
		ID:            "urn:uuid:" + uuid.NewString(),
		Type:          []string{"VerifiableCredential", credentialType},
		Issuer:        Issuer{ID: s.serverDID, Name: issuerName},
		SchemaVersion: currentVCSchemaVersion,
		IssuanceDate:  now,
		ExpirationDate: now.AddDate(0, 0, expiryDays),
		CredentialSubject: CredentialSubject{
			ID:     subjectID,
			Claims: claims,
		},
	}

	sig, err := s.signCore(&vc, kernel.CredentialMask)
	// (vc.Proof and vc.CredentialStatus are zero-valued here, which is fine:
	// both are fully excluded from the signed core by CredentialMask.)
	if err != nil {
		return nil, err
	}
	vc.Proof = Proof{
		Type:               "Ed25519Signature2020",
		Created:            now.Format(time.RFC3339),
		VerificationMethod: s.serverDID + "#keyfragment",
		ProofPurpose:       "assertionMethod",
		ProofValue:         sig,
	}

	if err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		col.Credentials[vc.ID] = vc
		return s.store.Save(col)
	}); err != nil {
		return nil, translateStoreErr(err)
	}

	return &vc, nil
}

func (s *Service) signCore(v any, mask kernel.Mask) (string, error) {
	m, err := kernel.ToMap(v)
	if err != nil {
		return "", errs.Wrap(errs.Cryptographic, "failed to marshal for signing", err)
	}
	sig, err := s.kernel.Sign(m, mask)
	if err != nil {
		return "", errs.Wrap(errs.Cryptographic, "failed to sign", err)
	}
	return sig, nil
}

// VerifyChecks mirrors the Identity Service's check shape.
type VerifyChecks struct {
	Exists         bool `json:"exists"`
	NotRevoked     bool `json:"not_revoked"`
	NotExpired     bool `json:"not_expired"`
	StructureValid bool `json:"structure_valid"`
	SignatureValid bool `json:"signature_valid"`
}

// VerifyResult is the outcome of verifying a VC.
type VerifyResult struct {
	Valid  bool         `json:"valid"`
	Checks VerifyChecks `json:"checks"`
}

// Verify checks a credential by id against the local store.
func (s *Service) Verify(id string) (VerifyResult, error) {
	col, err := s.load()
	if err != nil {
		return VerifyResult{}, translateStoreErr(err)
	}
	vc, ok := col.Credentials[id]
	if !ok {
		return VerifyResult{Valid: false, Checks: VerifyChecks{Exists: false}}, nil
	}
	return s.verifyVC(vc, true), nil
}

// VerifyExternal checks a raw VC handed to this system by another party —
// no store lookup is performed, so not_revoked defaults to true unless the
// credential's own credentialStatus says otherwise.
func (s *Service) VerifyExternal(vc VC) VerifyResult {
	return s.verifyVC(vc, !vc.CredentialStatus.Revoked)
}

func (s *Service) verifyVC(vc VC, notRevoked bool) VerifyResult {
	checks := VerifyChecks{
		Exists:     true,
		NotRevoked: notRevoked,
		NotExpired: time.Now().UTC().Before(vc.ExpirationDate),
	}
	if m, err := kernel.ToMap(vc); err == nil {
		checks.StructureValid = kernel.ValidateStructure(kernel.KindCredential, m) == nil
	}
	checks.SignatureValid = s.verifySignature(vc)

	valid := checks.Exists && checks.NotRevoked && checks.NotExpired && checks.StructureValid && checks.SignatureValid
	return VerifyResult{Valid: valid, Checks: checks}
}

// verifySignature recomputes the signed core excluding proof/credentialStatus
// and checks vc.Proof.ProofValue against the issuer's did:key.
func (s *Service) verifySignature(vc VC) bool {
	if vc.Proof.ProofValue == "" {
		return false
	}
	m, err := kernel.ToMap(vc)
	if err != nil {
		return false
	}
	m["__sig"] = vc.Proof.ProofValue
	res := kernel.Verify(m, "__sig", vc.Issuer.ID, kernel.CredentialMask)
	return res.SignatureValid
}

// Get returns the stored VC by id.
func (s *Service) Get(id string) (*VC, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}
	vc, ok := col.Credentials[id]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "credential %s not found", id)
	}
	return &vc, nil
}

// List returns every credential issued to subjectID, newest first.
func (s *Service) List(subjectID string, limit int) ([]VC, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}
	out := make([]VC, 0, len(col.Credentials))
	for _, vc := range col.Credentials {
		if subjectID != "" && vc.CredentialSubject.ID != subjectID {
			continue
		}
		out = append(out, vc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuanceDate.After(out[j].IssuanceDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PurgeSubject removes every credential issued to subjectID, for GDPR
// erasure fan-out from the identity service's Purge.
func (s *Service) PurgeSubject(subjectID string) (int, error) {
	var n int
	err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		for id, vc := range col.Credentials {
			if vc.CredentialSubject.ID == subjectID {
				delete(col.Credentials, id)
				n++
			}
		}
		return s.store.Save(col)
	})
	if err != nil {
		return 0, translateStoreErr(err)
	}
	return n, nil
}

// Revoke sets credentialStatus.revoked only — the proof, computed over the
// signed core excluding credentialStatus, remains valid.
func (s *Service) Revoke(id, reason string) error {
	return s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		vc, ok := col.Credentials[id]
		if !ok {
			return errs.Newf(errs.NotFound, "credential %s not found", id)
		}
		vc.CredentialStatus = CredentialStatus{Revoked: true, Reason: reason}
		col.Credentials[id] = vc
		return s.store.Save(col)
	})
}

// CreatePresentation bundles one or more credentials owned by holder into a
// Verifiable Presentation.
func (s *Service) CreatePresentation(holder string, credentialIDs []string, audience, challenge string) (*VP, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}

	creds := make([]VC, 0, len(credentialIDs))
	for _, id := range credentialIDs {
		vc, ok := col.Credentials[id]
		if !ok {
			return nil, errs.Newf(errs.NotFound, "credential %s not found", id)
		}
		if vc.CredentialSubject.ID != holder {
			return nil, errs.Newf(errs.Validation, "credential %s is not held by %s", id, holder)
		}
		creds = append(creds, vc)
	}

	now := time.Now().UTC()
	vp := VP{
		Context:              []string{vcContextW3C, vcContextEd25519},
		ID:                   "urn:uuid:" + uuid.NewString(),
		Type:                 "VerifiablePresentation",
		Holder:               holder,
		VerifiableCredential: creds,
	}

	sig, err := s.signCore(&vp, kernel.PresentationMask)
	if err != nil {
		return nil, err
	}
	vp.Proof = Proof{
		Type:               "Ed25519Signature2020",
		Created:            now.Format(time.RFC3339),
		VerificationMethod: s.serverDID + "#keyfragment",
		ProofPurpose:       "authentication",
		Domain:             audience,
		Challenge:          challenge,
		ProofValue:         sig,
	}
	return &vp, nil
}

// VPVerifyChecks is the set of independent checks VerifyPresentation reports.
type VPVerifyChecks struct {
	StructureValid        bool `json:"structure_valid"`
	VPSignatureValid      bool `json:"vp_signature_valid"`
	CredentialsValid      bool `json:"credentials_valid"`
	HolderMatchesSubjects bool `json:"holder_matches_subjects"`
	ChallengePresent      bool `json:"challenge_present,omitempty"`
	DomainPresent         bool `json:"domain_present,omitempty"`
}

// VPVerifyResult is the outcome of verifying a Verifiable Presentation.
type VPVerifyResult struct {
	Valid  bool           `json:"valid"`
	Checks VPVerifyChecks `json:"checks"`
}

// VerifyPresentation checks vp's own signature and every nested credential,
// and enforces that each credential's subject matches the presentation's
// holder.
func (s *Service) VerifyPresentation(vp VP) VPVerifyResult {
	checks := VPVerifyChecks{
		ChallengePresent: vp.Proof.Challenge != "",
		DomainPresent:    vp.Proof.Domain != "",
	}
	if m, err := kernel.ToMap(vp); err == nil {
		checks.StructureValid = kernel.ValidateStructure(kernel.KindPresentation, m) == nil
	}
	if !checks.StructureValid {
		return VPVerifyResult{Valid: false, Checks: checks}
	}

	checks.VPSignatureValid = s.verifyVPSignature(vp)

	credentialsValid := true
	holderMatches := true
	for _, vc := range vp.VerifiableCredential {
		if !s.verifyVC(vc, !vc.CredentialStatus.Revoked).Valid {
			credentialsValid = false
		}
		if vc.CredentialSubject.ID != vp.Holder {
			holderMatches = false
		}
	}
	checks.CredentialsValid = credentialsValid
	checks.HolderMatchesSubjects = holderMatches

	valid := checks.StructureValid && checks.VPSignatureValid && checks.CredentialsValid && checks.HolderMatchesSubjects
	return VPVerifyResult{Valid: valid, Checks: checks}
}

func (s *Service) verifyVPSignature(vp VP) bool {
	if vp.Proof.ProofValue == "" {
		return false
	}
	m, err := kernel.ToMap(vp)
	if err != nil {
		return false
	}
	m["__sig"] = vp.Proof.ProofValue
	res := kernel.Verify(m, "__sig", s.serverDID, kernel.PresentationMask)
	return res.SignatureValid
}

func (s *Service) load() (*collection, error) {
	col := &collection{Credentials: map[string]VC{}}
	if err := s.store.Load(col); err != nil {
		return nil, err
	}
	if col.Credentials == nil {
		col.Credentials = map[string]VC{}
	}
	return col, nil
}

func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if err == safestore.ErrBusy {
		return errs.Wrap(errs.StorageBusy, "credential store busy", err)
	}
	return err
}
