// Package delegation implements the UCAN-style Delegation Service: minting,
// verifying, revoking, and listing capability-delegation tokens signed by
// the server key. Only the delegation record is persisted — the token
// bytes themselves are never stored, so a leaked collection file cannot be
// replayed as a valid token.
package delegation

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/VibeTensor/attestix/pkg/errs"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

const tokenType = "ucan/delegation"
const ucanVersion = "0.9.0"

// supportedUcanVersions is the range of "ucv" header values this server
// accepts on verify. A token minted by a future revision of this service
// that bumps ucanVersion past the range is rejected rather than parsed with
// a claims shape this build was never taught to read.
var supportedUcanVersions = mustConstraint(">= 0.9.0, < 1.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic("delegation: invalid ucan version constraint: " + err.Error())
	}
	return c
}

// claims is the UCAN-style JWT payload.
type claims struct {
	jwt.RegisteredClaims
	Attenuations []string `json:"att"`
	Delegator    string   `json:"delegator"`
	Proofs       []string `json:"prf"`
	Typ          string   `json:"typ"`
}

// Record is the persisted, never-re-derivable-from-the-token side of a
// delegation: revocation state lives here, not on the JWT.
type Record struct {
	JTI          string    `json:"jti"`
	Issuer       string    `json:"issuer"`
	Audience     string    `json:"audience"`
	Delegator    string    `json:"delegator"`
	Capabilities []string  `json:"capabilities"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	ParentJTI    string    `json:"parent_jti,omitempty"`

	Revoked          bool       `json:"revoked"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}

type collection struct {
	Records map[string]Record `json:"records"`
}

// Service is the Delegation Service. Unlike the teacher's rotating
// InMemoryKeySet, every delegation token is signed and verified with the
// single process-wide server key — there is no kid lookup.
type Service struct {
	store      *safestore.Store
	serverDID  string
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// New creates the Delegation Service, signing and verifying tokens with the
// server key identified by serverDID.
func New(store *safestore.Store, serverDID string, private ed25519.PrivateKey, public ed25519.PublicKey) *Service {
	return &Service{store: store, serverDID: serverDID, privateKey: private, publicKey: public}
}

func newJTI() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateResult bundles the minted token string with its persisted record.
type CreateResult struct {
	Token  string
	Record Record
}

// Create mints a delegation token from issuer (the server, as signer) on
// behalf of delegator to audience, granting capabilities for expiryHours.
// parentToken, if non-empty, is embedded verbatim in the `prf` chain.
func (s *Service) Create(delegator, audience string, capabilities []string, expiryHours float64, parentToken string) (*CreateResult, error) {
	jti, err := newJTI()
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate jti", err)
	}

	now := time.Now().UTC()
	exp := now.Add(time.Duration(expiryHours * float64(time.Hour)))

	proofs := []string{}
	var parentJTI string
	if parentToken != "" {
		proofs = append(proofs, parentToken)
		if parentClaims, err := s.parseUnverified(parentToken); err == nil {
			parentJTI = parentClaims.ID
		}
	}

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.serverDID,
			Subject:   audience,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		Attenuations: capabilities,
		Delegator:    delegator,
		Proofs:       proofs,
		Typ:          tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	token.Header["ucv"] = ucanVersion

	signed, err := s.signToken(token)
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to sign delegation token", err)
	}

	rec := Record{
		JTI:          jti,
		Issuer:       s.serverDID,
		Audience:     audience,
		Delegator:    delegator,
		Capabilities: capabilities,
		IssuedAt:     now,
		ExpiresAt:    exp,
		ParentJTI:    parentJTI,
	}

	if err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		col.Records[jti] = rec
		return s.store.Save(col)
	}); err != nil {
		return nil, translateStoreErr(err)
	}

	return &CreateResult{Token: signed, Record: rec}, nil
}

// VerifyResult is the outcome of verifying a delegation token.
type VerifyResult struct {
	Valid        bool
	Delegator    string
	Audience     string
	Capabilities []string
	ProofChain   []string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Expired      bool
}

// Verify decodes token with the server public key and checks it against its
// persisted record (for revocation). Any failure — bad signature,
// malformed claims, expiry, revocation — yields Valid=false, never an error
// escape.
func (s *Service) Verify(token string) VerifyResult {
	c, ok := s.parseVerified(token)
	if !ok {
		return VerifyResult{Valid: false}
	}

	expired := time.Now().UTC().After(c.ExpiresAt.Time)

	col, err := s.load()
	revoked := false
	if err == nil {
		if rec, ok := col.Records[c.ID]; ok {
			revoked = rec.Revoked
		} else {
			revoked = true // no record: either purged or never legitimately minted
		}
	}

	return VerifyResult{
		Valid:        !expired && !revoked,
		Delegator:    c.Delegator,
		Audience:     c.Subject,
		Capabilities: c.Attenuations,
		ProofChain:   c.Proofs,
		IssuedAt:     c.IssuedAt.Time,
		ExpiresAt:    c.ExpiresAt.Time,
		Expired:      expired,
	}
}

// Revoke flips a record's revoked flag. Revoking an already-revoked record
// is an error — double-revoke must not silently succeed.
func (s *Service) Revoke(jti, reason string) error {
	return s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		rec, ok := col.Records[jti]
		if !ok {
			return errs.Newf(errs.NotFound, "delegation %s not found", jti)
		}
		if rec.Revoked {
			return errs.Newf(errs.Revoked, "delegation %s is already revoked", jti)
		}
		now := time.Now().UTC()
		rec.Revoked = true
		rec.RevocationReason = reason
		rec.RevokedAt = &now
		col.Records[jti] = rec
		return s.store.Save(col)
	})
}

// Role filters List by which side of a delegation agentID played.
type Role string

const (
	RoleIssuer   Role = "issuer"
	RoleAudience Role = "audience"
	RoleAny      Role = "any"
)

// List returns non-revoked delegation records; expired ones are omitted
// unless includeExpired is set. agentID, if non-empty, filters by role.
func (s *Service) List(agentID string, role Role, includeExpired bool) ([]Record, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}
	now := time.Now().UTC()

	out := make([]Record, 0, len(col.Records))
	for _, rec := range col.Records {
		if rec.Revoked {
			continue
		}
		if !includeExpired && now.After(rec.ExpiresAt) {
			continue
		}
		if agentID != "" {
			switch role {
			case RoleIssuer:
				if rec.Delegator != agentID {
					continue
				}
			case RoleAudience:
				if rec.Audience != agentID {
					continue
				}
			default:
				if rec.Delegator != agentID && rec.Audience != agentID {
					continue
				}
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Service) load() (*collection, error) {
	col := &collection{Records: map[string]Record{}}
	if err := s.store.Load(col); err != nil {
		return nil, err
	}
	if col.Records == nil {
		col.Records = map[string]Record{}
	}
	return col, nil
}

// PurgeAgent removes every delegation record where agentID is the
// delegator or the audience, for GDPR erasure fan-out from the identity
// service's Purge.
func (s *Service) PurgeAgent(agentID string) (int, error) {
	var n int
	err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		for jti, rec := range col.Records {
			if rec.Delegator == agentID || rec.Audience == agentID {
				delete(col.Records, jti)
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

func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if err == safestore.ErrBusy {
		return errs.Wrap(errs.StorageBusy, "delegation store busy", err)
	}
	return err
}

func (s *Service) parseUnverified(token string) (*claims, error) {
	c := &claims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) parseVerified(token string) (*claims, bool) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if !ucanVersionSupported(parsed.Header["ucv"]) {
		return nil, false
	}
	return c, true
}

// ucanVersionSupported reports whether a token's "ucv" header names a UCAN
// revision this build knows how to interpret.
func ucanVersionSupported(raw any) bool {
	s, ok := raw.(string)
	if !ok || s == "" {
		return false
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return false
	}
	return supportedUcanVersions.Check(v)
}

func (s *Service) signToken(token *jwt.Token) (string, error) {
	return token.SignedString(s.privateKey)
}
