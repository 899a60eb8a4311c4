package resolver

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/VibeTensor/attestix/pkg/attcrypto"
	"github.com/VibeTensor/attestix/pkg/errs"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

// Keypair is a locally persisted Ed25519 keypair backing a did:key or
// did:web identity minted on this agent's behalf. The private key never
// leaves this record — callers get back a keypair_id, not the key itself.
type Keypair struct {
	DID                string    `json:"did"`
	Algorithm          string    `json:"algorithm"`
	PublicKeyMultibase string    `json:"public_key_multibase"`
	PrivateKeyB64      string    `json:"private_key_b64"`
	CreatedAt          time.Time `json:"created_at"`
}

type keypairCollection struct {
	Keypairs map[string]Keypair `json:"keypairs"`
}

// KeyMinter creates new DID-backing keypairs and stores them locally,
// separately from the server's own signing key.
type KeyMinter struct {
	store *safestore.Store
}

// NewKeyMinter creates a KeyMinter backed by store.
func NewKeyMinter(store *safestore.Store) *KeyMinter {
	return &KeyMinter{store: store}
}

// CreatedDID is the result of minting a new DID identity.
type CreatedDID struct {
	DID                string   `json:"did"`
	DIDDocument        Document `json:"did_document"`
	KeypairID          string   `json:"keypair_id"`
	PublicKeyMultibase string   `json:"public_key_multibase"`
	HostingURL         string   `json:"hosting_url,omitempty"`
	Instructions       string   `json:"instructions,omitempty"`
	Note               string   `json:"note"`
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (m *KeyMinter) persist(keypairID string, kp Keypair) error {
	return m.store.WithLock(func() error {
		col := &keypairCollection{Keypairs: map[string]Keypair{}}
		if err := m.store.Load(col); err != nil {
			return err
		}
		if col.Keypairs == nil {
			col.Keypairs = map[string]Keypair{}
		}
		col.Keypairs[keypairID] = kp
		return m.store.Save(col)
	})
}

// CreateDIDKey mints a fresh Ed25519 keypair and its did:key identity.
func (m *KeyMinter) CreateDIDKey() (*CreatedDID, error) {
	pair, err := attcrypto.Generate()
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate keypair", err)
	}
	did, err := attcrypto.EncodeDIDKey(pair.Public)
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to encode did:key", err)
	}
	pubMultibase := "z" + base58.Encode(pair.Public)
	privB64 := base64.RawURLEncoding.EncodeToString(pair.Private)

	suffix, err := randomSuffix(8)
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate keypair id", err)
	}
	keypairID := "keypair:" + suffix

	if err := m.persist(keypairID, Keypair{
		DID:                did,
		Algorithm:          "Ed25519",
		PublicKeyMultibase: pubMultibase,
		PrivateKeyB64:      privB64,
		CreatedAt:          time.Now().UTC(),
	}); err != nil {
		return nil, translateStoreErr(err)
	}

	return &CreatedDID{
		DID:                did,
		DIDDocument:        buildDIDKeyDocument(did, pubMultibase),
		KeypairID:          keypairID,
		PublicKeyMultibase: pubMultibase,
		Note:               "private key stored locally; use keypair_id to reference it",
	}, nil
}

// CreateDIDWeb mints a fresh keypair and a did:web DID Document for domain,
// optionally rooted at path rather than /.well-known.
func (m *KeyMinter) CreateDIDWeb(domain, path string) (*CreatedDID, error) {
	if strings.TrimSpace(domain) == "" {
		return nil, errs.New(errs.Validation, "domain must not be empty")
	}

	didPath := ""
	if path != "" {
		didPath = ":" + strings.ReplaceAll(path, "/", ":")
	}
	did := "did:web:" + domain + didPath

	pair, err := attcrypto.Generate()
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate keypair", err)
	}
	pubMultibase := "z" + base58.Encode(pair.Public)
	privB64 := base64.RawURLEncoding.EncodeToString(pair.Private)

	hostingURL := "https://" + domain + "/.well-known/did.json"
	if path != "" {
		hostingURL = "https://" + domain + "/" + strings.Trim(path, "/") + "/did.json"
	}

	suffix, err := randomSuffix(4)
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate keypair id", err)
	}
	keypairID := "keypair:" + domain + ":" + suffix

	if err := m.persist(keypairID, Keypair{
		DID:                did,
		Algorithm:          "Ed25519",
		PublicKeyMultibase: pubMultibase,
		PrivateKeyB64:      privB64,
		CreatedAt:          time.Now().UTC(),
	}); err != nil {
		return nil, translateStoreErr(err)
	}

	return &CreatedDID{
		DID:                did,
		DIDDocument:        buildDIDKeyDocument(did, pubMultibase),
		KeypairID:          keypairID,
		PublicKeyMultibase: pubMultibase,
		HostingURL:         hostingURL,
		Instructions:       "host the did_document JSON at " + hostingURL + " to make this DID resolvable",
		Note:               "private key stored locally; use keypair_id to reference it",
	}, nil
}

func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if err == safestore.ErrBusy {
		return errs.Wrap(errs.StorageBusy, "keypair store busy", err)
	}
	return err
}
