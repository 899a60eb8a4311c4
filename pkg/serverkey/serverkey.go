// Package serverkey manages the process-wide Ed25519 signing keypair that is
// the root of trust for every signature this system produces. The key is
// loaded once at startup from a protected file and is read-only thereafter;
// corruption triggers regeneration with a logged warning, never silent reuse
// of partial key material.
package serverkey

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/VibeTensor/attestix/pkg/attcrypto"
)

// record is the on-disk persisted form: {did_key, private_key_b64, algorithm}.
type record struct {
	DIDKey        string `json:"did_key"`
	PrivateKeyB64 string `json:"private_key_b64"`
	Algorithm     string `json:"algorithm"`
}

// Key is the loaded, process-wide server signing key.
type Key struct {
	mu      sync.RWMutex
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	did     string
}

// Load reads the server key from path, generating and persisting a fresh one
// if the file is absent. If the file exists but is corrupt (unparseable,
// wrong key length, DID/key mismatch), a new key is generated and persisted
// — warnf is always called in that case; the caller never gets a silently
// recovered partial key.
func Load(path string, warnf func(format string, args ...any)) (*Key, error) {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if k, ok := tryParse(data); ok {
			return k, nil
		}
		warnf("serverkey: %s is corrupt or inconsistent; regenerating (previous signatures made with the old key become unverifiable)", path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("serverkey: read %s: %w", path, err)
	}

	return generateAndPersist(path)
}

func tryParse(data []byte) (*Key, bool) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	if rec.Algorithm != "Ed25519" {
		return nil, false
	}
	privBytes, err := base64.StdEncoding.DecodeString(rec.PrivateKeyB64)
	if err != nil || len(privBytes) != ed25519.PrivateKeySize {
		return nil, false
	}
	priv := ed25519.PrivateKey(privBytes)
	pub := priv.Public().(ed25519.PublicKey)

	did, err := attcrypto.EncodeDIDKey(pub)
	if err != nil || did != rec.DIDKey {
		return nil, false
	}

	return &Key{private: priv, public: pub, did: did}, true
}

func generateAndPersist(path string) (*Key, error) {
	kp, err := attcrypto.Generate()
	if err != nil {
		return nil, fmt.Errorf("serverkey: generate: %w", err)
	}
	did, err := attcrypto.EncodeDIDKey(kp.Public)
	if err != nil {
		return nil, fmt.Errorf("serverkey: encode did:key: %w", err)
	}

	rec := record{
		DIDKey:        did,
		PrivateKeyB64: base64.StdEncoding.EncodeToString(kp.Private),
		Algorithm:     "Ed25519",
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serverkey: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("serverkey: mkdir: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("serverkey: write: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("serverkey: commit: %w", err)
	}

	return &Key{private: kp.Private, public: kp.Public, did: did}, nil
}

// DID returns the server's did:key identifier.
func (k *Key) DID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.did
}

// Public returns the server's Ed25519 public key.
func (k *Key) Public() ed25519.PublicKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.public
}

// Sign signs data with the server's private key.
func (k *Key) Sign(data []byte) []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return attcrypto.Sign(k.private, data)
}

// Private returns the server's Ed25519 private key, for callers (the
// Delegation Service's JWT signing) that need the raw key material rather
// than a Sign(data) call.
func (k *Key) Private() ed25519.PrivateKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.private
}
