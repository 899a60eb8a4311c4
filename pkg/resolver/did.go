package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/VibeTensor/attestix/pkg/attcrypto"
	"github.com/VibeTensor/attestix/pkg/errs"
)

var (
	didWebPathSegment = regexp.MustCompile(`^[a-z0-9._-]+$`)
	didGeneric        = regexp.MustCompile(`^did:[a-z0-9]+:[a-zA-Z0-9._:%-]+$`)
)

// Document is a (deliberately partial) DID Document: just enough to carry a
// single Ed25519 verification method, which is all this system ever signs
// or verifies with.
type Document map[string]any

// Resolver resolves DIDs to DID Documents: did:key locally, did:web over
// HTTPS with SSRF guarding and IP pinning, everything else through a
// Universal Resolver instance.
type Resolver struct {
	universalResolverURL string
	didWebClient         *pinnedClient
	universalClient      *pinnedClient
}

// New creates a Resolver. universalResolverURL is the base URL of a
// Universal Resolver deployment (e.g. "https://dev.uniresolver.io/1.0/identifiers/");
// it is only consulted for DID methods other than key and web.
func New(universalResolverURL string) *Resolver {
	return &Resolver{
		universalResolverURL: universalResolverURL,
		didWebClient:         newPinnedClient(10 * time.Second),
		universalClient:      newPinnedClient(15 * time.Second),
	}
}

// Resolve resolves did to its DID Document.
func (r *Resolver) Resolve(ctx context.Context, did string) (Document, error) {
	switch {
	case strings.HasPrefix(did, "did:key:"):
		return resolveDIDKey(did)
	case strings.HasPrefix(did, "did:web:"):
		return r.resolveDIDWeb(ctx, did)
	default:
		return r.resolveUniversal(ctx, did)
	}
}

func resolveDIDKey(did string) (Document, error) {
	pub, err := attcrypto.DecodeDIDKey(did)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "invalid did:key", err)
	}
	multibase := "z" + base58.Encode(pub)
	return buildDIDKeyDocument(did, multibase), nil
}

func buildDIDKeyDocument(did, pubMultibase string) Document {
	vm := map[string]any{
		"id":                 did + "#key-1",
		"type":               "Ed25519VerificationKey2020",
		"controller":         did,
		"publicKeyMultibase": pubMultibase,
	}
	return Document{
		"@context": []string{
			"https://www.w3.org/ns/did/v1",
			"https://w3id.org/security/suites/ed25519-2020/v1",
		},
		"id":                did,
		"controller":        did,
		"verificationMethod": []any{vm},
		"authentication":      []any{did + "#key-1"},
		"assertionMethod":     []any{did + "#key-1"},
	}
}

func (r *Resolver) resolveDIDWeb(ctx context.Context, did string) (Document, error) {
	raw := strings.TrimPrefix(did, "did:web:")
	parts := strings.Split(raw, ":")
	if len(parts) == 0 || parts[0] == "" {
		return nil, errs.Newf(errs.Validation, "invalid did:web format: %s", did)
	}
	domain := parts[0]

	for _, p := range parts[1:] {
		if !didWebPathSegment.MatchString(p) || strings.Contains(p, "..") || strings.HasPrefix(p, ".") {
			return nil, errs.Newf(errs.Validation, "invalid path segment in did:web: %s", did)
		}
	}

	if err := ValidateHost(ctx, domain); err != nil {
		return nil, err
	}
	pinnedIPs, err := ValidateAndPinURL(ctx, domain)
	if err != nil {
		return nil, err
	}

	path := ".well-known"
	if len(parts) > 1 {
		path = strings.Join(parts[1:], "/")
	}
	target := fmt.Sprintf("https://%s/%s/did.json", domain, path)

	return r.fetchDocument(ctx, r.didWebClient, target, pinnedIPs, did)
}

func (r *Resolver) resolveUniversal(ctx context.Context, did string) (Document, error) {
	if !didGeneric.MatchString(did) {
		return nil, errs.Newf(errs.Validation, "invalid DID format: %s", did)
	}
	if r.universalResolverURL == "" {
		return nil, errs.New(errs.NotFound, "no universal resolver is configured for this DID method")
	}

	target := strings.TrimSuffix(r.universalResolverURL, "/") + "/" + url.PathEscape(did)
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "invalid universal resolver URL", err)
	}

	if err := ValidateHost(ctx, parsed.Hostname()); err != nil {
		return nil, err
	}
	pinnedIPs, err := ValidateAndPinURL(ctx, parsed.Hostname())
	if err != nil {
		return nil, err
	}

	doc, err := r.fetchDocument(ctx, r.universalClient, target, pinnedIPs, did)
	if err != nil {
		return nil, err
	}
	if inner, ok := doc["didDocument"].(map[string]any); ok {
		return Document(inner), nil
	}
	return doc, nil
}

func (r *Resolver) fetchDocument(ctx context.Context, client *pinnedClient, target string, pinnedIPs []string, did string) (Document, error) {
	resp, err := client.get(ctx, target, pinnedIPs)
	if err != nil {
		return nil, errs.Wrap(errs.Network, fmt.Sprintf("failed to resolve %s", did), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errs.Wrap(errs.Network, "failed to read resolver response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Newf(errs.Network, "resolver returned HTTP %d for %s", resp.StatusCode, did)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errs.Wrap(errs.Validation, "resolver response was not valid JSON", err)
	}
	return doc, nil
}
