package toolserver

import (
	"context"
	"strings"

	"github.com/VibeTensor/attestix/pkg/errs"
	"github.com/VibeTensor/attestix/pkg/identity"
	"github.com/VibeTensor/attestix/pkg/resolver"
)

func (r *Registry) registerIdentity() {
	r.register("create_agent_identity", r.createAgentIdentity)
	r.register("resolve_identity", r.resolveIdentity)
	r.register("verify_identity", r.verifyIdentity)
	r.register("translate_identity", r.translateIdentity)
	r.register("list_identities", r.listIdentities)
	r.register("get_identity", r.getIdentity)
	r.register("revoke_identity", r.revokeIdentity)
	r.register("purge_agent_data", r.purgeAgentData)

	r.register("parse_agent_card", r.parseAgentCard)
	r.register("generate_agent_card", r.generateAgentCard)
	r.register("discover_agent", r.discoverAgent)

	r.register("create_did_key", r.createDIDKey)
	r.register("create_did_web", r.createDIDWeb)
	r.register("resolve_did", r.resolveDID)
}

func (r *Registry) createAgentIdentity(ctx context.Context, args map[string]any) (string, error) {
	displayName, err := argString(args, "display_name")
	if err != nil {
		return "", err
	}
	proto := identity.SourceProtocol(argStringDefault(args, "source_protocol", "manual"))
	uait, err := r.identity.Create(
		displayName,
		proto,
		argStringSlice(args, "capabilities"),
		argStringDefault(args, "description", ""),
		argStringDefault(args, "issuer_name", ""),
		argInt(args, "expiry_days", 365),
		argStringDefault(args, "identity_token", ""),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(uait)
}

// classifyIdentityToken guesses a source protocol from an arbitrary
// identity string — a DID, a bearer-looking JWT, an HTTPS URL, or
// otherwise an opaque API key.
func classifyIdentityToken(token string) identity.SourceProtocol {
	switch {
	case strings.HasPrefix(token, "did:"):
		return "did"
	case strings.HasPrefix(token, "https://") || strings.HasPrefix(token, "http://"):
		return "url"
	case strings.Count(token, ".") == 2:
		return "jwt"
	default:
		return "api_key"
	}
}

func (r *Registry) resolveIdentity(ctx context.Context, args map[string]any) (string, error) {
	token, err := argString(args, "identity_token")
	if err != nil {
		return "", err
	}
	proto := classifyIdentityToken(token)
	uait, err := r.identity.Create("Resolved-"+string(proto), proto, nil, "", "", 365, token)
	if err != nil {
		return "", err
	}
	return encodeResult(uait)
}

func (r *Registry) verifyIdentity(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	result, err := r.identity.Verify(agentID)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) translateIdentity(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	target := identity.TranslationTarget(argStringDefault(args, "target_format", string(identity.TargetSummary)))
	result, err := r.identity.Translate(agentID, target)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) listIdentities(ctx context.Context, args map[string]any) (string, error) {
	proto := identity.SourceProtocol(argStringDefault(args, "source_protocol", ""))
	result, err := r.identity.List(proto, argBool(args, "include_revoked", false), argInt(args, "limit", 50))
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) getIdentity(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	result, err := r.identity.Get(agentID)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) revokeIdentity(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	if err := r.identity.Revoke(agentID, argStringDefault(args, "reason", "")); err != nil {
		return "", err
	}
	return encodeResult(map[string]any{"agent_id": agentID, "revoked": true})
}

func (r *Registry) purgeAgentData(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	counts, err := r.identity.Purge(agentID, map[string]func(string) (int, error){
		"credentials": r.credential.PurgeSubject,
		"delegations": r.delegation.PurgeAgent,
		"reputation":  r.reputation.PurgeAgent,
		"provenance":  r.provenance.PurgeAgent,
		"compliance":  r.compliance.PurgeAgent,
	})
	if err != nil {
		return "", errs.Wrap(errs.Validation, "purge did not complete cleanly", err)
	}
	return encodeResult(counts)
}

func (r *Registry) parseAgentCard(ctx context.Context, args map[string]any) (string, error) {
	card := argMap(args, "card")
	if card == nil {
		return "", errs.New(errs.Validation, "card must be a JSON object")
	}
	return encodeResult(resolver.ParseAgentCard(resolver.AgentCard(card)))
}

func (r *Registry) generateAgentCard(ctx context.Context, args map[string]any) (string, error) {
	name, err := argString(args, "name")
	if err != nil {
		return "", err
	}
	url, err := argString(args, "url")
	if err != nil {
		return "", err
	}
	result := resolver.GenerateAgentCard(
		name,
		url,
		argStringDefault(args, "description", ""),
		argAnySlice(args, "skills"),
		argStringDefault(args, "version", "1.0.0"),
	)
	return encodeResult(result)
}

func (r *Registry) discoverAgent(ctx context.Context, args map[string]any) (string, error) {
	baseURL, err := argString(args, "base_url")
	if err != nil {
		return "", err
	}
	result, err := resolver.DiscoverAgent(ctx, baseURL)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) createDIDKey(ctx context.Context, args map[string]any) (string, error) {
	result, err := r.keyMinter.CreateDIDKey()
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) createDIDWeb(ctx context.Context, args map[string]any) (string, error) {
	domain, err := argString(args, "domain")
	if err != nil {
		return "", err
	}
	result, err := r.keyMinter.CreateDIDWeb(domain, argStringDefault(args, "path", ""))
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) resolveDID(ctx context.Context, args map[string]any) (string, error) {
	did, err := argString(args, "did")
	if err != nil {
		return "", err
	}
	doc, err := r.resolver.Resolve(ctx, did)
	if err != nil {
		return "", err
	}
	return encodeResult(doc)
}
