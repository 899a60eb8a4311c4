package toolserver

import (
	"context"

	"github.com/VibeTensor/attestix/pkg/delegation"
)

func (r *Registry) registerDelegation() {
	r.register("create_delegation", r.createDelegation)
	r.register("verify_delegation", r.verifyDelegation)
	r.register("list_delegations", r.listDelegations)
	r.register("revoke_delegation", r.revokeDelegation)
}

func (r *Registry) createDelegation(ctx context.Context, args map[string]any) (string, error) {
	delegator, err := argString(args, "delegator")
	if err != nil {
		return "", err
	}
	audience, err := argString(args, "audience")
	if err != nil {
		return "", err
	}
	result, err := r.delegation.Create(
		delegator,
		audience,
		argStringSlice(args, "capabilities"),
		argFloat(args, "expiry_hours", 24),
		argStringDefault(args, "parent_token", ""),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(map[string]any{
		"token":  result.Token,
		"record": result.Record,
	})
}

func (r *Registry) verifyDelegation(ctx context.Context, args map[string]any) (string, error) {
	token, err := argString(args, "token")
	if err != nil {
		return "", err
	}
	return encodeResult(r.delegation.Verify(token))
}

func (r *Registry) listDelegations(ctx context.Context, args map[string]any) (string, error) {
	role := delegation.Role(argStringDefault(args, "role", string(delegation.RoleAny)))
	result, err := r.delegation.List(argStringDefault(args, "agent_id", ""), role, argBool(args, "include_expired", false))
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) revokeDelegation(ctx context.Context, args map[string]any) (string, error) {
	jti, err := argString(args, "jti")
	if err != nil {
		return "", err
	}
	if err := r.delegation.Revoke(jti, argStringDefault(args, "reason", "")); err != nil {
		return "", err
	}
	return encodeResult(map[string]any{"jti": jti, "revoked": true})
}
