package toolserver

import (
	"context"

	"github.com/VibeTensor/attestix/pkg/credential"
	"github.com/VibeTensor/attestix/pkg/errs"
)

func (r *Registry) registerCredential() {
	r.register("issue_credential", r.issueCredential)
	r.register("verify_credential", r.verifyCredential)
	r.register("verify_credential_external", r.verifyCredentialExternal)
	r.register("revoke_credential", r.revokeCredential)
	r.register("get_credential", r.getCredential)
	r.register("list_credentials", r.listCredentials)
	r.register("create_verifiable_presentation", r.createVerifiablePresentation)
	r.register("verify_presentation", r.verifyPresentation)
}

func (r *Registry) issueCredential(ctx context.Context, args map[string]any) (string, error) {
	subjectID, err := argString(args, "subject_id")
	if err != nil {
		return "", err
	}
	credentialType, err := argString(args, "credential_type")
	if err != nil {
		return "", err
	}
	claims := argMap(args, "claims")
	if claims == nil {
		claims = map[string]any{}
	}
	vc, err := r.credential.Issue(
		subjectID,
		credentialType,
		argStringDefault(args, "issuer_name", ""),
		claims,
		argInt(args, "expiry_days", 365),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(vc)
}

func (r *Registry) verifyCredential(ctx context.Context, args map[string]any) (string, error) {
	id, err := argString(args, "id")
	if err != nil {
		return "", err
	}
	result, err := r.credential.Verify(id)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) verifyCredentialExternal(ctx context.Context, args map[string]any) (string, error) {
	raw := argMap(args, "credential")
	if raw == nil {
		return "", errs.New(errs.Validation, "credential must be a JSON object")
	}
	vc, err := decodeVC(raw)
	if err != nil {
		return "", err
	}
	return encodeResult(r.credential.VerifyExternal(*vc))
}

func (r *Registry) revokeCredential(ctx context.Context, args map[string]any) (string, error) {
	id, err := argString(args, "id")
	if err != nil {
		return "", err
	}
	if err := r.credential.Revoke(id, argStringDefault(args, "reason", "")); err != nil {
		return "", err
	}
	return encodeResult(map[string]any{"id": id, "revoked": true})
}

func (r *Registry) getCredential(ctx context.Context, args map[string]any) (string, error) {
	id, err := argString(args, "id")
	if err != nil {
		return "", err
	}
	vc, err := r.credential.Get(id)
	if err != nil {
		return "", err
	}
	return encodeResult(vc)
}

func (r *Registry) listCredentials(ctx context.Context, args map[string]any) (string, error) {
	result, err := r.credential.List(argStringDefault(args, "subject_id", ""), argInt(args, "limit", 50))
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) createVerifiablePresentation(ctx context.Context, args map[string]any) (string, error) {
	holder, err := argString(args, "holder")
	if err != nil {
		return "", err
	}
	credentialIDs := argStringSlice(args, "credential_ids")
	vp, err := r.credential.CreatePresentation(
		holder,
		credentialIDs,
		argStringDefault(args, "audience", ""),
		argStringDefault(args, "challenge", ""),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(vp)
}

func (r *Registry) verifyPresentation(ctx context.Context, args map[string]any) (string, error) {
	raw := argMap(args, "presentation")
	if raw == nil {
		return "", errs.New(errs.Validation, "presentation must be a JSON object")
	}
	vp, err := decodeVP(raw)
	if err != nil {
		return "", err
	}
	return encodeResult(r.credential.VerifyPresentation(*vp))
}

// decodeVC and decodeVP round-trip a generic JSON object through
// encoding/json into the credential package's own types, since tool
// arguments arrive as untyped maps rather than already-typed structs.
func decodeVC(raw map[string]any) (*credential.VC, error) {
	return decodeInto[credential.VC](raw)
}

func decodeVP(raw map[string]any) (*credential.VP, error) {
	return decodeInto[credential.VP](raw)
}
