package toolserver

import (
	"context"

	"github.com/VibeTensor/attestix/pkg/anchor"
	"github.com/VibeTensor/attestix/pkg/errs"
)

func (r *Registry) registerBlockchain() {
	r.register("anchor_identity", r.anchorIdentity)
	r.register("anchor_credential", r.anchorCredential)
	r.register("anchor_audit_batch", r.anchorAuditBatch)
	r.register("verify_anchor", r.verifyAnchor)
	r.register("get_anchor_status", r.getAnchorStatus)
	r.register("estimate_anchor_cost", r.estimateAnchorCost)
}

func (r *Registry) anchorIdentity(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	uait, err := r.identity.Get(agentID)
	if err != nil {
		return "", err
	}
	hash, err := anchor.HashArtifact(uait)
	if err != nil {
		return "", err
	}
	record, err := r.anchor.AnchorArtifact(ctx, hash, anchor.ArtifactIdentity, agentID)
	if err != nil {
		return "", err
	}
	return encodeResult(record)
}

func (r *Registry) anchorCredential(ctx context.Context, args map[string]any) (string, error) {
	id, err := argString(args, "id")
	if err != nil {
		return "", err
	}
	vc, err := r.credential.Get(id)
	if err != nil {
		return "", err
	}
	hash, err := anchor.HashArtifact(vc)
	if err != nil {
		return "", err
	}
	record, err := r.anchor.AnchorArtifact(ctx, hash, anchor.ArtifactCredential, id)
	if err != nil {
		return "", err
	}
	return encodeResult(record)
}

func (r *Registry) anchorAuditBatch(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	entries, err := r.provenance.ListAudit(agentID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errs.Newf(errs.Validation, "agent %s has no audit entries to anchor", agentID)
	}
	asAny := make([]any, len(entries))
	for i, e := range entries {
		asAny[i] = e
	}
	record, err := r.anchor.AnchorAuditBatch(ctx, agentID, asAny)
	if err != nil {
		return "", err
	}
	return encodeResult(record)
}

func (r *Registry) verifyAnchor(ctx context.Context, args map[string]any) (string, error) {
	hash, err := argString(args, "hash")
	if err != nil {
		return "", err
	}
	result, err := r.anchor.VerifyAnchor(ctx, hash)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) getAnchorStatus(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	status, err := r.anchor.GetAnchorStatus(agentID)
	if err != nil {
		return "", err
	}
	return encodeResult(status)
}

func (r *Registry) estimateAnchorCost(ctx context.Context, args map[string]any) (string, error) {
	artifactType := anchor.ArtifactType(argStringDefault(args, "artifact_type", string(anchor.ArtifactIdentity)))
	estimate, err := r.anchor.EstimateAnchorCost(ctx, artifactType)
	if err != nil {
		return "", err
	}
	return encodeResult(estimate)
}
