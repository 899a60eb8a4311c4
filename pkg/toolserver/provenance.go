package toolserver

import (
	"context"

	"github.com/VibeTensor/attestix/pkg/provenance"
)

func (r *Registry) registerProvenance() {
	r.register("record_training_data", r.recordTrainingData)
	r.register("record_model_lineage", r.recordModelLineage)
	r.register("log_action", r.logAction)
	r.register("get_provenance", r.getProvenance)
	r.register("get_audit_trail", r.getAuditTrail)
}

func (r *Registry) recordTrainingData(ctx context.Context, args map[string]any) (string, error) {
	return r.recordEntry(args, provenance.EntryTrainingData)
}

func (r *Registry) recordModelLineage(ctx context.Context, args map[string]any) (string, error) {
	return r.recordEntry(args, provenance.EntryModelLineage)
}

func (r *Registry) recordEntry(args map[string]any, entryType provenance.EntryType) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	fields := argMap(args, "fields")
	if fields == nil {
		fields = map[string]any{}
	}
	entry, err := r.provenance.RecordEntry(entryType, agentID, fields, argStringDefault(args, "recorded_by", ""))
	if err != nil {
		return "", err
	}
	return encodeResult(entry)
}

func (r *Registry) logAction(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	actionType, err := argString(args, "action_type")
	if err != nil {
		return "", err
	}
	entry, err := r.provenance.AppendAudit(
		agentID,
		actionType,
		argStringDefault(args, "input_summary", ""),
		argStringDefault(args, "output_summary", ""),
		argStringDefault(args, "decision_rationale", ""),
		argBool(args, "human_override", false),
		argStringDefault(args, "logged_by", ""),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(entry)
}

func (r *Registry) getProvenance(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	entryType := provenance.EntryType(argStringDefault(args, "entry_type", ""))
	result, err := r.provenance.ListEntries(agentID, entryType)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) getAuditTrail(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	entries, err := r.provenance.ListAudit(agentID)
	if err != nil {
		return "", err
	}
	verification, err := r.provenance.VerifyChain(agentID)
	if err != nil {
		return "", err
	}
	return encodeResult(map[string]any{
		"entries":      entries,
		"verification": verification,
	})
}
