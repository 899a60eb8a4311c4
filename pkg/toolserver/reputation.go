package toolserver

import (
	"context"
	"time"

	"github.com/VibeTensor/attestix/pkg/reputation"
)

func (r *Registry) registerReputation() {
	r.register("record_interaction", r.recordInteraction)
	r.register("get_reputation", r.getReputation)
	r.register("query_reputation", r.queryReputation)
}

func (r *Registry) recordInteraction(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	counterpartyID, err := argString(args, "counterparty_id")
	if err != nil {
		return "", err
	}
	outcome, err := argString(args, "outcome")
	if err != nil {
		return "", err
	}
	in := reputation.Interaction{
		AgentID:        agentID,
		CounterpartyID: counterpartyID,
		Outcome:        reputation.Outcome(outcome),
		Category:       argStringDefault(args, "category", ""),
		Details:        argStringDefault(args, "details", ""),
		Timestamp:      time.Now().UTC(),
	}
	if err := r.reputation.Record(in); err != nil {
		return "", err
	}
	return encodeResult(in)
}

func (r *Registry) getReputation(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	score, n, err := r.reputation.Get(agentID)
	if err != nil {
		return "", err
	}
	return encodeResult(map[string]any{
		"agent_id":     agentID,
		"score":        score,
		"interactions": n,
	})
}

func (r *Registry) queryReputation(ctx context.Context, args map[string]any) (string, error) {
	result, err := r.reputation.Query(
		argFloat(args, "min_score", 0),
		argFloat(args, "max_score", 1),
		argInt(args, "min_interactions", 0),
		argStringDefault(args, "category", ""),
		argInt(args, "limit", 50),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}
