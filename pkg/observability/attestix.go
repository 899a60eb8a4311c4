// Package observability provides attestation-domain instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attestation-domain semantic convention attributes.
var (
	// Agent/identity attributes
	AttrAgentID   = attribute.Key("attestix.agent.id")
	AttrAgentType = attribute.Key("attestix.agent.type")

	// Signed-object verification attributes
	AttrObjectKind     = attribute.Key("attestix.object.kind")
	AttrSignatureValid = attribute.Key("attestix.signature.valid")
	AttrIssuerDID      = attribute.Key("attestix.issuer.did")

	// Delegation attributes
	AttrDelegationJTI     = attribute.Key("attestix.delegation.jti")
	AttrAttenuationCount  = attribute.Key("attestix.delegation.attenuation_count")
	AttrDelegationChained = attribute.Key("attestix.delegation.chained")

	// Compliance attributes
	AttrRiskCategory     = attribute.Key("attestix.compliance.risk_category")
	AttrAssessmentType   = attribute.Key("attestix.compliance.assessment_type")
	AttrComplianceResult = attribute.Key("attestix.compliance.result")

	// Audit/anchor attributes
	AttrAuditLogID     = attribute.Key("attestix.audit.log_id")
	AttrChainValid     = attribute.Key("attestix.audit.chain_valid")
	AttrAnchorNetwork  = attribute.Key("attestix.anchor.network")
	AttrAnchorArtifact = attribute.Key("attestix.anchor.artifact_type")

	// Outbound-resolution attributes
	AttrSSRFBlocked = attribute.Key("attestix.resolver.ssrf_blocked")
	AttrDIDMethod   = attribute.Key("attestix.resolver.did_method")
)

// AgentOperation creates attributes for an operation scoped to one agent.
func AgentOperation(agentID, agentType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAgentID.String(agentID),
		AttrAgentType.String(agentType),
	}
}

// VerificationOperation creates attributes for a signed-object verification.
func VerificationOperation(objectKind, issuerDID string, valid bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrObjectKind.String(objectKind),
		AttrIssuerDID.String(issuerDID),
		AttrSignatureValid.Bool(valid),
	}
}

// DelegationOperation creates attributes for a delegation create/verify call.
func DelegationOperation(jti string, attenuationCount int, chained bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDelegationJTI.String(jti),
		AttrAttenuationCount.Int(attenuationCount),
		AttrDelegationChained.Bool(chained),
	}
}

// ComplianceOperation creates attributes for a compliance assessment.
func ComplianceOperation(riskCategory, assessmentType, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRiskCategory.String(riskCategory),
		AttrAssessmentType.String(assessmentType),
		AttrComplianceResult.String(result),
	}
}

// AuditOperation creates attributes for an audit-chain append or verify.
func AuditOperation(logID string, chainValid bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAuditLogID.String(logID),
		AttrChainValid.Bool(chainValid),
	}
}

// AnchorOperation creates attributes for an anchoring call.
func AnchorOperation(network, artifactType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAnchorNetwork.String(network),
		AttrAnchorArtifact.String(artifactType),
	}
}

// ResolverOperation creates attributes for a DID resolution or SSRF check.
func ResolverOperation(didMethod string, ssrfBlocked bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDIDMethod.String(didMethod),
		AttrSSRFBlocked.Bool(ssrfBlocked),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error: a non-nil err is
// recorded on the span and marks it as failed; a nil err leaves it unchanged.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
