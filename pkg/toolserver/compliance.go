package toolserver

import (
	"context"

	"github.com/VibeTensor/attestix/pkg/compliance"
)

func (r *Registry) registerCompliance() {
	r.register("create_compliance_profile", r.createComplianceProfile)
	r.register("get_compliance_profile", r.getComplianceProfile)
	r.register("update_compliance_profile", r.updateComplianceProfile)
	r.register("get_compliance_status", r.getComplianceStatus)
	r.register("record_conformity_assessment", r.recordConformityAssessment)
	r.register("generate_declaration_of_conformity", r.generateDeclarationOfConformity)
	r.register("list_compliance_profiles", r.listComplianceProfiles)
}

func (r *Registry) createComplianceProfile(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	risk, err := argString(args, "risk_category")
	if err != nil {
		return "", err
	}
	result, err := r.compliance.CreateProfile(
		agentID,
		compliance.RiskCategory(risk),
		argStringDefault(args, "provider", ""),
		argStringDefault(args, "intended_purpose", ""),
		argStringDefault(args, "transparency", ""),
		argStringDefault(args, "human_oversight", ""),
		argStringSlice(args, "required_obligations"),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) getComplianceProfile(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	result, err := r.compliance.GetProfile(agentID)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) updateComplianceProfile(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	result, err := r.compliance.UpdateProfile(
		agentID,
		optionalString(args, "intended_purpose"),
		optionalString(args, "transparency"),
		optionalString(args, "human_oversight"),
		optionalString(args, "provider"),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) getComplianceStatus(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	result, err := r.compliance.GetStatus(
		agentID,
		argBool(args, "training_data_recorded", false),
		argBool(args, "model_lineage_recorded", false),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func (r *Registry) recordConformityAssessment(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	assessType, err := argString(args, "assessment_type")
	if err != nil {
		return "", err
	}
	assessorName, err := argString(args, "assessor_name")
	if err != nil {
		return "", err
	}
	result, err := argString(args, "result")
	if err != nil {
		return "", err
	}
	assessment, err := r.compliance.RecordAssessment(
		agentID,
		compliance.AssessmentType(assessType),
		assessorName,
		compliance.AssessmentResult(result),
		argStringSlice(args, "findings"),
		argBool(args, "ce_marking_eligible", false),
		argStringDefault(args, "assessed_by", ""),
	)
	if err != nil {
		return "", err
	}
	return encodeResult(assessment)
}

func (r *Registry) generateDeclarationOfConformity(ctx context.Context, args map[string]any) (string, error) {
	agentID, err := argString(args, "agent_id")
	if err != nil {
		return "", err
	}
	decl, vc, err := r.compliance.GenerateDeclaration(agentID)
	if err != nil {
		return "", err
	}
	return encodeResult(map[string]any{"declaration": decl, "credential": vc})
}

func (r *Registry) listComplianceProfiles(ctx context.Context, args map[string]any) (string, error) {
	risk := compliance.RiskCategory(argStringDefault(args, "risk_category", ""))
	result, err := r.compliance.ListProfiles(risk)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}
