// Package compliance implements the Compliance Service: the EU AI Act
// profile → assessment → declaration pipeline gating every high-risk agent,
// with CEL-evaluated obligation and risk-tier rules standing in for the
// teacher's ControlMapping/CompliancePipeline pattern.
package compliance

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/VibeTensor/attestix/pkg/credential"
	"github.com/VibeTensor/attestix/pkg/errs"
	"github.com/VibeTensor/attestix/pkg/kernel"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

// RiskCategory is an EU AI Act risk tier.
type RiskCategory string

const (
	RiskMinimal      RiskCategory = "minimal"
	RiskLimited      RiskCategory = "limited"
	RiskHigh         RiskCategory = "high"
	RiskUnacceptable RiskCategory = "unacceptable"
)

// AssessmentType distinguishes who performed a conformity assessment.
type AssessmentType string

const (
	AssessmentSelf       AssessmentType = "self"
	AssessmentThirdParty AssessmentType = "third_party"
)

// AssessmentResult is the outcome of a conformity assessment.
type AssessmentResult string

const (
	ResultPass        AssessmentResult = "pass"
	ResultConditional AssessmentResult = "conditional"
	ResultFail        AssessmentResult = "fail"
)

// Conformity is the mutable sub-record a Profile accumulates as assessments
// and declarations attach.
type Conformity struct {
	AssessmentCompleted bool   `json:"assessment_completed"`
	AssessmentID        string `json:"assessment_id,omitempty"`
	DeclarationID       string `json:"declaration_id,omitempty"`
	CEMarkingEligible   bool   `json:"ce_marking_eligible"`
}

// Profile is a compliance profile — one per agent.
type Profile struct {
	ProfileID           string       `json:"profile_id"`
	AgentID             string       `json:"agent_id"`
	RiskCategory        RiskCategory `json:"risk_category"`
	Provider            string       `json:"provider"`
	IntendedPurpose     string       `json:"ai_system"`
	Transparency        string       `json:"transparency"`
	HumanOversight      string       `json:"human_oversight,omitempty"`
	RequiredObligations []string     `json:"required_obligations"`
	CreatedAt           time.Time    `json:"created_at"`

	Conformity Conformity `json:"conformity"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Signature  string     `json:"signature"`
}

// Assessment is an append-only conformity assessment record.
type Assessment struct {
	AssessmentID      string           `json:"assessment_id"`
	AgentID           string           `json:"agent_id"`
	Type              AssessmentType   `json:"type"`
	AssessorName      string           `json:"assessor_name"`
	Result            AssessmentResult `json:"result"`
	Findings          []string         `json:"findings,omitempty"`
	CEMarkingEligible bool             `json:"ce_marking_eligible"`
	AssessedAt        time.Time        `json:"assessed_at"`
	AssessedBy        string           `json:"assessed_by"`

	Signature string `json:"signature"`
}

// Declaration is an append-only EU AI Act declaration of conformity.
type Declaration struct {
	DeclarationID string         `json:"declaration_id"`
	AgentID       string         `json:"agent_id"`
	Annex         map[string]any `json:"annex"`
	IssuedAt      time.Time      `json:"issued_at"`
	IssuerDID     string         `json:"issuer_did"`

	Signature string `json:"signature"`
}

var (
	profileMask     = kernel.NewMask("conformity", "updated_at", "signature")
	assessmentMask  = kernel.NewMask("signature")
	declarationMask = kernel.NewMask("signature")
)

type collection struct {
	Profiles     map[string]Profile     `json:"profiles"`
	Assessments  map[string]Assessment  `json:"assessments"`
	Declarations map[string]Declaration `json:"declarations"`
}

// Service is the Compliance Service.
type Service struct {
	store      *safestore.Store
	kernel     *kernel.Kernel
	serverDID  string
	credential *credential.Service

	highRiskSelfAssessmentRejected cel.Program
}

// New creates the Compliance Service. The CEL program enforcing
// "high-risk + self-assessment is always rejected" is compiled once at
// construction, mirroring how the teacher's compliance pipeline compiles
// its control mappings ahead of evaluation rather than per call.
func New(store *safestore.Store, k *kernel.Kernel, serverDID string, credSvc *credential.Service) (*Service, error) {
	prg, err := compileHighRiskSelfRule()
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to compile obligation rule: %w", err)
	}
	return &Service{store: store, kernel: k, serverDID: serverDID, credential: credSvc, highRiskSelfAssessmentRejected: prg}, nil
}

func compileHighRiskSelfRule() (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("risk", cel.StringType),
		cel.Variable("assessment_type", cel.StringType),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(`risk == "high" && assessment_type == "self"`)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	return env.Program(ast)
}

func (s *Service) violatesHighRiskSelfRule(risk RiskCategory, assessmentType AssessmentType) (bool, error) {
	out, _, err := s.highRiskSelfAssessmentRejected.Eval(map[string]any{
		"risk":            string(risk),
		"assessment_type": string(assessmentType),
	})
	if err != nil {
		return false, err
	}
	violates, ok := out.Value().(bool)
	return ok && violates, nil
}

// idgen mints a "<prefix>:<12 hex>" id, matching every other collection's
// id shape in this system.
func idgen(prefix string) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + ":" + hex.EncodeToString(buf), nil
}

// CreateProfile creates an agent's compliance profile. unacceptable-risk
// agents are categorically rejected, and an agent may only have one profile.
func (s *Service) CreateProfile(agentID string, risk RiskCategory, provider, intendedPurpose, transparency, humanOversight string, requiredObligations []string) (*Profile, error) {
	if risk == RiskUnacceptable {
		return nil, errs.New(errs.PolicyViolation, "unacceptable-risk AI systems are prohibited")
	}

	id, err := idgen("comp")
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate profile id", err)
	}

	p := Profile{
		ProfileID:           id,
		AgentID:             agentID,
		RiskCategory:        risk,
		Provider:            provider,
		IntendedPurpose:     intendedPurpose,
		Transparency:        transparency,
		HumanOversight:      humanOversight,
		RequiredObligations: requiredObligations,
		CreatedAt:           time.Now().UTC(),
		UpdatedAt:           time.Now().UTC(),
	}

	if err := s.sign(&p); err != nil {
		return nil, err
	}

	if err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		if _, exists := col.Profiles[agentID]; exists {
			return errs.Newf(errs.Validation, "agent %s already has a compliance profile", agentID)
		}
		col.Profiles[agentID] = p
		return s.store.Save(col)
	}); err != nil {
		return nil, translateStoreErr(err)
	}
	return &p, nil
}

func (s *Service) sign(p *Profile) error {
	m, err := kernel.ToMap(p)
	if err != nil {
		return errs.Wrap(errs.Cryptographic, "failed to marshal profile for signing", err)
	}
	sig, err := s.kernel.Sign(m, profileMask)
	if err != nil {
		return errs.Wrap(errs.Cryptographic, "failed to sign profile", err)
	}
	p.Signature = sig
	return nil
}

// RecordAssessment appends a conformity assessment and, on success,
// attaches it to the agent's profile. A self-assessment on a high-risk
// profile is always rejected.
func (s *Service) RecordAssessment(agentID string, assessType AssessmentType, assessorName string, result AssessmentResult, findings []string, ceMarkingEligible bool, assessedBy string) (*Assessment, error) {
	id, err := idgen("assess")
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to generate assessment id", err)
	}

	a := Assessment{
		AssessmentID:      id,
		AgentID:           agentID,
		Type:              assessType,
		AssessorName:      assessorName,
		Result:            result,
		Findings:          findings,
		CEMarkingEligible: ceMarkingEligible,
		AssessedAt:        time.Now().UTC(),
		AssessedBy:        assessedBy,
	}

	m, err := kernel.ToMap(a)
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to marshal assessment for signing", err)
	}
	sig, err := s.kernel.Sign(m, assessmentMask)
	if err != nil {
		return nil, errs.Wrap(errs.Cryptographic, "failed to sign assessment", err)
	}
	a.Signature = sig

	if err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		profile, ok := col.Profiles[agentID]
		if !ok {
			return errs.Newf(errs.NotFound, "agent %s has no compliance profile", agentID)
		}

		violates, err := s.violatesHighRiskSelfRule(profile.RiskCategory, assessType)
		if err != nil {
			return errs.Wrap(errs.Validation, "failed to evaluate obligation rule", err)
		}
		if violates {
			return errs.New(errs.PolicyViolation, "high-risk systems require a third-party conformity assessment")
		}

		col.Assessments[id] = a
		if result == ResultPass || result == ResultConditional {
			profile.Conformity.AssessmentCompleted = true
			profile.Conformity.AssessmentID = id
			profile.Conformity.CEMarkingEligible = ceMarkingEligible
			profile.UpdatedAt = time.Now().UTC()
			col.Profiles[agentID] = profile
		}
		return s.store.Save(col)
	}); err != nil {
		return nil, translateStoreErr(err)
	}
	return &a, nil
}

// GenerateDeclaration produces a declaration of conformity and auto-issues
// an EUAIActComplianceCredential. The VC is issued while the compliance
// collection's lock is still held (Issue takes the credential store's own
// lock inside it), and the declaration is saved only if issuance succeeds.
func (s *Service) GenerateDeclaration(agentID string) (*Declaration, *credential.VC, error) {
	var decl Declaration
	var profile Profile
	var vc *credential.VC

	err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		p, ok := col.Profiles[agentID]
		if !ok {
			return errs.New(errs.Validation, "no compliance profile exists for this agent")
		}
		if !p.Conformity.AssessmentCompleted {
			return errs.New(errs.Validation, "conformity assessment is not complete")
		}
		if p.IntendedPurpose == "" || p.Transparency == "" {
			return errs.New(errs.Validation, "intended purpose and transparency statement are required")
		}
		if p.RiskCategory == RiskHigh {
			if p.HumanOversight == "" {
				return errs.New(errs.Validation, "high-risk systems require a human-oversight statement")
			}
			assessment, ok := col.Assessments[p.Conformity.AssessmentID]
			if !ok || assessment.Type != AssessmentThirdParty {
				return errs.New(errs.Validation, "high-risk systems require a third-party assessment before declaration")
			}
		}

		id, err := idgen("decl")
		if err != nil {
			return errs.Wrap(errs.Cryptographic, "failed to generate declaration id", err)
		}

		decl = Declaration{
			DeclarationID: id,
			AgentID:       agentID,
			Annex:         annexFromProfile(p),
			IssuedAt:      time.Now().UTC(),
			IssuerDID:     s.serverDID,
		}
		m, err := kernel.ToMap(decl)
		if err != nil {
			return errs.Wrap(errs.Cryptographic, "failed to marshal declaration for signing", err)
		}
		sig, err := s.kernel.Sign(m, declarationMask)
		if err != nil {
			return errs.Wrap(errs.Cryptographic, "failed to sign declaration", err)
		}
		decl.Signature = sig

		col.Declarations[id] = decl
		p.Conformity.DeclarationID = id
		p.UpdatedAt = time.Now().UTC()
		col.Profiles[agentID] = p
		profile = p

		vc, err = s.credential.Issue(agentID, "EUAIActComplianceCredential", "attestix-compliance-service", map[string]any{
			"declaration_id": decl.DeclarationID,
			"risk_category":  profile.RiskCategory,
		}, 365)
		if err != nil {
			return err
		}
		return s.store.Save(col)
	})
	if err != nil {
		return nil, nil, translateStoreErr(err)
	}
	return &decl, vc, nil
}

// annexFromProfile stamps the ordered Annex-field map a declaration carries.
func annexFromProfile(p Profile) map[string]any {
	return map[string]any{
		"intended_purpose": p.IntendedPurpose,
		"provider":         p.Provider,
		"risk_category":    p.RiskCategory,
		"transparency":     p.Transparency,
		"human_oversight":  p.HumanOversight,
	}
}

// StatusResult is the gap-analysis result getStatus computes.
type StatusResult struct {
	Completed      []string `json:"completed"`
	Missing        []string `json:"missing"`
	CompletionPct  float64  `json:"completion_pct"`
}

// GetStatus computes the completed/missing checklist for an agent's
// compliance journey.
func (s *Service) GetStatus(agentID string, trainingDataRecorded, modelLineageRecorded bool) (StatusResult, error) {
	col, err := s.load()
	if err != nil {
		return StatusResult{}, translateStoreErr(err)
	}

	p, hasProfile := col.Profiles[agentID]

	type check struct {
		name string
		ok   bool
	}
	checks := []check{
		{"profile", hasProfile},
	}
	if hasProfile {
		checks = append(checks,
			check{"intended_purpose", p.IntendedPurpose != ""},
			check{"transparency", p.Transparency != ""},
		)
		if p.RiskCategory == RiskHigh {
			checks = append(checks, check{"human_oversight", p.HumanOversight != ""})
		}
		checks = append(checks,
			check{"conformity_assessment_passed", p.Conformity.AssessmentCompleted},
			check{"declaration_of_conformity_issued", p.Conformity.DeclarationID != ""},
		)
	}
	checks = append(checks,
		check{"training_data_provenance", trainingDataRecorded},
		check{"model_lineage_recorded", modelLineageRecorded},
	)

	var completed, missing []string
	for _, c := range checks {
		if c.ok {
			completed = append(completed, c.name)
		} else {
			missing = append(missing, c.name)
		}
	}

	total := len(completed) + len(missing)
	pct := 0.0
	if total > 0 {
		pct = float64(len(completed)) / float64(total) * 100
	}

	return StatusResult{Completed: completed, Missing: missing, CompletionPct: pct}, nil
}

// GetProfile returns agentID's compliance profile.
func (s *Service) GetProfile(agentID string) (*Profile, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}
	p, ok := col.Profiles[agentID]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no compliance profile found for %s", agentID)
	}
	return &p, nil
}

// UpdateProfile patches the mutable descriptive fields of agentID's profile
// and re-signs it. A nil pointer leaves the corresponding field unchanged.
func (s *Service) UpdateProfile(agentID string, intendedPurpose, transparency, humanOversight, provider *string) (*Profile, error) {
	var updated Profile
	err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		p, ok := col.Profiles[agentID]
		if !ok {
			return errs.Newf(errs.NotFound, "no compliance profile found for %s", agentID)
		}
		if intendedPurpose != nil {
			p.IntendedPurpose = *intendedPurpose
		}
		if transparency != nil {
			p.Transparency = *transparency
		}
		if humanOversight != nil {
			p.HumanOversight = *humanOversight
		}
		if provider != nil {
			p.Provider = *provider
		}
		p.UpdatedAt = time.Now().UTC()
		if err := s.sign(&p); err != nil {
			return err
		}
		col.Profiles[agentID] = p
		updated = p
		return s.store.Save(col)
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return &updated, nil
}

// ListProfiles returns every compliance profile, optionally filtered by
// risk category. An empty category returns all profiles.
func (s *Service) ListProfiles(risk RiskCategory) ([]Profile, error) {
	col, err := s.load()
	if err != nil {
		return nil, translateStoreErr(err)
	}
	out := make([]Profile, 0, len(col.Profiles))
	for _, p := range col.Profiles {
		if risk != "" && p.RiskCategory != risk {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// PurgeAgent removes agentID's compliance profile, assessments, and
// declarations, for GDPR erasure fan-out from the identity service's Purge.
func (s *Service) PurgeAgent(agentID string) (int, error) {
	var n int
	err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		if _, ok := col.Profiles[agentID]; ok {
			delete(col.Profiles, agentID)
			n++
		}
		for id, a := range col.Assessments {
			if a.AgentID == agentID {
				delete(col.Assessments, id)
				n++
			}
		}
		for id, d := range col.Declarations {
			if d.AgentID == agentID {
				delete(col.Declarations, id)
				n++
			}
		}
		return s.store.Save(col)
	})
	if err != nil {
		return 0, translateStoreErr(err)
	}
	return n, nil
}

func (s *Service) load() (*collection, error) {
	col := &collection{
		Profiles:     map[string]Profile{},
		Assessments:  map[string]Assessment{},
		Declarations: map[string]Declaration{},
	}
	if err := s.store.Load(col); err != nil {
		return nil, err
	}
	if col.Profiles == nil {
		col.Profiles = map[string]Profile{}
	}
	if col.Assessments == nil {
		col.Assessments = map[string]Assessment{}
	}
	if col.Declarations == nil {
		col.Declarations = map[string]Declaration{}
	}
	return col, nil
}

func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if err == safestore.ErrBusy {
		return errs.Wrap(errs.StorageBusy, "compliance store busy", err)
	}
	return err
}
