package compliance

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VibeTensor/attestix/pkg/attcrypto"
	"github.com/VibeTensor/attestix/pkg/credential"
	"github.com/VibeTensor/attestix/pkg/kernel"
	"github.com/VibeTensor/attestix/pkg/safestore"
)

type fakeSigner struct {
	kp  attcrypto.KeyPair
	did string
}

func (s *fakeSigner) Sign(data []byte) []byte { return attcrypto.Sign(s.kp.Private, data) }
func (s *fakeSigner) DID() string             { return s.did }

func newTestService(t *testing.T) *Service {
	t.Helper()
	kp, err := attcrypto.Generate()
	require.NoError(t, err)
	did, err := attcrypto.EncodeDIDKey(kp.Public)
	require.NoError(t, err)

	compStore, err := safestore.New(filepath.Join(t.TempDir(), "compliance.json"), nil)
	require.NoError(t, err)
	credStore, err := safestore.New(filepath.Join(t.TempDir(), "credentials.json"), nil)
	require.NoError(t, err)

	k := kernel.New(&fakeSigner{kp: kp, did: did})
	credSvc := credential.New(credStore, k, did)

	svc, err := New(compStore, k, did, credSvc)
	require.NoError(t, err)
	return svc
}

func TestCreateProfile_RejectsUnacceptableRisk(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateProfile("attestix:a", RiskUnacceptable, "acme", "", "", "", nil)
	require.Error(t, err)
}

func TestCreateProfile_RejectsDuplicate(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateProfile("attestix:a", RiskMinimal, "acme", "purpose", "transparent", "", nil)
	require.NoError(t, err)
	_, err = svc.CreateProfile("attestix:a", RiskMinimal, "acme", "purpose", "transparent", "", nil)
	require.Error(t, err)
}

func TestRecordAssessment_RejectsHighRiskSelfAssessment(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateProfile("attestix:a", RiskHigh, "acme", "purpose", "transparent", "human reviews all outputs", nil)
	require.NoError(t, err)

	_, err = svc.RecordAssessment("attestix:a", AssessmentSelf, "acme-internal", ResultPass, nil, false, "acme")
	require.Error(t, err)
}

func TestGenerateDeclaration_IssuesCredentialOnSuccess(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateProfile("attestix:a", RiskHigh, "acme", "purpose", "transparent", "human reviews all outputs", nil)
	require.NoError(t, err)

	_, err = svc.RecordAssessment("attestix:a", AssessmentThirdParty, "notified-body", ResultPass, nil, true, "auditor")
	require.NoError(t, err)

	decl, vc, err := svc.GenerateDeclaration("attestix:a")
	require.NoError(t, err)
	require.NotEmpty(t, decl.DeclarationID)
	require.NotNil(t, vc)
	require.Equal(t, "EUAIActComplianceCredential", vc.Type[1])
}

func TestGenerateDeclaration_RefusesWithoutAssessment(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateProfile("attestix:a", RiskMinimal, "acme", "purpose", "transparent", "", nil)
	require.NoError(t, err)

	_, _, err = svc.GenerateDeclaration("attestix:a")
	require.Error(t, err)
}

func TestGetStatus_ComputesCompletionPercentage(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateProfile("attestix:a", RiskMinimal, "acme", "purpose", "transparent", "", nil)
	require.NoError(t, err)

	status, err := svc.GetStatus("attestix:a", false, false)
	require.NoError(t, err)
	require.Greater(t, status.CompletionPct, 0.0)
	require.Less(t, status.CompletionPct, 100.0)
}
