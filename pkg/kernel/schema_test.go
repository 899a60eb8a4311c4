package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIdentityObject() map[string]any {
	return map[string]any{
		"agent_id":     "attestix:abcdef012345",
		"display_name": "demo-agent",
		"issuer":       map[string]any{"name": "attestix", "did": "did:key:z6Mk..."},
		"created_at":   "2026-01-01T00:00:00Z",
		"expires_at":   "2027-01-01T00:00:00Z",
		"signature":    "sig-bytes",
	}
}

func TestValidateStructure_AcceptsWellFormedIdentity(t *testing.T) {
	require.NoError(t, ValidateStructure(KindIdentity, validIdentityObject()))
}

func TestValidateStructure_RejectsMissingRequiredField(t *testing.T) {
	obj := validIdentityObject()
	delete(obj, "agent_id")
	assert.Error(t, ValidateStructure(KindIdentity, obj))
}

func TestValidateStructure_RejectsUnsupportedSchemaVersion(t *testing.T) {
	obj := validIdentityObject()
	obj["schema_version"] = "2.0.0"
	err := ValidateStructure(KindIdentity, obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the supported range")
}

func TestValidateStructure_AcceptsSupportedSchemaVersion(t *testing.T) {
	obj := validIdentityObject()
	obj["schema_version"] = "1.2.0"
	assert.NoError(t, ValidateStructure(KindIdentity, obj))
}

func TestValidateStructure_UnknownKind(t *testing.T) {
	err := ValidateStructure(Kind("no-such-kind"), validIdentityObject())
	assert.Error(t, err)
}
