package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const euProfileYAML = `
name: European Union
code: eu
risk_categories: [minimal, limited, high, unacceptable]
obligations: [transparency, human_oversight, conformity_assessment, training_data_provenance]
data_residency: eu
pii_handling: strict
right_to_erasure: true
networking:
  outbound_mode: denylist
  denylist: ["evil.example"]
crypto_policy:
  allowed_algorithms: [Ed25519]
  key_rotation_days: 90
retention:
  max_days: 2555
  audit_log_days: 2555
  right_to_erasure: true
`

const islandProfileYAML = `
name: Air-Gapped Region
code: iso
risk_categories: [minimal]
networking:
  island_mode: true
crypto_policy:
  allowed_algorithms: [Ed25519]
  require_hsm: true
`

func writeProfile(t *testing.T, dir, code, yaml string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_"+code+".yaml"), []byte(yaml), 0o644))
}

func TestLoadProfile_EU(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "eu", euProfileYAML)

	p, err := LoadProfile(dir, "eu")
	require.NoError(t, err)
	require.Equal(t, "European Union", p.Name)
	require.Equal(t, "strict", p.PIIHandling)
	require.True(t, p.RightToErasure)
	require.True(t, p.HasRiskCategory("high"))
	require.False(t, p.HasRiskCategory("bogus"))
	require.False(t, p.IsIslandMode())
}

func TestLoadProfile_IslandMode(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "iso", islandProfileYAML)

	p, err := LoadProfile(dir, "iso")
	require.NoError(t, err)
	require.True(t, p.IsIslandMode())
	require.True(t, p.CryptoPolicy.RequireHSM)
}

func TestLoadProfile_CodeDefaultsFromArgWhenFileOmitsIt(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "xx", "name: No Code\n")

	p, err := LoadProfile(dir, "XX")
	require.NoError(t, err)
	require.Equal(t, "xx", p.Code)
}

func TestLoadProfile_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadProfile(dir, "missing")
	require.Error(t, err)
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "eu", euProfileYAML)
	writeProfile(t, dir, "iso", islandProfileYAML)

	profiles, err := LoadAllProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	require.Equal(t, "European Union", profiles["eu"].Name)
	require.True(t, profiles["iso"].IsIslandMode())
}

func TestIsAllowed_Denylist(t *testing.T) {
	p := &RegionalProfile{
		Networking: NetworkingConfig{
			OutboundMode: "denylist",
			Denylist:     []string{"evil.example"},
		},
	}
	require.True(t, p.IsAllowed("good.example"))
	require.False(t, p.IsAllowed("evil.example"))
}

func TestIsAllowed_Allowlist(t *testing.T) {
	p := &RegionalProfile{
		Networking: NetworkingConfig{
			OutboundMode: "allowlist",
			Allowlist:    []string{"resolver.example"},
		},
	}
	require.True(t, p.IsAllowed("resolver.example"))
	require.False(t, p.IsAllowed("evil.example"))
}

func TestIsAllowed_IslandMode(t *testing.T) {
	p := &RegionalProfile{Networking: NetworkingConfig{IslandMode: true}}
	require.False(t, p.IsAllowed("resolver.example"))
}

func TestAllowsAlgorithm_EmptyAllowlistPermitsAll(t *testing.T) {
	p := &RegionalProfile{}
	require.True(t, p.AllowsAlgorithm("Ed25519"))
}

func TestAllowsAlgorithm_RestrictedAllowlist(t *testing.T) {
	p := &RegionalProfile{CryptoPolicy: CryptoPolicyConfig{AllowedAlgorithms: []string{"Ed25519"}}}
	require.True(t, p.AllowsAlgorithm("Ed25519"))
	require.False(t, p.AllowsAlgorithm("RSA-2048"))
}
