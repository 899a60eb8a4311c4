package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegionalProfile is a jurisdiction-specific compliance and networking
// profile, loaded from a profile_<code>.yaml file. It describes the
// jurisdiction's risk categories, obligation checklist and outbound
// networking policy; no service in this module loads or consults it.
type RegionalProfile struct {
	Name           string             `yaml:"name" json:"name"`
	Code           string             `yaml:"code" json:"code"`
	RiskCategories []string           `yaml:"risk_categories" json:"risk_categories"`
	Obligations    []string           `yaml:"obligations" json:"obligations"`
	DataResidency  string             `yaml:"data_residency" json:"data_residency"`
	PIIHandling    string             `yaml:"pii_handling,omitempty" json:"pii_handling,omitempty"`
	RightToErasure bool               `yaml:"right_to_erasure,omitempty" json:"right_to_erasure,omitempty"`
	Networking     NetworkingConfig   `yaml:"networking" json:"networking"`
	CryptoPolicy   CryptoPolicyConfig `yaml:"crypto_policy" json:"crypto_policy"`
	Retention      RetentionConfig    `yaml:"retention" json:"retention"`
}

// NetworkingConfig constrains outbound DID/ledger resolution beyond the
// resolver package's baseline SSRF blocklist.
type NetworkingConfig struct {
	OutboundMode string   `yaml:"outbound_mode" json:"outbound_mode"` // "allowlist" | "denylist" | "island"
	Allowlist    []string `yaml:"allowlist,omitempty" json:"allowlist,omitempty"`
	Denylist     []string `yaml:"denylist,omitempty" json:"denylist,omitempty"`
	IslandMode   bool     `yaml:"island_mode" json:"island_mode"` // if true, block all outbound resolution
}

// CryptoPolicyConfig defines the signing algorithms a jurisdiction permits
// and the key rotation cadence expected of issuers operating under it.
type CryptoPolicyConfig struct {
	AllowedAlgorithms []string `yaml:"allowed_algorithms" json:"allowed_algorithms"`
	KeyRotationDays   int      `yaml:"key_rotation_days" json:"key_rotation_days"`
	RequireHSM        bool     `yaml:"require_hsm,omitempty" json:"require_hsm,omitempty"`
}

// RetentionConfig defines audit log and credential retention policy.
type RetentionConfig struct {
	MaxDays          int  `yaml:"max_days" json:"max_days"`
	AuditLogDays     int  `yaml:"audit_log_days" json:"audit_log_days"`
	PIIRetentionDays int  `yaml:"pii_retention_days,omitempty" json:"pii_retention_days,omitempty"`
	RightToErasure   bool `yaml:"right_to_erasure,omitempty" json:"right_to_erasure,omitempty"`
}

// LoadProfile loads a regional profile YAML by jurisdiction code. It
// searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*RegionalProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile RegionalProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml file from the profiles
// directory, keyed by jurisdiction code.
func LoadAllProfiles(profilesDir string) (map[string]*RegionalProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*RegionalProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile RegionalProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// IsIslandMode returns true if the profile blocks all outbound resolution.
func (p *RegionalProfile) IsIslandMode() bool {
	return p.Networking.IslandMode || p.Networking.OutboundMode == "island"
}

// IsAllowed checks whether a hostname is allowed by the profile's
// networking policy alone; the resolver does not call it.
func (p *RegionalProfile) IsAllowed(hostname string) bool {
	if p.IsIslandMode() {
		return false
	}

	switch p.Networking.OutboundMode {
	case "allowlist":
		for _, h := range p.Networking.Allowlist {
			if h == hostname {
				return true
			}
		}
		return false
	case "denylist":
		for _, h := range p.Networking.Denylist {
			if h == hostname {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// AllowsAlgorithm reports whether a signing algorithm identifier is
// permitted under the profile's crypto policy. An empty allowlist permits
// everything (no jurisdiction-specific restriction configured).
func (p *RegionalProfile) AllowsAlgorithm(alg string) bool {
	if len(p.CryptoPolicy.AllowedAlgorithms) == 0 {
		return true
	}
	for _, a := range p.CryptoPolicy.AllowedAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// HasRiskCategory reports whether the profile lists the given risk
// category. The compliance service's CreateProfile does not call it.
func (p *RegionalProfile) HasRiskCategory(category string) bool {
	for _, c := range p.RiskCategories {
		if c == category {
			return true
		}
	}
	return false
}
