package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/VibeTensor/attestix/pkg/errs"
)

// AgentCard is an A2A Agent Card (the /.well-known/agent.json standard):
// deliberately untyped, since this system only ever reads a handful of
// well-known fields out of an otherwise arbitrary JSON document.
type AgentCard map[string]any

// ParsedAgentCard is the normalized projection ParseAgentCard produces.
type ParsedAgentCard struct {
	Name                  string         `json:"name"`
	Description           string         `json:"description"`
	URL                   string         `json:"url"`
	Version               string         `json:"version"`
	Capabilities          []string       `json:"capabilities"`
	SkillsCount           int            `json:"skills_count"`
	SkillsRaw             any            `json:"skills_raw"`
	AuthenticationSchemes []string       `json:"authentication_schemes"`
	Provider              map[string]any `json:"provider"`
	Streaming             bool           `json:"streaming"`
	PushNotifications     bool           `json:"push_notifications"`
}

// ParseAgentCard normalizes an arbitrary Agent Card JSON document into its
// well-known fields. Missing fields simply default, rather than erroring —
// Agent Cards in the wild vary widely in which optional fields they set.
func ParseAgentCard(card AgentCard) ParsedAgentCard {
	skillsRaw := card["skills"]
	skills, _ := skillsRaw.([]any)

	capabilities := make([]string, 0, len(skills))
	for _, s := range skills {
		switch v := s.(type) {
		case map[string]any:
			if name, ok := v["name"].(string); ok && name != "" {
				capabilities = append(capabilities, name)
			} else if id, ok := v["id"].(string); ok {
				capabilities = append(capabilities, id)
			}
		case string:
			capabilities = append(capabilities, v)
		}
	}

	var authSchemes []string
	switch auth := card["authentication"].(type) {
	case map[string]any:
		if schemes, ok := auth["schemes"].([]any); ok {
			for _, s := range schemes {
				if str, ok := s.(string); ok {
					authSchemes = append(authSchemes, str)
				}
			}
		}
	case []any:
		for _, s := range auth {
			if str, ok := s.(string); ok {
				authSchemes = append(authSchemes, str)
			}
		}
	}

	provider, _ := card["provider"].(map[string]any)
	if provider == nil {
		if org, ok := card["provider"].(string); ok {
			provider = map[string]any{"organization": org}
		}
	}

	caps, _ := card["capabilities"].(map[string]any)
	streaming, _ := caps["streaming"].(bool)
	pushNotif, _ := caps["pushNotifications"].(bool)

	name, _ := card["name"].(string)
	if name == "" {
		name = "Unknown Agent"
	}
	desc, _ := card["description"].(string)
	url, _ := card["url"].(string)
	version, _ := card["version"].(string)

	return ParsedAgentCard{
		Name:                  name,
		Description:           desc,
		URL:                   url,
		Version:               version,
		Capabilities:          capabilities,
		SkillsCount:           len(skills),
		SkillsRaw:             skillsRaw,
		AuthenticationSchemes: authSchemes,
		Provider:              provider,
		Streaming:             streaming,
		PushNotifications:     pushNotif,
	}
}

// GeneratedAgentCard is the result of building a fresh Agent Card.
type GeneratedAgentCard struct {
	AgentCard    AgentCard `json:"agent_card"`
	HostingPath  string    `json:"hosting_path"`
	Instructions string    `json:"instructions"`
}

// GenerateAgentCard builds a valid A2A Agent Card for a newly minted agent.
func GenerateAgentCard(name, agentURL, description string, skills []any, version string) GeneratedAgentCard {
	if version == "" {
		version = "1.0.0"
	}
	if skills == nil {
		skills = []any{}
	}
	trimmed := strings.TrimSuffix(agentURL, "/")
	sum := sha256.Sum256([]byte(agentURL))

	card := AgentCard{
		"id":          "attestix-" + hex.EncodeToString(sum[:])[:16],
		"name":        name,
		"description": description,
		"url":         agentURL,
		"version":     version,
		"capabilities": map[string]any{
			"streaming":              false,
			"pushNotifications":      false,
			"stateTransitionHistory": false,
		},
		"skills": skills,
		"endpoints": []any{
			map[string]any{"url": trimmed + "/tasks", "protocol": "https", "method": "POST"},
		},
		"provider":          map[string]any{"organization": "Attestix"},
		"authentication":    map[string]any{"schemes": []any{"bearer"}},
		"defaultInputModes":  []any{"text/plain"},
		"defaultOutputModes": []any{"text/plain"},
	}

	return GeneratedAgentCard{
		AgentCard:    card,
		HostingPath:  "/.well-known/agent.json",
		Instructions: fmt.Sprintf("host this JSON at %s/.well-known/agent.json to make the agent discoverable via A2A", trimmed),
	}
}

// DiscoveredAgent bundles a fetched Agent Card with its normalized form.
type DiscoveredAgent struct {
	SourceURL string          `json:"source_url"`
	AgentCard AgentCard       `json:"agent_card"`
	Parsed    ParsedAgentCard `json:"parsed"`
}

var discoveryClient = newPinnedClient(10 * time.Second)

// DiscoverAgent fetches /.well-known/agent.json from baseURL, SSRF-guarded
// the same way did:web resolution is: HTTPS only, private/loopback/
// link-local hosts blocked, DNS pinned against rebinding.
func DiscoverAgent(ctx context.Context, baseURL string) (*DiscoveredAgent, error) {
	trimmed := strings.TrimSuffix(baseURL, "/")
	if !strings.HasPrefix(trimmed, "https://") {
		return nil, errs.New(errs.Validation, "only HTTPS URLs are supported for agent discovery")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "invalid agent URL", err)
	}

	if err := ValidateHost(ctx, parsed.Hostname()); err != nil {
		return nil, err
	}
	pinnedIPs, err := ValidateAndPinURL(ctx, parsed.Hostname())
	if err != nil {
		return nil, err
	}

	target := trimmed + "/.well-known/agent.json"
	resp, err := discoveryClient.get(ctx, target, pinnedIPs)
	if err != nil {
		return nil, errs.Wrap(errs.Network, fmt.Sprintf("failed to fetch agent card from %s", baseURL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errs.Wrap(errs.Network, "failed to read agent card response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Newf(errs.Network, "HTTP %d fetching %s", resp.StatusCode, target)
	}

	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, errs.Wrap(errs.Validation, "agent card response was not valid JSON", err)
	}

	return &DiscoveredAgent{
		SourceURL: target,
		AgentCard: card,
		Parsed:    ParseAgentCard(card),
	}, nil
}
