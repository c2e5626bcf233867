package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the immutable security configuration a Guard evaluates against.
// It is loaded once per server lifetime and never mutated afterwards, so
// concurrent reads need no locking.
type Policy struct {
	Name      string
	allow     map[Operation]bool
	deny      map[Operation]bool
	domains   []string
	httpsOnly bool
	maxRisk   int
}

// policyFile is the YAML shape for custom policies.
type policyFile struct {
	Name      string   `yaml:"name"`
	Allow     []string `yaml:"allow"`
	Deny      []string `yaml:"deny"`
	Domains   []string `yaml:"domains"`
	HTTPSOnly *bool    `yaml:"https_only"`
	MaxRisk   *int     `yaml:"max_risk"`
}

// providerDomains are the domains of the supported automation providers.
// The secure preset restricts navigation to these.
var providerDomains = []string{
	"claude.ai",
	"x.com",
	"gemini.google.com",
	"chat.openai.com",
	"chatgpt.com",
	"www.perplexity.ai",
	"notebooklm.google.com",
	"www.kaggle.com",
}

// Secure is the default preset: interaction with known providers over HTTPS
// only, destructive operations denied outright.
func Secure() *Policy {
	return newPolicy("secure",
		[]Operation{
			OpNavigate, OpSendPrompt, OpReadResponse, OpScreenshot,
			OpClick, OpTypeText, OpNewConversation, OpContinueConversation,
		},
		[]Operation{OpDeleteAccount, OpChangePassword, OpFileSystemAccess},
		providerDomains, true, 5)
}

// ReadOnly permits observation only: no input, no state changes.
func ReadOnly() *Policy {
	return newPolicy("readonly",
		[]Operation{OpNavigate, OpReadResponse, OpScreenshot},
		[]Operation{
			OpSendPrompt, OpClick, OpTypeText, OpNewConversation,
			OpContinueConversation, OpDeleteAccount, OpChangePassword,
			OpFileSystemAccess,
		},
		providerDomains, true, 3)
}

// Permissive allows everything on any domain. Intended for development.
func Permissive() *Policy {
	return newPolicy("permissive", AllOperations, nil, []string{"*"}, false, MaxRiskScore)
}

func newPolicy(name string, allow, deny []Operation, domains []string, httpsOnly bool, maxRisk int) *Policy {
	p := &Policy{
		Name:      name,
		allow:     make(map[Operation]bool, len(allow)),
		deny:      make(map[Operation]bool, len(deny)),
		domains:   domains,
		httpsOnly: httpsOnly,
		maxRisk:   maxRisk,
	}
	for _, op := range allow {
		p.allow[op] = true
	}
	for _, op := range deny {
		p.deny[op] = true
	}
	return p
}

// Preset returns the named built-in policy.
func Preset(name string) (*Policy, error) {
	switch strings.ToLower(name) {
	case "secure":
		return Secure(), nil
	case "readonly", "read-only", "read_only":
		return ReadOnly(), nil
	case "permissive":
		return Permissive(), nil
	default:
		return nil, fmt.Errorf("unknown policy preset %q", name)
	}
}

// LoadFile reads a custom policy from a YAML file. Unspecified fields fall
// back to the secure preset's values.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	base := Secure()
	p := &Policy{
		Name:      pf.Name,
		allow:     base.allow,
		deny:      base.deny,
		domains:   base.domains,
		httpsOnly: base.httpsOnly,
		maxRisk:   base.maxRisk,
	}
	if p.Name == "" {
		p.Name = "custom"
	}

	if pf.Allow != nil {
		p.allow = make(map[Operation]bool, len(pf.Allow))
		for _, name := range pf.Allow {
			op, err := ParseOperation(name)
			if err != nil {
				return nil, fmt.Errorf("policy allow list: %w", err)
			}
			p.allow[op] = true
		}
	}
	if pf.Deny != nil {
		p.deny = make(map[Operation]bool, len(pf.Deny))
		for _, name := range pf.Deny {
			op, err := ParseOperation(name)
			if err != nil {
				return nil, fmt.Errorf("policy deny list: %w", err)
			}
			p.deny[op] = true
		}
	}
	if pf.Domains != nil {
		p.domains = pf.Domains
	}
	if pf.HTTPSOnly != nil {
		p.httpsOnly = *pf.HTTPSOnly
	}
	if pf.MaxRisk != nil {
		if *pf.MaxRisk < 0 || *pf.MaxRisk > MaxRiskScore {
			return nil, fmt.Errorf("max_risk must be 0-%d, got %d", MaxRiskScore, *pf.MaxRisk)
		}
		p.maxRisk = *pf.MaxRisk
	}

	return p, nil
}

// Load resolves name as a preset first, then as a file path.
func Load(name string) (*Policy, error) {
	if p, err := Preset(name); err == nil {
		return p, nil
	}
	return LoadFile(name)
}

// MaxRisk returns the policy's risk ceiling.
func (p *Policy) MaxRisk() int { return p.maxRisk }

// HTTPSOnly reports whether the policy requires https URLs.
func (p *Policy) HTTPSOnly() bool { return p.httpsOnly }

// Allows reports whether op is in the allow set.
func (p *Policy) Allows(op Operation) bool { return p.allow[op] }

// Denies reports whether op is in the deny set.
func (p *Policy) Denies(op Operation) bool { return p.deny[op] }

// DomainAllowed reports whether domain matches any allowlist pattern.
// Patterns are exact hostnames, "*.suffix" wildcards, or "*" for any.
func (p *Policy) DomainAllowed(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, pattern := range p.domains {
		if matchDomain(pattern, domain) {
			return true
		}
	}
	return false
}

func matchDomain(pattern, domain string) bool {
	pattern = strings.ToLower(pattern)
	if pattern == "*" {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return domain == suffix || strings.HasSuffix(domain, "."+suffix)
	}
	return domain == pattern
}
