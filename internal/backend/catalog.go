package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/embeddenator/puppetgate/internal/policy"
)

// Provider is one AI surface reachable through browser automation.
type Provider struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Features string `json:"features"`
}

// Capabilities are a provider's declared abilities. Declared, not detected:
// this is catalog data, not runtime UI inspection.
type Capabilities struct {
	Conversation  bool     `json:"conversation"`
	Vision        bool     `json:"vision"`
	FileUpload    bool     `json:"file_upload"`
	CodeExecution bool     `json:"code_execution"`
	WebSearch     bool     `json:"web_search"`
	MaxContext    int      `json:"max_context"`
	Models        []string `json:"models,omitempty"`
}

type catalogEntry struct {
	provider Provider
	caps     Capabilities
}

var catalog = []catalogEntry{
	{
		provider: Provider{ID: "claude", Name: "Claude (Anthropic)", URL: "https://claude.ai",
			Features: "Large context, artifacts, code"},
		caps: Capabilities{Conversation: true, Vision: true, FileUpload: true,
			CodeExecution: true, MaxContext: 200_000},
	},
	{
		provider: Provider{ID: "grok", Name: "Grok (X/xAI)", URL: "https://x.com/i/grok",
			Features: "Real-time info, integrated with X"},
		caps: Capabilities{Conversation: true, Vision: true, WebSearch: true, MaxContext: 128_000},
	},
	{
		provider: Provider{ID: "gemini", Name: "Gemini (Google)", URL: "https://gemini.google.com",
			Features: "Google integration, large context"},
		caps: Capabilities{Conversation: true, Vision: true, FileUpload: true,
			WebSearch: true, MaxContext: 1_000_000},
	},
	{
		provider: Provider{ID: "chatgpt", Name: "ChatGPT (OpenAI)", URL: "https://chat.openai.com",
			Features: "Vision, code, web search"},
		caps: Capabilities{Conversation: true, Vision: true, FileUpload: true,
			CodeExecution: true, WebSearch: true, MaxContext: 128_000},
	},
	{
		provider: Provider{ID: "perplexity", Name: "Perplexity AI", URL: "https://www.perplexity.ai",
			Features: "Search-focused, sources cited"},
		caps: Capabilities{Conversation: true, WebSearch: true, MaxContext: 127_000},
	},
	{
		provider: Provider{ID: "notebooklm", Name: "NotebookLM (Google)", URL: "https://notebooklm.google.com",
			Features: "Research assistant, large source context"},
		caps: Capabilities{Conversation: true, FileUpload: true, MaxContext: 500_000},
	},
	{
		provider: Provider{ID: "kaggle", Name: "Kaggle (Datasets)", URL: "https://www.kaggle.com/datasets",
			Features: "Dataset search and catalog; returns dataset page links"},
		caps: Capabilities{WebSearch: true},
	},
}

// providerAliases maps accepted alternative names to catalog IDs.
var providerAliases = map[string]string{
	"openai":   "chatgpt",
	"notebook": "notebooklm",
}

// ResolveProvider normalizes a caller-supplied provider name to a catalog
// ID, or returns an error listing the valid options.
func ResolveProvider(name string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := providerAliases[id]; ok {
		id = alias
	}
	for _, e := range catalog {
		if e.provider.ID == id {
			return id, nil
		}
	}
	ids := make([]string, len(catalog))
	for i, e := range catalog {
		ids[i] = e.provider.ID
	}
	return "", fmt.Errorf("unknown provider %q (valid: %s)", name, strings.Join(ids, ", "))
}

// Static is a Backend with no automation engine attached. It serves the
// provider catalog so discovery and policy tools work everywhere, and
// reports ErrUnavailable for anything that would need a real browser.
type Static struct{}

// NewStatic returns a catalog-only backend.
func NewStatic() *Static { return &Static{} }

// Invoke always fails: there is no engine to drive.
func (s *Static) Invoke(ctx context.Context, _ policy.Grant, _ Invocation) (*Output, error) {
	return nil, ErrUnavailable
}

// ListProviders returns the full provider catalog.
func (s *Static) ListProviders(ctx context.Context) ([]Provider, error) {
	out := make([]Provider, len(catalog))
	for i, e := range catalog {
		out[i] = e.provider
	}
	return out, nil
}

// Capabilities returns the declared capabilities for a provider.
func (s *Static) Capabilities(ctx context.Context, name string) (*Capabilities, error) {
	id, err := ResolveProvider(name)
	if err != nil {
		return nil, err
	}
	for _, e := range catalog {
		if e.provider.ID == id {
			caps := e.caps
			return &caps, nil
		}
	}
	return nil, fmt.Errorf("provider %q not in catalog", name)
}

// DetectBrowsers reports none: browser discovery belongs to the engine.
func (s *Static) DetectBrowsers(ctx context.Context) ([]Browser, error) {
	return nil, nil
}
