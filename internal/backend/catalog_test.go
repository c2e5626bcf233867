package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/embeddenator/puppetgate/internal/policy"
)

func TestCatalogListsAllProviders(t *testing.T) {
	s := NewStatic()
	providers, err := s.ListProviders(context.Background())
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	if len(providers) != 7 {
		t.Fatalf("expected 7 providers, got %d", len(providers))
	}

	seen := map[string]bool{}
	for _, p := range providers {
		seen[p.ID] = true
		if p.URL == "" || p.Name == "" {
			t.Fatalf("incomplete provider entry: %+v", p)
		}
	}
	for _, id := range []string{"claude", "grok", "gemini", "chatgpt", "perplexity", "notebooklm", "kaggle"} {
		if !seen[id] {
			t.Fatalf("provider %s missing from catalog", id)
		}
	}
}

func TestResolveProviderAliases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"claude", "claude"},
		{"Claude", "claude"},
		{" CHATGPT ", "chatgpt"},
		{"openai", "chatgpt"},
		{"notebook", "notebooklm"},
	}
	for _, tt := range tests {
		got, err := ResolveProvider(tt.in)
		if err != nil {
			t.Fatalf("ResolveProvider(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ResolveProvider(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ResolveProvider("bard"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCapabilitiesLookup(t *testing.T) {
	s := NewStatic()
	caps, err := s.Capabilities(context.Background(), "claude")
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if !caps.Conversation || caps.MaxContext == 0 {
		t.Fatalf("unexpected claude capabilities: %+v", caps)
	}

	if _, err := s.Capabilities(context.Background(), "nonsense"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestStaticInvokeIsUnavailable(t *testing.T) {
	s := NewStatic()
	_, err := s.Invoke(context.Background(), policy.Grant{}, Invocation{
		Operation: policy.OpSendPrompt,
		Provider:  "claude",
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPauseSignalIsAnError(t *testing.T) {
	var err error = &PauseSignal{Reason: "captcha"}

	var sig *PauseSignal
	if !errors.As(err, &sig) {
		t.Fatal("PauseSignal should unwrap via errors.As")
	}
	if sig.Reason != "captcha" {
		t.Fatalf("expected reason captcha, got %q", sig.Reason)
	}
}
