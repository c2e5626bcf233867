package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/embeddenator/puppetgate/internal/audit"
	"github.com/embeddenator/puppetgate/internal/backend"
	"github.com/embeddenator/puppetgate/internal/intervention"
	"github.com/embeddenator/puppetgate/internal/policy"
)

// --- Input/Output types ---

// PromptInput defines parameters for the prompt tool.
type PromptInput struct {
	Provider       string `json:"provider" jsonschema:"provider to use (claude, grok, gemini, chatgpt, perplexity, notebooklm, kaggle)"`
	Message        string `json:"message" jsonschema:"the prompt message to send"`
	Context        string `json:"context,omitempty" jsonschema:"optional context or system instructions"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"continue an existing conversation instead of starting a new one"`
}

// PromptOutput carries the screened response or denial details.
type PromptOutput struct {
	Provider             string   `json:"provider,omitempty"`
	Text                 string   `json:"text,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
	Denied               bool     `json:"denied,omitempty"`
	Rule                 string   `json:"rule,omitempty"`
	Risk                 int      `json:"risk,omitempty"`
	Reason               string   `json:"reason,omitempty"`
	InterventionRequired bool     `json:"intervention_required,omitempty"`
}

// ScreenshotInput defines parameters for the screenshot tool.
type ScreenshotInput struct {
	Target   string `json:"target" jsonschema:"URL to capture"`
	FullPage bool   `json:"full_page,omitempty" jsonschema:"capture the full page instead of the viewport"`
}

// ScreenshotOutput carries the captured image or denial details.
type ScreenshotOutput struct {
	Target               string `json:"target,omitempty"`
	Data                 []byte `json:"data,omitempty"`
	MIME                 string `json:"mime,omitempty"`
	Denied               bool   `json:"denied,omitempty"`
	Rule                 string `json:"rule,omitempty"`
	Risk                 int    `json:"risk,omitempty"`
	Reason               string `json:"reason,omitempty"`
	InterventionRequired bool   `json:"intervention_required,omitempty"`
}

// NavigateInput defines parameters for the navigate tool.
type NavigateInput struct {
	URL string `json:"url" jsonschema:"URL to navigate to"`
}

// NavigateOutput carries the navigation result or denial details.
type NavigateOutput struct {
	URL                  string   `json:"url,omitempty"`
	Text                 string   `json:"text,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
	Denied               bool     `json:"denied,omitempty"`
	Rule                 string   `json:"rule,omitempty"`
	Risk                 int      `json:"risk,omitempty"`
	Reason               string   `json:"reason,omitempty"`
	InterventionRequired bool     `json:"intervention_required,omitempty"`
}

// BrowserStatusInput is empty.
type BrowserStatusInput struct{}

// BrowserStatusOutput summarizes the automation session.
type BrowserStatusOutput struct {
	SessionID    string           `json:"session_id"`
	Policy       string           `json:"policy"`
	Intervention InterventionView `json:"intervention"`
	AuditRecords int              `json:"audit_records"`
}

// ListProvidersInput is empty.
type ListProvidersInput struct{}

// ListProvidersOutput lists the provider catalog.
type ListProvidersOutput struct {
	Providers []backend.Provider `json:"providers"`
}

// ProviderCapabilitiesInput defines parameters for provider_capabilities.
type ProviderCapabilitiesInput struct {
	Provider string `json:"provider" jsonschema:"provider to inspect"`
}

// ProviderCapabilitiesOutput carries the declared capability descriptor.
type ProviderCapabilitiesOutput struct {
	Provider     string               `json:"provider"`
	Capabilities backend.Capabilities `json:"capabilities"`
}

// DetectBrowsersInput is empty.
type DetectBrowsersInput struct{}

// DetectBrowsersOutput lists detected browsers.
type DetectBrowsersOutput struct {
	Browsers []backend.Browser `json:"browsers"`
	Note     string            `json:"note,omitempty"`
}

// CheckPermissionInput defines parameters for check_permission.
type CheckPermissionInput struct {
	Operation string `json:"operation" jsonschema:"operation to check (e.g. Navigate, SendPrompt, DeleteAccount)"`
	Domain    string `json:"domain,omitempty" jsonschema:"optional target domain"`
	Scheme    string `json:"scheme,omitempty" jsonschema:"optional URL scheme"`
	Risk      *int   `json:"risk,omitempty" jsonschema:"optional risk estimate 0-10; omitted uses the operation default"`
}

// CheckPermissionOutput renders a permission decision.
type CheckPermissionOutput struct {
	Operation string `json:"operation"`
	Verdict   string `json:"verdict"`
	Rule      string `json:"rule"`
	Risk      int    `json:"risk"`
	Reason    string `json:"reason"`
}

// InterventionView renders the intervention state for callers.
type InterventionView struct {
	State  string   `json:"state"`
	Reason string   `json:"reason,omitempty"`
	Since  string   `json:"since,omitempty"`
	Notes  []string `json:"notes,omitempty"`
}

// InterventionStatusInput is empty.
type InterventionStatusInput struct{}

// InterventionOutput carries the (possibly updated) intervention state.
type InterventionOutput struct {
	Intervention InterventionView `json:"intervention"`
	Error        string           `json:"error,omitempty"`
}

// InterventionCompleteInput defines parameters for intervention_complete.
type InterventionCompleteInput struct {
	Success bool   `json:"success" jsonschema:"whether the human completed the intervention successfully"`
	Notes   string `json:"notes,omitempty" jsonschema:"optional notes about what was done"`
}

// PauseInput defines parameters for the pause tool.
type PauseInput struct {
	Reason string `json:"reason" jsonschema:"why automation should pause"`
}

// ResumeInput is empty.
type ResumeInput struct{}

// --- Handlers ---

func (s *Server) handlePrompt(ctx context.Context, req *mcpsdk.CallToolRequest, in PromptInput) (*mcpsdk.CallToolResult, PromptOutput, error) {
	providerID, err := backend.ResolveProvider(in.Provider)
	if err != nil {
		return nil, PromptOutput{}, s.validationFailure("prompt", err)
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, PromptOutput{}, s.validationFailure("prompt", errors.New("message must not be empty"))
	}

	pctx := s.providerContext(ctx, providerID)

	grant, err := s.guard.Require(policy.OpSendPrompt, pctx)
	if denied := deniedDecision(err); denied != nil {
		return errResult(), promptDenied(providerID, *denied), nil
	}

	convOp := policy.OpNewConversation
	if in.ConversationID != "" {
		convOp = policy.OpContinueConversation
	}
	if _, err := s.guard.Require(convOp, pctx); err != nil {
		if denied := deniedDecision(err); denied != nil {
			return errResult(), promptDenied(providerID, *denied), nil
		}
	}

	out, err := s.backend.Invoke(ctx, grant, backend.Invocation{
		Operation: policy.OpSendPrompt,
		Provider:  providerID,
		Args: map[string]any{
			"message":         in.Message,
			"context":         in.Context,
			"conversation_id": in.ConversationID,
		},
	})
	if err != nil {
		var sig *backend.PauseSignal
		if errors.As(err, &sig) {
			s.machine.RequestPause(sig.Reason)
			s.logger.Info("backend signaled intervention", zap.String("reason", sig.Reason))
			return errResult(), PromptOutput{
				Provider:             providerID,
				InterventionRequired: true,
				Reason:               sig.Reason,
			}, nil
		}
		result := PromptOutput{
			Provider: providerID,
			Reason:   fmt.Sprintf("automation backend failed: %v", err),
		}
		// Partial output is still untrusted content.
		if out != nil && out.Text != "" {
			screened := s.screener.Screen(out.Text)
			result.Text = screened.Text
			if w := screened.Warning(); w != "" {
				result.Warnings = append(result.Warnings, w)
			}
		}
		return errResult(), result, nil
	}

	screened := s.screener.Screen(out.Text)
	result := PromptOutput{Provider: providerID, Text: screened.Text}
	if w := screened.Warning(); w != "" {
		result.Warnings = append(result.Warnings, w)
		s.logger.Warn("response screening flagged content",
			zap.String("provider", providerID),
			zap.Int("findings", len(screened.Findings)))
	}
	return nil, result, nil
}

func (s *Server) handleScreenshot(ctx context.Context, req *mcpsdk.CallToolRequest, in ScreenshotInput) (*mcpsdk.CallToolResult, ScreenshotOutput, error) {
	uctx, err := urlContext(in.Target)
	if err != nil {
		return nil, ScreenshotOutput{}, s.validationFailure("screenshot", err)
	}

	if _, err := s.guard.Require(policy.OpNavigate, uctx); err != nil {
		if denied := deniedDecision(err); denied != nil {
			return errResult(), screenshotDenied(in.Target, *denied), nil
		}
	}
	grant, err := s.guard.Require(policy.OpScreenshot, uctx)
	if denied := deniedDecision(err); denied != nil {
		return errResult(), screenshotDenied(in.Target, *denied), nil
	}

	out, err := s.backend.Invoke(ctx, grant, backend.Invocation{
		Operation: policy.OpScreenshot,
		Args: map[string]any{
			"target":    in.Target,
			"full_page": in.FullPage,
		},
	})
	if err != nil {
		var sig *backend.PauseSignal
		if errors.As(err, &sig) {
			s.machine.RequestPause(sig.Reason)
			return errResult(), ScreenshotOutput{
				Target:               in.Target,
				InterventionRequired: true,
				Reason:               sig.Reason,
			}, nil
		}
		return errResult(), ScreenshotOutput{
			Target: in.Target,
			Reason: fmt.Sprintf("automation backend failed: %v", err),
		}, nil
	}

	mime := out.MIME
	if mime == "" {
		mime = "image/png"
	}
	return nil, ScreenshotOutput{Target: in.Target, Data: out.Data, MIME: mime}, nil
}

func (s *Server) handleNavigate(ctx context.Context, req *mcpsdk.CallToolRequest, in NavigateInput) (*mcpsdk.CallToolResult, NavigateOutput, error) {
	uctx, err := urlContext(in.URL)
	if err != nil {
		return nil, NavigateOutput{}, s.validationFailure("navigate", err)
	}

	grant, err := s.guard.Require(policy.OpNavigate, uctx)
	if denied := deniedDecision(err); denied != nil {
		return errResult(), NavigateOutput{
			URL:    in.URL,
			Denied: true,
			Rule:   string(denied.Rule),
			Risk:   denied.Risk,
			Reason: denied.Reason,
		}, nil
	}

	out, err := s.backend.Invoke(ctx, grant, backend.Invocation{
		Operation: policy.OpNavigate,
		Args:      map[string]any{"url": in.URL},
	})
	if err != nil {
		var sig *backend.PauseSignal
		if errors.As(err, &sig) {
			s.machine.RequestPause(sig.Reason)
			return errResult(), NavigateOutput{
				URL:                  in.URL,
				InterventionRequired: true,
				Reason:               sig.Reason,
			}, nil
		}
		return errResult(), NavigateOutput{
			URL:    in.URL,
			Reason: fmt.Sprintf("automation backend failed: %v", err),
		}, nil
	}

	screened := s.screener.Screen(out.Text)
	result := NavigateOutput{URL: in.URL, Text: screened.Text}
	if w := screened.Warning(); w != "" {
		result.Warnings = append(result.Warnings, w)
	}
	return nil, result, nil
}

func (s *Server) handleBrowserStatus(ctx context.Context, req *mcpsdk.CallToolRequest, in BrowserStatusInput) (*mcpsdk.CallToolResult, BrowserStatusOutput, error) {
	return nil, BrowserStatusOutput{
		SessionID:    s.sessionID,
		Policy:       s.guard.Policy().Name,
		Intervention: viewSnapshot(s.machine.Status()),
		AuditRecords: s.auditLog.Size(),
	}, nil
}

func (s *Server) handleListProviders(ctx context.Context, req *mcpsdk.CallToolRequest, in ListProvidersInput) (*mcpsdk.CallToolResult, ListProvidersOutput, error) {
	providers, err := s.backend.ListProviders(ctx)
	if err != nil {
		return nil, ListProvidersOutput{}, fmt.Errorf("list providers: %w", err)
	}
	return nil, ListProvidersOutput{Providers: providers}, nil
}

func (s *Server) handleProviderCapabilities(ctx context.Context, req *mcpsdk.CallToolRequest, in ProviderCapabilitiesInput) (*mcpsdk.CallToolResult, ProviderCapabilitiesOutput, error) {
	providerID, err := backend.ResolveProvider(in.Provider)
	if err != nil {
		return nil, ProviderCapabilitiesOutput{}, s.validationFailure("provider_capabilities", err)
	}
	caps, err := s.backend.Capabilities(ctx, providerID)
	if err != nil {
		return nil, ProviderCapabilitiesOutput{}, fmt.Errorf("provider capabilities: %w", err)
	}
	return nil, ProviderCapabilitiesOutput{Provider: providerID, Capabilities: *caps}, nil
}

func (s *Server) handleDetectBrowsers(ctx context.Context, req *mcpsdk.CallToolRequest, in DetectBrowsersInput) (*mcpsdk.CallToolResult, DetectBrowsersOutput, error) {
	browsers, err := s.backend.DetectBrowsers(ctx)
	if err != nil {
		return nil, DetectBrowsersOutput{}, fmt.Errorf("detect browsers: %w", err)
	}
	out := DetectBrowsersOutput{Browsers: browsers}
	if len(browsers) == 0 {
		out.Note = "no browsers detected; attach an automation engine to enable discovery"
	}
	return nil, out, nil
}

func (s *Server) handleCheckPermission(ctx context.Context, req *mcpsdk.CallToolRequest, in CheckPermissionInput) (*mcpsdk.CallToolResult, CheckPermissionOutput, error) {
	op, err := policy.ParseOperation(in.Operation)
	if err != nil {
		return nil, CheckPermissionOutput{}, s.validationFailure("check_permission", err)
	}

	pctx := policy.DefaultContext()
	pctx.Domain = in.Domain
	pctx.Scheme = in.Scheme
	if in.Risk != nil {
		pctx.EstimatedRisk = *in.Risk
	}

	d := s.guard.Evaluate(op, pctx)
	return nil, CheckPermissionOutput{
		Operation: string(d.Operation),
		Verdict:   string(d.Verdict),
		Rule:      string(d.Rule),
		Risk:      d.Risk,
		Reason:    d.Reason,
	}, nil
}

func (s *Server) handleInterventionStatus(ctx context.Context, req *mcpsdk.CallToolRequest, in InterventionStatusInput) (*mcpsdk.CallToolResult, InterventionOutput, error) {
	return nil, InterventionOutput{Intervention: viewSnapshot(s.machine.Status())}, nil
}

func (s *Server) handleInterventionComplete(ctx context.Context, req *mcpsdk.CallToolRequest, in InterventionCompleteInput) (*mcpsdk.CallToolResult, InterventionOutput, error) {
	snap, err := s.machine.Complete(in.Success, in.Notes)
	if err != nil {
		return errResult(), InterventionOutput{
			Intervention: viewSnapshot(snap),
			Error:        err.Error(),
		}, nil
	}
	s.logger.Info("intervention completed",
		zap.Bool("success", in.Success),
		zap.String("state", string(snap.State)))
	return nil, InterventionOutput{Intervention: viewSnapshot(snap)}, nil
}

func (s *Server) handlePause(ctx context.Context, req *mcpsdk.CallToolRequest, in PauseInput) (*mcpsdk.CallToolResult, InterventionOutput, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, InterventionOutput{}, s.validationFailure("pause", errors.New("reason must not be empty"))
	}
	snap, err := s.machine.RequestPause(in.Reason)
	if err != nil {
		return errResult(), InterventionOutput{
			Intervention: viewSnapshot(snap),
			Error:        err.Error(),
		}, nil
	}
	s.logger.Info("automation paused", zap.String("reason", in.Reason))
	return nil, InterventionOutput{Intervention: viewSnapshot(snap)}, nil
}

func (s *Server) handleResume(ctx context.Context, req *mcpsdk.CallToolRequest, in ResumeInput) (*mcpsdk.CallToolResult, InterventionOutput, error) {
	snap, err := s.machine.Resume()
	if err != nil {
		return errResult(), InterventionOutput{
			Intervention: viewSnapshot(snap),
			Error:        err.Error(),
		}, nil
	}
	s.logger.Info("automation resumed")
	return nil, InterventionOutput{Intervention: viewSnapshot(snap)}, nil
}

// --- Helpers ---

func errResult() *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{IsError: true}
}

// deniedDecision extracts the decision from a permission denial, or nil for
// any other error.
func deniedDecision(err error) *policy.Decision {
	var denied *policy.DeniedError
	if errors.As(err, &denied) {
		return &denied.Decision
	}
	return nil
}

func promptDenied(provider string, d policy.Decision) PromptOutput {
	return PromptOutput{
		Provider: provider,
		Denied:   true,
		Rule:     string(d.Rule),
		Risk:     d.Risk,
		Reason:   d.Reason,
	}
}

func screenshotDenied(target string, d policy.Decision) ScreenshotOutput {
	return ScreenshotOutput{
		Target: target,
		Denied: true,
		Rule:   string(d.Rule),
		Risk:   d.Risk,
		Reason: d.Reason,
	}
}

// providerContext builds the guard context for a provider interaction from
// the provider's catalog URL.
func (s *Server) providerContext(ctx context.Context, providerID string) policy.Context {
	pctx := policy.DefaultContext()
	providers, err := s.backend.ListProviders(ctx)
	if err != nil {
		return pctx
	}
	for _, p := range providers {
		if p.ID != providerID {
			continue
		}
		if u, err := url.Parse(p.URL); err == nil {
			pctx.Domain = u.Hostname()
			pctx.Scheme = u.Scheme
		}
		break
	}
	return pctx
}

// urlContext builds the guard context for an explicit target URL.
func urlContext(raw string) (policy.Context, error) {
	pctx := policy.DefaultContext()
	u, err := url.Parse(raw)
	if err != nil {
		return pctx, fmt.Errorf("invalid URL %q: %v", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return pctx, fmt.Errorf("URL %q must be absolute with a host", raw)
	}
	pctx.Domain = u.Hostname()
	pctx.Scheme = u.Scheme
	return pctx, nil
}

func viewSnapshot(snap intervention.Snapshot) InterventionView {
	v := InterventionView{
		State:  string(snap.State),
		Reason: snap.Reason,
		Notes:  snap.Notes,
	}
	if !snap.Since.IsZero() {
		v.Since = snap.Since.Format(time.RFC3339)
	}
	return v
}

// validationFailure records a malformed call in the audit log and returns
// the error for the transport layer. Validation failures never reach the
// guard or the backend.
func (s *Server) validationFailure(tool string, err error) error {
	s.logger.Debug("validation failure", zap.String("tool", tool), zap.Error(err))
	_ = s.auditLog.Record(audit.Record{
		SessionID: s.sessionID,
		Operation: tool,
		Verdict:   "error",
		Rule:      "validation-failed",
		Reason:    err.Error(),
	})
	return err
}
