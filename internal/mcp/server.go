// Package mcp is the tool dispatcher: an MCP server over stdio that routes
// validated tool calls through the permission guard, the automation
// backend, the intervention state machine, and the response screener.
package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/embeddenator/puppetgate/internal/audit"
	"github.com/embeddenator/puppetgate/internal/backend"
	"github.com/embeddenator/puppetgate/internal/intervention"
	"github.com/embeddenator/puppetgate/internal/policy"
	"github.com/embeddenator/puppetgate/internal/screen"
)

// ServerName identifies this server to MCP clients.
const ServerName = "puppetgate"

// ServerVersion is reported during the MCP handshake.
const ServerVersion = "0.1.0"

// Config holds server configuration.
type Config struct {
	// Policy is a preset name (secure, readonly, permissive) or a path to
	// a policy YAML file. Empty means secure.
	Policy string
	// AuditLogPath is where the hash-chained JSONL audit log is written.
	// Empty keeps the audit log in memory only.
	AuditLogPath string
	// PatternsPath optionally replaces the built-in screening patterns.
	PatternsPath string
	// Backend is the automation engine. Nil attaches the catalog-only
	// static backend.
	Backend backend.Backend
	// Logger receives structured logs. Nil disables logging.
	Logger *zap.Logger
}

// Server wires the policy guard, response screener, intervention machine,
// and automation backend behind MCP tools. One Server owns one session.
type Server struct {
	mcpServer *mcpsdk.Server
	guard     *policy.Guard
	screener  *screen.Screener
	machine   *intervention.Machine
	backend   backend.Backend
	auditLog  *audit.Log
	logger    *zap.Logger
	sessionID string
}

// New creates a Server with loaded policy, screening patterns, and tools.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	policyName := cfg.Policy
	if policyName == "" {
		policyName = "secure"
	}
	pol, err := policy.Load(policyName)
	if err != nil {
		// A bad policy argument must not leave the caller without a
		// server, and must not weaken enforcement. Run under secure.
		logger.Error("failed to load policy, falling back to secure",
			zap.String("policy", policyName),
			zap.Error(err))
		pol = policy.Secure()
	}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
	} else {
		auditLog = audit.NewLog()
	}

	screenCfg, err := screen.LoadConfig(cfg.PatternsPath)
	if err != nil {
		return nil, fmt.Errorf("load screening patterns: %w", err)
	}

	be := cfg.Backend
	if be == nil {
		be = backend.NewStatic()
	}

	sessionID := "s-" + uuid.NewString()

	s := &Server{
		guard:     policy.NewGuard(pol, auditLog, sessionID),
		screener:  screen.New(screenCfg),
		machine:   intervention.New(),
		backend:   be,
		auditLog:  auditLog,
		logger:    logger,
		sessionID: sessionID,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()

	logger.Info("server configured",
		zap.String("session_id", sessionID),
		zap.String("policy", pol.Name))

	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close resets the intervention state and flushes the audit log.
func (s *Server) Close() error {
	s.machine.Reset()
	return s.auditLog.Close()
}

// SessionID returns the server's session identifier.
func (s *Server) SessionID() string { return s.sessionID }

// AuditLog exposes the audit log for shutdown summaries.
func (s *Server) AuditLog() *audit.Log { return s.auditLog }

// registerTools adds every puppetgate tool to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "prompt",
		Description: "Send a prompt to an AI provider through browser automation. The response is screened for prompt injection and hidden content before it is returned.",
	}, s.handlePrompt)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "screenshot",
		Description: "Take a screenshot of a web page. Only domains permitted by the security policy can be captured.",
	}, s.handleScreenshot)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "navigate",
		Description: "Navigate the automation browser to a URL, subject to the security policy.",
	}, s.handleNavigate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "browser_status",
		Description: "Report the automation session status: active policy, intervention state, and session identifier.",
	}, s.handleBrowserStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_providers",
		Description: "List the AI providers reachable through browser automation.",
	}, s.handleListProviders)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "provider_capabilities",
		Description: "Get the declared capabilities of a provider (conversation, vision, file upload, web search).",
	}, s.handleProviderCapabilities)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "detect_browsers",
		Description: "Detect installed browsers usable for automation.",
	}, s.handleDetectBrowsers)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "check_permission",
		Description: "Check whether an operation would be allowed by the security policy, without executing anything.",
	}, s.handleCheckPermission)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "intervention_status",
		Description: "Check whether human intervention is needed (captcha, 2FA, login) and the current automation state.",
	}, s.handleInterventionStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "intervention_complete",
		Description: "Signal that a human has finished an intervention. Success moves the session towards resuming; failure keeps it paused.",
	}, s.handleInterventionComplete)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "pause",
		Description: "Pause automation so a human can interact with the browser.",
	}, s.handlePause)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "resume",
		Description: "Resume automation after a completed intervention.",
	}, s.handleResume)
}
