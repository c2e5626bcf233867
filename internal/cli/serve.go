package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/embeddenator/puppetgate/internal/mcp"
)

var (
	servePolicy   string
	serveAuditLog string
	servePatterns string
	serveVerbose  bool
)

// serveEnv carries PUPPETGATE_* environment defaults. Flags win over env.
type serveEnv struct {
	Policy   string `envconfig:"POLICY"`
	AuditLog string `envconfig:"AUDIT_LOG"`
	Patterns string `envconfig:"PATTERNS"`
	Verbose  bool   `envconfig:"VERBOSE"`
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePolicy, "policy", "", "Policy preset (secure|readonly|permissive) or path to policy YAML")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit log JSONL file (empty keeps records in memory)")
	serveCmd.Flags().StringVar(&servePatterns, "patterns", "", "Path to screening patterns YAML")
	serveCmd.Flags().BoolVar(&serveVerbose, "verbose", false, "Enable debug logging")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: "Runs puppetgate as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes policy-enforced tools: prompt, screenshot, navigate, check_permission,\n" +
		"intervention handling, and provider discovery.\n\n" +
		"All diagnostics go to stderr; stdout carries the protocol.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	var env serveEnv
	if err := envconfig.Process("puppetgate", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if !cmd.Flags().Changed("policy") && env.Policy != "" {
		servePolicy = env.Policy
	}
	if !cmd.Flags().Changed("audit-log") && env.AuditLog != "" {
		serveAuditLog = env.AuditLog
	}
	if !cmd.Flags().Changed("patterns") && env.Patterns != "" {
		servePatterns = env.Patterns
	}
	if !cmd.Flags().Changed("verbose") && env.Verbose {
		serveVerbose = true
	}

	logger, err := newLogger(serveVerbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	srv, err := mcp.New(mcp.Config{
		Policy:       servePolicy,
		AuditLogPath: serveAuditLog,
		PatternsPath: servePatterns,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "puppetgate MCP server running on stdio (session %s)\n", srv.SessionID())
	if serveAuditLog != "" {
		fmt.Fprintf(os.Stderr, "Audit log: %s\n", serveAuditLog)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}

// newLogger builds a stderr logger. Stdout belongs to the transport.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
