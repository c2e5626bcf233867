package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "puppetgate",
	Short: "Policy-enforced gateway for web AI automation",
	Long: "Exposes browser-automated AI providers as MCP tools behind a permission\n" +
		"policy, response screening, and a hash-chained audit log. Sensitive flows\n" +
		"(captcha, 2FA, login) pause for a human instead of being automated around.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
