package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/embeddenator/puppetgate/internal/audit"
)

var auditFormat string

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditVerifyCmd.Flags().StringVarP(&auditFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect audit logs",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify the hash chain of an audit log",
	Long: "Walks an audit log JSONL file and checks every record's prev_hash\n" +
		"against the hash of the preceding line.\n\n" +
		"Exit code 0 if the chain is intact, 1 if tampered or broken.",
	Args: cobra.ExactArgs(1),
	RunE: runAuditVerify,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])

	switch auditFormat {
	case "json":
		out, jerr := json.MarshalIndent(result, "", "  ")
		if jerr != nil {
			return jerr
		}
		fmt.Println(string(out))
	default:
		if result.Valid {
			fmt.Printf("OK: %d record(s), chain intact\n", result.Lines)
		} else {
			fmt.Printf("TAMPERED at line %d: %s\n", result.ErrorLine, result.Error)
		}
	}

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}
