package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/embeddenator/puppetgate/internal/audit"
	"github.com/embeddenator/puppetgate/internal/policy"
	"github.com/embeddenator/puppetgate/internal/scenario"
)

var (
	checkPolicy   string
	checkDomain   string
	checkScheme   string
	checkRisk     int
	checkFormat   string
	checkScenario string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkPolicy, "policy", "secure", "Policy preset or path to policy YAML")
	checkCmd.Flags().StringVar(&checkDomain, "domain", "", "Target domain for the check")
	checkCmd.Flags().StringVar(&checkScheme, "scheme", "", "URL scheme for the check")
	checkCmd.Flags().IntVar(&checkRisk, "risk", -1, "Risk estimate 0-10 (-1 uses the operation default)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files")
}

var checkCmd = &cobra.Command{
	Use:   "check [operation]",
	Short: "Evaluate operations against a policy without a server",
	Long: "Runs permission checks offline and prints the decisions.\n\n" +
		"With an operation argument, checks that single operation.\n" +
		"With --scenario, runs every case in the matching YAML files.\n\n" +
		"Exit code 0 if allowed (all cases pass), 1 otherwise.\n" +
		"Use to validate a policy file before pointing the server at it.",
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	if checkScenario != "" {
		return runScenarios(cmd)
	}
	if len(args) != 1 {
		return fmt.Errorf("an operation argument or --scenario is required")
	}

	d, err := evaluate(checkPolicy, args[0], checkDomain, checkScheme, checkRisk)
	if err != nil {
		return err
	}

	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		fmt.Printf("%s %s: %s (rule=%s risk=%d)\n", d.Verdict, d.Operation, d.Reason, d.Rule, d.Risk)
	}

	if !d.IsAllowed() {
		os.Exit(1)
	}
	return nil
}

func runScenarios(cmd *cobra.Command) error {
	matches, err := filepath.Glob(checkScenario)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no scenario files match pattern: %s", checkScenario)
	}

	policyOverride := ""
	if cmd.Flags().Changed("policy") {
		policyOverride = checkPolicy
	}

	var results []*scenario.RunResult
	for _, path := range matches {
		r, err := scenario.LoadAndRun(path, policyOverride)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			os.Exit(1)
		}
	}
	return nil
}

// evaluate runs one offline permission check against a named policy.
func evaluate(policyName, operation, domain, scheme string, risk int) (policy.Decision, error) {
	op, err := policy.ParseOperation(operation)
	if err != nil {
		return policy.Decision{}, err
	}
	pol, err := policy.Load(policyName)
	if err != nil {
		return policy.Decision{}, err
	}

	ctx := policy.DefaultContext()
	ctx.Domain = domain
	ctx.Scheme = scheme
	if risk >= 0 {
		ctx.EstimatedRisk = risk
	}

	guard := policy.NewGuard(pol, audit.NewLog(), "cli-check")
	return guard.Evaluate(op, ctx), nil
}
