package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/embeddenator/puppetgate/internal/audit"
	"github.com/embeddenator/puppetgate/internal/policy"
)

// Run evaluates all cases in a scenario against the given policy. Cases are
// independent: each one is a single stateless permission check.
func Run(s *Scenario, pol *policy.Policy) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	guard := policy.NewGuard(pol, audit.NewLog(), "scenario")

	for i, c := range s.Cases {
		cr := CaseResult{
			Index:     i + 1,
			Operation: c.Operation,
			Domain:    c.Domain,
			Expected:  strings.ToLower(c.Expect),
		}

		op, err := policy.ParseOperation(c.Operation)
		if err != nil {
			cr.Actual = "error"
			cr.Reason = err.Error()
			result.Failed++
			result.Cases = append(result.Cases, cr)
			continue
		}

		ctx := policy.DefaultContext()
		ctx.Domain = c.Domain
		ctx.Scheme = c.Scheme
		if c.Risk != nil {
			ctx.EstimatedRisk = *c.Risk
		}

		d := guard.Evaluate(op, ctx)
		cr.Actual = string(d.Verdict)
		cr.Rule = string(d.Rule)
		cr.Reason = d.Reason

		if cr.Actual == cr.Expected && (c.Rule == "" || c.Rule == cr.Rule) {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}

		result.Cases = append(result.Cases, cr)
	}

	return result
}

// LoadAndRun loads a scenario YAML file and evaluates it. policyOverride,
// when non-empty, replaces the scenario's own policy.
func LoadAndRun(path, policyOverride string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	name := s.Policy
	if policyOverride != "" {
		name = policyOverride
	}
	if name == "" {
		name = "secure"
	}
	pol, err := policy.Load(name)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	result := Run(&s, pol)
	result.File = path

	return result, nil
}
