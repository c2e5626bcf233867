package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/embeddenator/puppetgate/internal/policy"
)

func intp(v int) *int { return &v }

func TestRunAllCasesPass(t *testing.T) {
	s := &Scenario{
		Name: "secure baseline",
		Cases: []Case{
			{Operation: "navigate", Domain: "claude.ai", Scheme: "https", Expect: "allowed"},
			{Operation: "delete_account", Expect: "denied", Rule: "explicit-deny"},
			{Operation: "navigate", Domain: "evil.example", Scheme: "https", Expect: "denied", Rule: "domain-mismatch"},
			{Operation: "navigate", Domain: "claude.ai", Scheme: "https", Risk: intp(9), Expect: "denied", Rule: "risk-exceeded"},
		},
	}

	r := Run(s, policy.Secure())
	if r.Failed != 0 {
		t.Fatalf("failed cases: %+v", r.Cases)
	}
	if r.Passed != 4 || r.Total != 4 {
		t.Fatalf("passed=%d total=%d", r.Passed, r.Total)
	}
}

func TestRunWrongExpectationFails(t *testing.T) {
	s := &Scenario{
		Name: "wrong expectation",
		Cases: []Case{
			{Operation: "delete_account", Expect: "allowed"},
		},
	}

	r := Run(s, policy.Secure())
	if r.Failed != 1 {
		t.Fatalf("failed = %d, want 1", r.Failed)
	}
	if r.Cases[0].Actual != "denied" {
		t.Errorf("actual = %s", r.Cases[0].Actual)
	}
}

func TestRunWrongRuleFails(t *testing.T) {
	s := &Scenario{
		Name: "verdict right, rule wrong",
		Cases: []Case{
			{Operation: "delete_account", Expect: "denied", Rule: "domain-mismatch"},
		},
	}

	r := Run(s, policy.Secure())
	if r.Failed != 1 {
		t.Fatal("a mismatched rule must fail the case")
	}
}

func TestRunUnknownOperationFails(t *testing.T) {
	s := &Scenario{
		Name: "bad operation",
		Cases: []Case{
			{Operation: "launch_missiles", Expect: "denied"},
		},
	}

	r := Run(s, policy.Secure())
	if r.Failed != 1 || r.Cases[0].Actual != "error" {
		t.Fatalf("cases = %+v", r.Cases)
	}
}

func TestLoadAndRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.yaml")
	content := `name: readonly baseline
policy: readonly
cases:
  - operation: navigate
    domain: claude.ai
    scheme: https
    expect: allowed
  - operation: send_prompt
    expect: denied
    rule: explicit-deny
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadAndRun(path, "")
	if err != nil {
		t.Fatalf("LoadAndRun: %v", err)
	}
	if r.Failed != 0 {
		t.Fatalf("failed cases: %+v", r.Cases)
	}
	if r.File != path || r.Name != "readonly baseline" {
		t.Errorf("result header = %+v", r)
	}
}

func TestLoadAndRunPolicyOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	content := `name: override
policy: readonly
cases:
  - operation: send_prompt
    domain: claude.ai
    scheme: https
    expect: allowed
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// Under readonly this case fails; the secure override allows it.
	r, err := LoadAndRun(path, "secure")
	if err != nil {
		t.Fatalf("LoadAndRun: %v", err)
	}
	if r.Failed != 0 {
		t.Fatalf("failed cases: %+v", r.Cases)
	}
}

func TestFormatTextReportsFailures(t *testing.T) {
	s := &Scenario{
		Name: "mixed",
		Cases: []Case{
			{Operation: "navigate", Domain: "claude.ai", Scheme: "https", Expect: "allowed"},
			{Operation: "delete_account", Expect: "allowed"},
		},
	}
	r := Run(s, policy.Secure())

	out := FormatText([]*RunResult{r})
	if !strings.Contains(out, "FAIL mixed: 1/2 cases") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.Contains(out, "case 2 (delete_account): expected allowed, got denied") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.Contains(out, "1/2 cases passed across 1 file(s)") {
		t.Errorf("output:\n%s", out)
	}
}
