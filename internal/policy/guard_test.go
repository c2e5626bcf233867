package policy

import (
	"errors"
	"testing"

	"github.com/embeddenator/puppetgate/internal/audit"
)

func secureGuard(log *audit.Log) *Guard {
	return NewGuard(Secure(), log, "s-test")
}

func TestDenySetWinsRegardlessOfContext(t *testing.T) {
	g := secureGuard(audit.NewLog())

	contexts := []Context{
		DefaultContext(),
		{Domain: "claude.ai", Scheme: "https", EstimatedRisk: 0},
		{Domain: "evil.example", Scheme: "http", EstimatedRisk: 10},
	}
	for _, op := range []Operation{OpDeleteAccount, OpChangePassword, OpFileSystemAccess} {
		for _, ctx := range contexts {
			d := g.Evaluate(op, ctx)
			if d.Verdict != Denied {
				t.Fatalf("%s with ctx %+v: expected denied, got %s", op, ctx, d.Verdict)
			}
			if d.Rule != RuleExplicitDeny {
				t.Fatalf("%s: expected explicit-deny, got %s", op, d.Rule)
			}
			if d.Risk != MaxRiskScore {
				t.Fatalf("%s: expected risk %d, got %d", op, MaxRiskScore, d.Risk)
			}
		}
	}
}

func TestUnlistedOperationsFailClosed(t *testing.T) {
	// A policy where SendPrompt is absent from both sets.
	p := newPolicy("partial", []Operation{OpNavigate}, nil, []string{"*"}, false, MaxRiskScore)
	g := NewGuard(p, audit.NewLog(), "s-test")

	d := g.Evaluate(OpSendPrompt, DefaultContext())
	if d.Verdict != Denied || d.Rule != RuleDefaultDeny {
		t.Fatalf("expected denied/default-deny, got %s/%s", d.Verdict, d.Rule)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	g := secureGuard(audit.NewLog())
	ctx := Context{Domain: "claude.ai", Scheme: "https", EstimatedRisk: 3}

	first := g.Evaluate(OpNavigate, ctx)
	for i := 0; i < 10; i++ {
		if d := g.Evaluate(OpNavigate, ctx); d != first {
			t.Fatalf("evaluation %d differed: %+v vs %+v", i, d, first)
		}
	}
}

func TestEveryEvaluationIsAudited(t *testing.T) {
	log := audit.NewLog()
	g := secureGuard(log)

	g.Evaluate(OpNavigate, Context{Domain: "claude.ai", Scheme: "https", EstimatedRisk: -1})
	g.Evaluate(OpDeleteAccount, DefaultContext())
	g.Evaluate(OpSendPrompt, DefaultContext())

	if log.Size() != 3 {
		t.Fatalf("expected 3 audit records, got %d", log.Size())
	}

	recs := log.Records()
	if recs[0].Verdict != string(Allowed) {
		t.Fatalf("expected first record allowed, got %s", recs[0].Verdict)
	}
	if recs[1].Verdict != string(Denied) || recs[1].Rule != string(RuleExplicitDeny) {
		t.Fatalf("expected second record denied/explicit-deny, got %s/%s", recs[1].Verdict, recs[1].Rule)
	}
	if recs[0].Domain != "claude.ai" {
		t.Fatalf("expected domain recorded, got %q", recs[0].Domain)
	}
}

func TestSecurePolicyScenarios(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		ctx     Context
		verdict Verdict
		rule    Rule
	}{
		{
			name:    "delete account explicit deny",
			op:      OpDeleteAccount,
			ctx:     DefaultContext(),
			verdict: Denied,
			rule:    RuleExplicitDeny,
		},
		{
			name:    "navigate to allowed domain",
			op:      OpNavigate,
			ctx:     Context{Domain: "claude.ai", Scheme: "https", EstimatedRisk: -1},
			verdict: Allowed,
			rule:    RuleExplicitAllow,
		},
		{
			name:    "navigate to unlisted domain",
			op:      OpNavigate,
			ctx:     Context{Domain: "evil.example", Scheme: "https", EstimatedRisk: -1},
			verdict: Denied,
			rule:    RuleDomainMismatch,
		},
		{
			name:    "navigate over plain http",
			op:      OpNavigate,
			ctx:     Context{Domain: "claude.ai", Scheme: "http", EstimatedRisk: -1},
			verdict: Denied,
			rule:    RuleSchemeMismatch,
		},
		{
			name:    "risk above ceiling",
			op:      OpSendPrompt,
			ctx:     Context{EstimatedRisk: 9},
			verdict: Denied,
			rule:    RuleRiskExceeded,
		},
		{
			name:    "risk at ceiling",
			op:      OpSendPrompt,
			ctx:     Context{EstimatedRisk: 5},
			verdict: Allowed,
			rule:    RuleExplicitAllow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := secureGuard(audit.NewLog())
			d := g.Evaluate(tt.op, tt.ctx)
			if d.Verdict != tt.verdict {
				t.Fatalf("expected %s, got %s (%s)", tt.verdict, d.Verdict, d.Reason)
			}
			if d.Rule != tt.rule {
				t.Fatalf("expected rule %s, got %s", tt.rule, d.Rule)
			}
		})
	}
}

func TestAllowedRiskEqualsEstimate(t *testing.T) {
	g := secureGuard(audit.NewLog())
	d := g.Evaluate(OpNavigate, Context{Domain: "claude.ai", Scheme: "https", EstimatedRisk: 4})
	if d.Verdict != Allowed {
		t.Fatalf("expected allowed, got %s", d.Verdict)
	}
	if d.Risk != 4 {
		t.Fatalf("expected risk 4, got %d", d.Risk)
	}
}

func TestRequireReturnsGrantOnlyWhenAllowed(t *testing.T) {
	g := secureGuard(audit.NewLog())

	grant, err := g.Require(OpNavigate, Context{Domain: "claude.ai", Scheme: "https", EstimatedRisk: -1})
	if err != nil {
		t.Fatalf("expected grant, got %v", err)
	}
	if grant.Decision().Verdict != Allowed {
		t.Fatalf("grant carries non-allowed decision: %+v", grant.Decision())
	}

	_, err = g.Require(OpDeleteAccount, DefaultContext())
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Decision.Rule != RuleExplicitDeny {
		t.Fatalf("expected explicit-deny, got %s", denied.Decision.Rule)
	}
}

func TestPermissivePolicyStillScoresRisk(t *testing.T) {
	g := NewGuard(Permissive(), audit.NewLog(), "s-test")
	d := g.Evaluate(OpDeleteAccount, DefaultContext())
	if d.Verdict != Allowed {
		t.Fatalf("permissive should allow delete_account, got %s (%s)", d.Verdict, d.Reason)
	}
	if d.Risk != MaxRiskScore {
		t.Fatalf("expected default risk %d, got %d", MaxRiskScore, d.Risk)
	}
}

func TestReadOnlyDeniesInput(t *testing.T) {
	g := NewGuard(ReadOnly(), audit.NewLog(), "s-test")
	for _, op := range []Operation{OpSendPrompt, OpClick, OpTypeText} {
		d := g.Evaluate(op, DefaultContext())
		if d.Verdict != Denied || d.Rule != RuleExplicitDeny {
			t.Fatalf("%s: expected denied/explicit-deny, got %s/%s", op, d.Verdict, d.Rule)
		}
	}
}

func TestNilAuditLogDoesNotPanic(t *testing.T) {
	g := NewGuard(Secure(), nil, "s-test")
	d := g.Evaluate(OpNavigate, DefaultContext())
	if d.Verdict != Allowed {
		t.Fatalf("expected allowed, got %s", d.Verdict)
	}
}
