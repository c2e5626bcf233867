package policy

import (
	"fmt"
	"strings"

	"github.com/embeddenator/puppetgate/internal/audit"
)

// Verdict is the outcome of a permission check.
type Verdict string

const (
	Allowed Verdict = "allowed"
	Denied  Verdict = "denied"
)

// Rule identifies which policy rule produced a decision.
type Rule string

const (
	RuleExplicitDeny   Rule = "explicit-deny"
	RuleExplicitAllow  Rule = "explicit-allow"
	RuleDefaultDeny    Rule = "default-deny"
	RuleDomainMismatch Rule = "domain-mismatch"
	RuleSchemeMismatch Rule = "scheme-mismatch"
	RuleRiskExceeded   Rule = "risk-exceeded"
)

// Context carries the optional request details a decision may depend on.
// EstimatedRisk below zero means "use the operation's default estimate".
type Context struct {
	Domain        string
	Scheme        string
	EstimatedRisk int
}

// DefaultContext returns a Context with no domain or scheme and the default
// risk estimate.
func DefaultContext() Context {
	return Context{EstimatedRisk: -1}
}

// Decision is the result of one Guard evaluation. It is a pure function of
// (operation, policy, context): no decision depends on prior decisions.
type Decision struct {
	Verdict   Verdict   `json:"verdict"`
	Operation Operation `json:"operation"`
	Rule      Rule      `json:"rule"`
	Risk      int       `json:"risk"`
	Reason    string    `json:"reason"`
}

// Allowed reports whether the decision permits the operation.
func (d Decision) IsAllowed() bool { return d.Verdict == Allowed }

// Grant is proof that an operation passed the Guard. Its only constructor is
// Guard.Require, so code paths that perform side effects can demand a Grant
// argument instead of trusting a boolean.
type Grant struct {
	decision Decision
}

// Decision returns the decision behind the grant.
func (g Grant) Decision() Decision { return g.decision }

// DeniedError is returned by Guard.Require when the policy refuses an
// operation. It is a normal, expected outcome, not a protocol fault.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s (%s): %s",
		e.Decision.Operation, e.Decision.Rule, e.Decision.Reason)
}

// Guard evaluates requested operations against an immutable Policy and
// records every evaluation in the audit log, allowed or not.
type Guard struct {
	policy    *Policy
	log       *audit.Log
	sessionID string
}

// NewGuard creates a Guard over the given policy. Every evaluation is
// appended to log before Evaluate returns.
func NewGuard(p *Policy, log *audit.Log, sessionID string) *Guard {
	return &Guard{policy: p, log: log, sessionID: sessionID}
}

// Policy returns the guard's policy.
func (g *Guard) Policy() *Policy { return g.policy }

// Evaluate classifies op under the guard's policy, in strict precedence
// order: explicit deny, default deny, domain mismatch, scheme mismatch,
// risk ceiling, explicit allow. Exactly one audit record is written per
// call, synchronously, regardless of verdict.
func (g *Guard) Evaluate(op Operation, ctx Context) Decision {
	d := g.decide(op, ctx)
	g.record(d, ctx)
	return d
}

// Require evaluates op and returns a Grant when allowed, or a *DeniedError
// carrying the decision when not.
func (g *Guard) Require(op Operation, ctx Context) (Grant, error) {
	d := g.Evaluate(op, ctx)
	if !d.IsAllowed() {
		return Grant{}, &DeniedError{Decision: d}
	}
	return Grant{decision: d}, nil
}

func (g *Guard) decide(op Operation, ctx Context) Decision {
	risk := ctx.EstimatedRisk
	if risk < 0 {
		risk = DefaultRisk(op)
	}
	if risk > MaxRiskScore {
		risk = MaxRiskScore
	}

	switch {
	case g.policy.Denies(op):
		// Destructive operations score maximum regardless of estimate.
		return Decision{
			Verdict:   Denied,
			Operation: op,
			Rule:      RuleExplicitDeny,
			Risk:      MaxRiskScore,
			Reason:    fmt.Sprintf("operation %s is explicitly denied by the %s policy", op, g.policy.Name),
		}
	case !g.policy.Allows(op):
		return Decision{
			Verdict:   Denied,
			Operation: op,
			Rule:      RuleDefaultDeny,
			Risk:      risk,
			Reason:    fmt.Sprintf("operation %s is not in the %s policy's allow list", op, g.policy.Name),
		}
	case ctx.Domain != "" && !g.policy.DomainAllowed(ctx.Domain):
		return Decision{
			Verdict:   Denied,
			Operation: op,
			Rule:      RuleDomainMismatch,
			Risk:      risk,
			Reason:    fmt.Sprintf("domain %s does not match the %s policy's domain allowlist", ctx.Domain, g.policy.Name),
		}
	case g.policy.HTTPSOnly() && ctx.Scheme != "" && !strings.EqualFold(ctx.Scheme, "https"):
		return Decision{
			Verdict:   Denied,
			Operation: op,
			Rule:      RuleSchemeMismatch,
			Risk:      risk,
			Reason:    fmt.Sprintf("scheme %s is not https and the %s policy requires HTTPS-only URLs", ctx.Scheme, g.policy.Name),
		}
	case risk > g.policy.MaxRisk():
		return Decision{
			Verdict:   Denied,
			Operation: op,
			Rule:      RuleRiskExceeded,
			Risk:      risk,
			Reason:    fmt.Sprintf("risk %d exceeds the %s policy's ceiling of %d", risk, g.policy.Name, g.policy.MaxRisk()),
		}
	default:
		return Decision{
			Verdict:   Allowed,
			Operation: op,
			Rule:      RuleExplicitAllow,
			Risk:      risk,
			Reason:    fmt.Sprintf("operation %s allowed by the %s policy", op, g.policy.Name),
		}
	}
}

func (g *Guard) record(d Decision, ctx Context) {
	if g.log == nil {
		return
	}
	// An audit write failure must not flip a verdict.
	_ = g.log.Record(audit.Record{
		SessionID: g.sessionID,
		Operation: string(d.Operation),
		Verdict:   string(d.Verdict),
		Rule:      string(d.Rule),
		Risk:      d.Risk,
		Reason:    d.Reason,
		Domain:    ctx.Domain,
	})
}
