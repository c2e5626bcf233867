package policy

import (
	"fmt"
	"strings"
)

// Operation is a named category of automation action subject to policy.
// The set is closed: anything ParseOperation does not recognize is rejected
// before evaluation, so unlisted operations hit the default-deny boundary
// rather than passing through as opaque strings.
type Operation string

const (
	OpNavigate             Operation = "navigate"
	OpSendPrompt           Operation = "send_prompt"
	OpReadResponse         Operation = "read_response"
	OpScreenshot           Operation = "screenshot"
	OpClick                Operation = "click"
	OpTypeText             Operation = "type_text"
	OpNewConversation      Operation = "new_conversation"
	OpContinueConversation Operation = "continue_conversation"
	OpDeleteAccount        Operation = "delete_account"
	OpChangePassword       Operation = "change_password"
	OpFileSystemAccess     Operation = "filesystem_access"
)

// AllOperations lists every known operation, in declaration order.
var AllOperations = []Operation{
	OpNavigate,
	OpSendPrompt,
	OpReadResponse,
	OpScreenshot,
	OpClick,
	OpTypeText,
	OpNewConversation,
	OpContinueConversation,
	OpDeleteAccount,
	OpChangePassword,
	OpFileSystemAccess,
}

// defaultRisk maps each operation to its baseline risk estimate (0-10).
// Destructive operations sit at the top of the scale regardless of what a
// caller claims.
var defaultRisk = map[Operation]int{
	OpNavigate:             2,
	OpSendPrompt:           3,
	OpReadResponse:         1,
	OpScreenshot:           2,
	OpClick:                3,
	OpTypeText:             4,
	OpNewConversation:      2,
	OpContinueConversation: 2,
	OpDeleteAccount:        10,
	OpChangePassword:       9,
	OpFileSystemAccess:     8,
}

// DefaultRisk returns the baseline risk estimate for op.
// Unknown operations score maximum risk.
func DefaultRisk(op Operation) int {
	if r, ok := defaultRisk[op]; ok {
		return r
	}
	return MaxRiskScore
}

// MaxRiskScore is the top of the risk scale.
const MaxRiskScore = 10

// ParseOperation maps a caller-supplied name to an Operation.
// Accepts snake_case and CamelCase forms ("DeleteAccount", "delete_account").
func ParseOperation(name string) (Operation, error) {
	normalized := normalizeOpName(name)
	for _, op := range AllOperations {
		if normalizeOpName(string(op)) == normalized {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", name)
}

func normalizeOpName(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
