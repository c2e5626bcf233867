// Package backend defines the interface to the external browser-automation
// engine. The engine is a collaborator, not part of this core: puppetgate
// calls into it through Backend and treats everything it returns as
// untrusted content.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/embeddenator/puppetgate/internal/policy"
)

// ErrUnavailable is returned when no automation engine is attached.
var ErrUnavailable = errors.New("backend: automation engine not available")

// Invocation describes one operation requested of the engine.
type Invocation struct {
	Operation policy.Operation
	Provider  string
	Args      map[string]any
}

// Output is what an invocation produced: free-form text, binary data, or
// both. Text output must be screened before it reaches the caller.
type Output struct {
	Text string
	Data []byte
	MIME string
}

// PauseSignal is returned by an engine when it hits a blocking condition a
// human must resolve (captcha, 2FA, login wall). The dispatcher reacts by
// pausing the intervention machine; the signal itself is not a failure.
type PauseSignal struct {
	Reason string
}

func (p *PauseSignal) Error() string {
	return fmt.Sprintf("backend: human intervention required: %s", p.Reason)
}

// Backend is the automation engine surface this core consumes.
//
// Invoke requires a policy.Grant: there is no way to reach the engine
// without a prior allowed decision from the Permission Guard.
type Backend interface {
	Invoke(ctx context.Context, grant policy.Grant, inv Invocation) (*Output, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	Capabilities(ctx context.Context, name string) (*Capabilities, error)
	DetectBrowsers(ctx context.Context) ([]Browser, error)
}

// Browser describes an installed browser usable for automation.
type Browser struct {
	Name       string `json:"name"`
	Version    string `json:"version,omitempty"`
	Executable string `json:"executable,omitempty"`
	Profile    string `json:"profile,omitempty"`
}
