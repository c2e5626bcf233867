// Package intervention tracks the human-in-the-loop pause/resume lifecycle
// for one automation session. The machine is deliberately conservative:
// automation never resumes on its own, and a stuck Paused state is a
// correctness signal, not an error to paper over.
package intervention

import (
	"errors"
	"sync"
	"time"
)

// State is the intervention lifecycle position.
type State string

const (
	// Idle means automation is running normally.
	Idle State = "idle"
	// Paused means automation is stopped awaiting a human (captcha, 2FA,
	// login).
	Paused State = "paused"
	// CompletionPending means a human signaled success but resume has not
	// been acknowledged yet.
	CompletionPending State = "completion_pending"
)

// Transition precondition failures. These are no-ops on state: the machine
// is left exactly as it was.
var (
	ErrAlreadyPaused = errors.New("intervention: already paused")
	ErrNotPaused     = errors.New("intervention: not paused")
	ErrNotReady      = errors.New("intervention: no completed intervention to resume from")
)

// Snapshot is a read-only view of the machine at one moment.
type Snapshot struct {
	State  State     `json:"state"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since,omitempty"`
	Notes  []string  `json:"notes,omitempty"`
}

// Machine owns the intervention state for a single session. All transitions
// are serialized by an internal lock, so precondition checks stay valid
// under concurrent dispatch. Status never blocks on in-flight automation.
type Machine struct {
	mu     sync.Mutex
	state  State
	reason string
	since  time.Time
	notes  []string
	now    func() time.Time
}

// New returns a Machine in the Idle state.
func New() *Machine {
	return &Machine{state: Idle, now: time.Now}
}

// RequestPause transitions Idle -> Paused with the given reason.
// Returns ErrAlreadyPaused unless the machine is Idle.
func (m *Machine) RequestPause(reason string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return m.snapshotLocked(), ErrAlreadyPaused
	}
	m.state = Paused
	m.reason = reason
	m.since = m.now().UTC()
	m.notes = nil
	return m.snapshotLocked(), nil
}

// Status returns the current state without mutating anything.
func (m *Machine) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Complete records the outcome of a human intervention. On success the
// machine moves Paused -> CompletionPending; on failure it stays Paused
// with the notes recorded, because a failed intervention must not
// auto-resume. Returns ErrNotPaused unless the machine is Paused.
func (m *Machine) Complete(success bool, notes string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Paused {
		return m.snapshotLocked(), ErrNotPaused
	}
	if notes != "" {
		m.notes = append(m.notes, notes)
	}
	if success {
		m.state = CompletionPending
	}
	return m.snapshotLocked(), nil
}

// Resume acknowledges a completed intervention: CompletionPending -> Idle.
// Returns ErrNotReady from any other state; every resume requires a prior
// Complete(success=true).
func (m *Machine) Resume() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != CompletionPending {
		return m.snapshotLocked(), ErrNotReady
	}
	m.reset()
	return m.snapshotLocked(), nil
}

// Reset unconditionally returns the machine to Idle. Used when a session
// ends or an automation call is cancelled without an explicit pause signal.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *Machine) reset() {
	m.state = Idle
	m.reason = ""
	m.since = time.Time{}
	m.notes = nil
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:  m.state,
		Reason: m.reason,
		Since:  m.since,
	}
	if len(m.notes) > 0 {
		s.Notes = append([]string(nil), m.notes...)
	}
	return s
}
