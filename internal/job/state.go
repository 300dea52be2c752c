package job

import "strings"

// State is the remote job state as reported by the service.
type State string

const (
	StateUnknown   State = ""
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
	StateDeleted   State = "deleted"
)

// ParseState normalizes a state string. Unrecognized values are returned
// lower-cased so they are logged faithfully and treated as non-terminal.
func ParseState(s string) State {
	return State(strings.ToLower(strings.TrimSpace(s)))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled, StateDeleted:
		return true
	}
	return false
}

func (s State) String() string {
	if s == StateUnknown {
		return "unknown"
	}
	return string(s)
}
