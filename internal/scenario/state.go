package scenario

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of one scenario run.
type State int

const (
	NotStarted State = iota
	Running
	Passed
	Failed
)

var stateNames = [...]string{"NotStarted", "Running", "Passed", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether s is Passed or Failed.
func (s State) Terminal() bool { return s == Passed || s == Failed }

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// ErrIllegalTransition is returned for a transition the lifecycle forbids.
var ErrIllegalTransition = errors.New("scenario: illegal state transition")

// Lifecycle guards the NotStarted -> Running -> Passed|Failed transitions.
// The zero value is NotStarted.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start moves NotStarted to Running.
func (l *Lifecycle) Start() error { return l.move(NotStarted, Running) }

// Pass moves Running to Passed.
func (l *Lifecycle) Pass() error { return l.move(Running, Passed) }

// Fail moves Running to Failed.
func (l *Lifecycle) Fail() error { return l.move(Running, Failed) }

func (l *Lifecycle) move(from, to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, l.state, to)
	}
	l.state = to
	return nil
}
