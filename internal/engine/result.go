package engine

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle position of one invocation. Every invocation leaves
// StateRunning exactly once.
type State int32

const (
	StateRunning State = iota
	StateCompleted
	StateTimedOut
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s != StateRunning
}

// Result describes a finished (or detached) invocation.
type Result struct {
	RunID   string
	Command string
	Pid     int
	// Lines holds every captured line in arrival order. Stderr lines carry
	// the "[stderr] " prefix.
	Lines    []string
	ExitCode int
	State    State
	Duration time.Duration
	// Detached is set when the caller did not wait for the exit.
	Detached bool
	// Note carries a runtime specific explanation of the exit, if any.
	Note string
}

// Success reports whether the process ran to completion with exit code 0.
func (r *Result) Success() bool {
	return r != nil && r.State == StateCompleted && r.ExitCode == 0
}

type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State {
	return State(b.v.Load())
}

// transition moves Running to the target state. It reports false when some
// other path already claimed the terminal state.
func (b *stateBox) transition(to State) bool {
	return b.v.CompareAndSwap(int32(StateRunning), int32(to))
}
