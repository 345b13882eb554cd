// Package api defines the control surface a running capture exposes to
// out-of-process clients.
package api

import (
	stdcontext "context"
	"errors"
	"time"
)

var (
	ErrRunFinished   = errors.New("run already finished")
	ErrInvalidParams = errors.New("invalid request parameters")
)

// RunStatus describes a run while it is in flight or after it ended.
type RunStatus struct {
	RunID       string    `json:"run_id"`
	Command     string    `json:"command"`
	Pid         int       `json:"pid"`
	State       string    `json:"state"`
	Lines       int       `json:"lines"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	Tail        []string  `json:"tail"`
	GeneratedAt time.Time `json:"generated_at"`
}

// CancelResult acknowledges a cancellation request. The run reaches its
// terminal state asynchronously.
type CancelResult struct {
	RunID       string    `json:"run_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Controller exposes the operations a control server serves for one run.
type Controller interface {
	Status(ctx stdcontext.Context, tail int) (*RunStatus, error)
	Cancel(ctx stdcontext.Context) (*CancelResult, error)
}
