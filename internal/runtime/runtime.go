package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Paintersrp/runcap/internal/procspec"
)

// Instance is a single spawned process. It is owned exclusively by the
// invocation that started it.
type Instance interface {
	// Pid returns the operating system identifier of the direct child, or 0
	// when the backend does not expose one.
	Pid() int

	// Stdout and Stderr return the redirected streams. A nil reader means the
	// stream was not redirected. Readers report io.EOF once every writer,
	// including descendants that inherited the pipe, has closed it.
	Stdout() io.Reader
	Stderr() io.Reader

	// Wait blocks until the process exits and returns its exit code. A
	// non-nil error means the exit could not be observed at all; a non-zero
	// exit code is not an error. Wait must be called at most once.
	Wait() (int, error)

	// Kill terminates the process and all of its descendants. Killing a
	// process that already exited is not an error.
	Kill() error

	// Release closes every handle held by the instance. It is safe to call
	// more than once.
	Release() error
}

// Runtime describes a backend capable of launching a process spec.
type Runtime interface {
	// Start spawns the process and returns once the operating system reports
	// a successful spawn. The context bounds the spawn itself only; the
	// caller owns the lifetime of the returned instance.
	Start(ctx context.Context, spec *procspec.Spec) (Instance, error)
}

// Registry maps runtime identifiers to their concrete implementations.
type Registry map[string]Runtime

// Clone returns a shallow copy of the registry, allowing callers to avoid
// accidental mutation of shared maps.
func (r Registry) Clone() Registry {
	dup := make(Registry, len(r))
	for k, v := range r {
		dup[k] = v
	}
	return dup
}

// Lookup returns the runtime registered under name.
func (r Registry) Lookup(name string) (Runtime, error) {
	if rt, ok := r[name]; ok && rt != nil {
		return rt, nil
	}
	return nil, fmt.Errorf("unknown runtime %q (available: %s)", name, strings.Join(r.Names(), ", "))
}

// Terminator is implemented by instances that can ask their process tree to
// exit before it is killed.
type Terminator interface {
	Terminate() error
}

// ExitNoter is implemented by instances that can explain an exit beyond the
// bare exit code, for example an out-of-memory kill.
type ExitNoter interface {
	ExitNote() string
}
