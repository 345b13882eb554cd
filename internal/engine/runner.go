// Package engine launches processes through a runtime, captures their output
// and coordinates how each run ends: natural exit, timeout, cancellation or
// failure.
package engine

import (
	"context"
	"errors"

	"github.com/Paintersrp/runcap/internal/procspec"
)

// Runner holds default options applied to every invocation.
type Runner struct {
	defaults Options
}

// NewRunner constructs a runner. Per-call options passed to Run, Start or
// Stream are applied on top of these defaults.
func NewRunner(opts ...Option) *Runner {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Runner{defaults: o}
}

func (r *Runner) resolve(opts []Option) Options {
	o := r.defaults
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o.withDefaults()
}

// Run executes spec. With WaitForExit (the default) it blocks until the run is
// terminal and returns the captured lines; any post-spawn failure is returned
// together with the partial result. Without WaitForExit it returns a detached
// result as soon as the process is spawned; the process is still drained,
// reaped and released in the background.
func (r *Runner) Run(ctx context.Context, spec *procspec.Spec, opts ...Option) (*Result, error) {
	o := r.resolve(opts)
	exec, err := r.start(ctx, spec, o, false)
	if err != nil {
		return nil, err
	}
	if !o.WaitForExit {
		return &Result{
			RunID:    exec.id,
			Command:  exec.command,
			Pid:      exec.inst.Pid(),
			ExitCode: -1,
			State:    StateRunning,
			Detached: true,
		}, nil
	}
	return exec.Wait()
}

// Start spawns spec and returns the running execution.
func (r *Runner) Start(ctx context.Context, spec *procspec.Spec, opts ...Option) (*Execution, error) {
	return r.start(ctx, spec, r.resolve(opts), false)
}

// Stream spawns spec and returns an execution whose Lines yield output as it
// arrives.
func (r *Runner) Stream(ctx context.Context, spec *procspec.Spec, opts ...Option) (*Execution, error) {
	return r.start(ctx, spec, r.resolve(opts), true)
}

// RunShell runs line through the primary platform shell.
func (r *Runner) RunShell(ctx context.Context, line string, opts ...Option) (*Result, error) {
	spec, err := procspec.Shell(line)
	if err != nil {
		return nil, &StartError{Command: line, Err: err}
	}
	return r.Run(ctx, spec, opts...)
}

// RunAltShell runs line through the alternate platform shell.
func (r *Runner) RunAltShell(ctx context.Context, line string, opts ...Option) (*Result, error) {
	spec, err := procspec.AltShell(line)
	if err != nil {
		return nil, &StartError{Command: line, Err: err}
	}
	return r.Run(ctx, spec, opts...)
}

func (r *Runner) start(ctx context.Context, spec *procspec.Spec, o Options, streaming bool) (*Execution, error) {
	if spec == nil {
		return nil, &StartError{Err: errors.New("nil process spec")}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, &StartError{Command: spec.String(), Err: err}
	}
	// A detached run outlives the caller's context. Only the timeout ends it
	// early.
	if !o.WaitForExit && !streaming {
		ctx = context.WithoutCancel(ctx)
	}
	exec := newExecution(spec, o, streaming)
	if err := exec.spawn(ctx); err != nil {
		return nil, err
	}
	go exec.supervise(ctx)
	return exec, nil
}
