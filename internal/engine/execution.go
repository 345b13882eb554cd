package engine

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Paintersrp/runcap/internal/capture"
	"github.com/Paintersrp/runcap/internal/cliutil"
	"github.com/Paintersrp/runcap/internal/logmux"
	"github.com/Paintersrp/runcap/internal/metrics"
	"github.com/Paintersrp/runcap/internal/procspec"
	"github.com/Paintersrp/runcap/internal/runtime"
)

// Execution is one spawned invocation. It owns the runtime instance, the
// capture state and the coordinator goroutine that decides how the run ends.
type Execution struct {
	id      string
	command string
	spec    *procspec.Spec
	opts    Options
	logger  *slog.Logger
	capture *capture.State
	mux     *logmux.Mux

	inst    runtime.Instance
	started time.Time
	state   stateBox

	exitDone  chan struct{}
	exitCode  int
	exitErr   error
	completed chan struct{}

	done   chan struct{}
	result *Result
	err    error

	releaseOnce sync.Once
}

func newExecution(spec *procspec.Spec, opts Options, streaming bool) *Execution {
	id := uuid.NewString()
	command := spec.String()
	logger := opts.Logger.With(
		slog.String("run_id", id),
		slog.String("command", cliutil.RedactSecrets(command)),
		slog.String("runtime", opts.RuntimeName),
	)
	e := &Execution{
		id:        id,
		command:   command,
		spec:      spec,
		opts:      opts,
		logger:    logger,
		capture:   capture.NewState(spec.RedirectStdout, spec.RedirectStderr, logger, opts.LogOutput),
		exitDone:  make(chan struct{}),
		completed: make(chan struct{}),
		done:      make(chan struct{}),
	}
	if streaming {
		e.mux = logmux.New()
	}
	return e
}

// spawn starts the process, its pumps and its reaper. On failure the run is
// terminal in StateFailed and nothing needs releasing.
func (e *Execution) spawn(ctx context.Context) error {
	e.logger.Debug("launching process",
		"launch", e.spec.Launch.String(),
		"exit_only", e.spec.ExitOnly(),
		"dir", e.spec.Dir,
		"env", cliutil.RedactEnv(e.spec.Env),
	)
	inst, err := e.opts.Runtime.Start(ctx, e.spec)
	if err != nil {
		e.state.transition(StateFailed)
		metrics.ObserveRun(e.opts.RuntimeName, StateFailed.String(), 0)
		e.logger.Error("process failed to start", "error", err)
		if e.mux != nil {
			e.mux.Close()
		}
		return &StartError{Command: e.command, Err: err}
	}
	e.inst = inst
	e.started = time.Now()

	e.startPumps(inst)
	go e.reap()
	go e.awaitCompletion()
	if e.mux != nil {
		go e.mux.Close()
	}
	e.logger.Info("process started", "pid", inst.Pid())
	return nil
}

func (e *Execution) startPumps(inst runtime.Instance) {
	streams := []struct {
		stream capture.Stream
		reader io.Reader
	}{
		{capture.StreamStdout, inst.Stdout()},
		{capture.StreamStderr, inst.Stderr()},
	}

	producers := make(map[capture.Stream]*logmux.Producer, len(streams))
	for _, s := range streams {
		if e.mux != nil && s.reader != nil && e.capture.Signal(s.stream) != nil {
			producers[s.stream] = e.mux.Add()
		}
	}
	if len(producers) > 0 {
		e.capture.Forward = func(line capture.Line) {
			if p := producers[line.Stream]; p != nil {
				p.Send(line)
			}
		}
	}

	for _, s := range streams {
		sig := e.capture.Signal(s.stream)
		if sig == nil {
			continue
		}
		if s.reader == nil {
			sig.Resolve()
			continue
		}
		var done func()
		if p := producers[s.stream]; p != nil {
			done = p.Done
		}
		go pump(s.reader, s.stream, e.capture, e.spec.Encoding, done)
	}
}

func (e *Execution) reap() {
	e.exitCode, e.exitErr = e.inst.Wait()
	close(e.exitDone)
}

// awaitCompletion closes completed once the process exited and every
// redirected stream drained. A failed wait completes without draining.
func (e *Execution) awaitCompletion() {
	<-e.exitDone
	if e.exitErr == nil {
		<-e.capture.Drained()
	}
	close(e.completed)
}

func (e *Execution) supervise(ctx context.Context) {
	defer close(e.done)
	defer e.release()

	e.result, e.err = e.coordinate(ctx)

	state := e.state.load()
	duration := time.Since(e.started)
	metrics.ObserveRun(e.opts.RuntimeName, state.String(), duration)
	attrs := []any{
		"state", state.String(),
		"duration", duration,
	}
	if e.result != nil {
		attrs = append(attrs, "exit_code", e.result.ExitCode, "lines", len(e.result.Lines))
	}
	if state == StateCompleted {
		e.logger.Info("process finished", attrs...)
	} else {
		e.logger.Warn("process aborted", attrs...)
	}
}

// coordinate races natural completion against the deadline and the caller's
// context. When the deadline or the context fires, completion is polled once
// more so a process that finished at the same instant is reported as
// completed. This tie-break is best effort. Completion requires every pump
// to reach EOF, so a completed result is never missing lines.
func (e *Execution) coordinate(ctx context.Context) (*Result, error) {
	var deadline <-chan time.Time
	if e.opts.Timeout > 0 {
		timer := time.NewTimer(e.opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-e.completed:
		return e.finish()
	case <-deadline:
		if e.ready() {
			return e.finish()
		}
		return e.abort(StateTimedOut, nil)
	case <-ctx.Done():
		if e.ready() {
			return e.finish()
		}
		return e.abort(StateCancelled, context.Cause(ctx))
	}
}

func (e *Execution) ready() bool {
	select {
	case <-e.completed:
		return true
	default:
		return false
	}
}

func (e *Execution) finish() (*Result, error) {
	if e.exitErr != nil {
		e.state.transition(StateFailed)
		e.logger.Error("wait for process failed", "error", e.exitErr)
		e.kill("wait_failed")
		e.drain()
		return e.snapshot(StateFailed, -1), &WaitError{
			Command: e.command,
			Err:     e.exitErr,
			Tail:    e.tail(),
		}
	}

	e.state.transition(StateCompleted)
	res := e.snapshot(StateCompleted, e.exitCode)
	if res.ExitCode != 0 {
		return res, &ExitError{
			Command: e.command,
			Code:    res.ExitCode,
			Tail:    e.tail(),
			Note:    res.Note,
		}
	}
	return res, nil
}

func (e *Execution) abort(state State, cause error) (*Result, error) {
	e.state.transition(state)
	reason := "timeout"
	if state == StateCancelled {
		reason = "cancelled"
	}
	e.logger.Warn("killing process tree", "reason", reason, "timeout", e.opts.Timeout)
	e.kill(reason)
	e.drain()

	code := -1
	select {
	case <-e.exitDone:
		if e.exitErr == nil {
			code = e.exitCode
		}
	default:
	}
	res := e.snapshot(state, code)

	if state == StateTimedOut {
		return res, &TimeoutError{Command: e.command, Timeout: e.opts.Timeout, Tail: e.tail()}
	}
	return res, &CancelledError{Command: e.command, Cause: cause, Tail: e.tail()}
}

// kill tears down the whole process tree. Errors are logged and swallowed;
// killing a process that already exited is a no-op.
func (e *Execution) kill(reason string) {
	metrics.IncKill(e.opts.RuntimeName, reason)
	if t, ok := e.inst.(runtime.Terminator); ok && e.opts.KillGrace > 0 {
		if err := t.Terminate(); err != nil {
			e.logger.Debug("terminate process tree", "error", err)
		} else {
			timer := time.NewTimer(e.opts.KillGrace)
			select {
			case <-e.exitDone:
			case <-timer.C:
			}
			timer.Stop()
		}
	}
	if err := e.inst.Kill(); err != nil {
		e.logger.Warn("kill process tree", "error", err)
	}
}

// drain waits up to the drain grace for the pumps to flush and the reaper to
// collect the process.
func (e *Execution) drain() {
	timer := time.NewTimer(e.opts.DrainGrace)
	defer timer.Stop()

	drained := e.capture.Drained()
	exited := e.exitDone
	for drained != nil || exited != nil {
		select {
		case <-drained:
			drained = nil
		case <-exited:
			exited = nil
		case <-timer.C:
			e.logger.Debug("drain grace elapsed")
			return
		}
	}
}

func (e *Execution) release() {
	e.releaseOnce.Do(func() {
		if err := e.inst.Release(); err != nil {
			e.logger.Debug("release process handles", "error", err)
		}
	})
}

func (e *Execution) tail() []string {
	return e.capture.Buffer.Tail(e.opts.TailLines)
}

func (e *Execution) snapshot(state State, code int) *Result {
	res := &Result{
		RunID:    e.id,
		Command:  e.command,
		Lines:    e.capture.Buffer.Strings(),
		ExitCode: code,
		State:    state,
	}
	if e.inst != nil {
		res.Pid = e.inst.Pid()
		res.Duration = time.Since(e.started)
		if n, ok := e.inst.(runtime.ExitNoter); ok && state == StateCompleted {
			res.Note = n.ExitNote()
		}
	}
	return res
}

// RunID returns the unique identifier of the run.
func (e *Execution) RunID() string { return e.id }

// Pid returns the process id reported by the runtime.
func (e *Execution) Pid() int { return e.inst.Pid() }

// State returns the current lifecycle state.
func (e *Execution) State() State { return e.state.load() }

// Done is closed once the run reached a terminal state and its handles were
// released.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until the run is terminal. The result is returned alongside
// post-spawn errors so callers can inspect captured lines.
func (e *Execution) Wait() (*Result, error) {
	<-e.done
	return e.result, e.err
}

// Lines yields captured lines in arrival order while the process runs. It
// yields nothing unless the execution was started with Stream. The sequence
// is single use.
func (e *Execution) Lines() iter.Seq[capture.Line] {
	if e.mux == nil {
		return func(func(capture.Line) bool) {}
	}
	return e.mux.Lines()
}

// Next returns the next streamed line. ok is false once the stream is
// exhausted.
func (e *Execution) Next(ctx context.Context) (capture.Line, bool, error) {
	if e.mux == nil {
		return capture.Line{}, false, nil
	}
	return e.mux.Next(ctx)
}

// Progress is a point-in-time view of a run that does not wait for it.
type Progress struct {
	RunID   string
	Command string
	Pid     int
	State   State
	Lines   int
	Elapsed time.Duration
	Tail    []string
}

// Progress reports the run's current state and its last n captured lines.
// A non-positive n uses the configured tail size.
func (e *Execution) Progress(n int) Progress {
	if n <= 0 {
		n = e.opts.TailLines
	}
	return Progress{
		RunID:   e.id,
		Command: e.command,
		Pid:     e.inst.Pid(),
		State:   e.state.load(),
		Lines:   e.capture.Buffer.Len(),
		Elapsed: time.Since(e.started),
		Tail:    e.capture.Buffer.Tail(n),
	}
}
