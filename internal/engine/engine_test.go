package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/runcap/internal/capture"
	"github.com/Paintersrp/runcap/internal/procspec"
	"github.com/Paintersrp/runcap/internal/runtime"
)

type fakeRuntime struct {
	inst     *fakeInstance
	startErr error
}

func (f *fakeRuntime) Start(context.Context, *procspec.Spec) (runtime.Instance, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.inst, nil
}

type fakeInstance struct {
	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	exited   chan struct{}
	exitOnce sync.Once
	code     int
	waitErr  error

	killErr    error
	kills      atomic.Int32
	terminates atomic.Int32
	releases   atomic.Int32
	onTerm     func(*fakeInstance)
}

func newFakeInstance() *fakeInstance {
	f := &fakeInstance{exited: make(chan struct{})}
	f.stdoutR, f.stdoutW = io.Pipe()
	f.stderrR, f.stderrW = io.Pipe()
	return f
}

func (f *fakeInstance) exit(code int) {
	f.exitOnce.Do(func() {
		f.code = code
		_ = f.stdoutW.Close()
		_ = f.stderrW.Close()
		close(f.exited)
	})
}

func (f *fakeInstance) Pid() int          { return 4242 }
func (f *fakeInstance) Stdout() io.Reader { return f.stdoutR }
func (f *fakeInstance) Stderr() io.Reader { return f.stderrR }

func (f *fakeInstance) Wait() (int, error) {
	<-f.exited
	return f.code, f.waitErr
}

func (f *fakeInstance) Kill() error {
	f.kills.Add(1)
	f.exit(137)
	return f.killErr
}

func (f *fakeInstance) Terminate() error {
	f.terminates.Add(1)
	if f.onTerm != nil {
		f.onTerm(f)
	}
	return nil
}

func (f *fakeInstance) Release() error {
	f.releases.Add(1)
	_ = f.stdoutR.Close()
	_ = f.stderrR.Close()
	return nil
}

func newFakeRunner(inst *fakeInstance, opts ...Option) *Runner {
	opts = append([]Option{WithRuntime("fake", &fakeRuntime{inst: inst}), WithDrainGrace(time.Second)}, opts...)
	return NewRunner(opts...)
}

func mustSpec(t *testing.T) *procspec.Spec {
	t.Helper()
	spec, err := procspec.New("tool", procspec.WithArgs("--flag"))
	require.NoError(t, err)
	return spec
}

func TestRunCompletesAfterStreamsDrain(t *testing.T) {
	inst := newFakeInstance()
	runner := newFakeRunner(inst)

	go func() {
		_, _ = io.WriteString(inst.stdoutW, "one\n")
		_, _ = io.WriteString(inst.stderrW, "warn\n")
		_, _ = io.WriteString(inst.stdoutW, "two")
		inst.exit(0)
	}()

	res, err := runner.Run(context.Background(), mustSpec(t))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 0, res.ExitCode)
	assert.ElementsMatch(t, []string{"one", "[stderr] warn", "two"}, res.Lines)
	assert.Equal(t, int32(0), inst.kills.Load())
	assert.Equal(t, int32(1), inst.releases.Load())
	assert.NotEmpty(t, res.RunID)
	assert.True(t, res.Success())
}

func TestRunNonZeroExitCarriesTail(t *testing.T) {
	inst := newFakeInstance()
	runner := newFakeRunner(inst, WithTailLines(2))

	go func() {
		for _, line := range []string{"a", "b", "c"} {
			_, _ = io.WriteString(inst.stderrW, line+"\n")
		}
		inst.exit(3)
	}()

	res, err := runner.Run(context.Background(), mustSpec(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonZeroExit))

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, []string{"[stderr] b", "[stderr] c"}, exitErr.Tail)
	assert.Contains(t, err.Error(), "exited with code 3")
	assert.Contains(t, err.Error(), "[stderr] c")
	assert.NotContains(t, err.Error(), "[stderr] a")

	require.NotNil(t, res)
	assert.Equal(t, StateCompleted, res.State)
	assert.Len(t, res.Lines, 3)
}

func TestRunTimeoutKillsAndReportsTail(t *testing.T) {
	inst := newFakeInstance()
	runner := newFakeRunner(inst, WithTimeout(50*time.Millisecond))

	go func() { _, _ = io.WriteString(inst.stdoutW, "started\n") }()

	res, err := runner.Run(context.Background(), mustSpec(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
	assert.Equal(t, []string{"started"}, timeoutErr.Tail)
	assert.Equal(t, StateTimedOut, res.State)
	assert.Equal(t, int32(1), inst.kills.Load())
	assert.Equal(t, int32(1), inst.releases.Load())
}

func TestRunCancelKillsTree(t *testing.T) {
	inst := newFakeInstance()
	runner := newFakeRunner(inst)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	res, err := runner.Run(ctx, mustSpec(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, int32(1), inst.kills.Load())
	assert.Contains(t, err.Error(), "(no output captured)")
}

func TestRunSwallowsKillErrors(t *testing.T) {
	inst := newFakeInstance()
	inst.killErr = errors.New("permission denied")
	runner := newFakeRunner(inst, WithTimeout(20*time.Millisecond))

	_, err := runner.Run(context.Background(), mustSpec(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, strings.Contains(err.Error(), "permission denied"))
}

func TestRunKillGraceTerminatesFirst(t *testing.T) {
	inst := newFakeInstance()
	inst.onTerm = func(f *fakeInstance) {
		go func() {
			_, _ = io.WriteString(f.stdoutW, "shutting down\n")
			f.exit(143)
		}()
	}
	runner := newFakeRunner(inst, WithTimeout(20*time.Millisecond), WithKillGrace(time.Second))

	res, err := runner.Run(context.Background(), mustSpec(t))
	require.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, int32(1), inst.terminates.Load())
	assert.Equal(t, int32(1), inst.kills.Load())
	assert.Contains(t, res.Lines, "shutting down")
	assert.Equal(t, 143, res.ExitCode)
}

func TestRunWaitFailureKillsDefensively(t *testing.T) {
	inst := newFakeInstance()
	inst.waitErr = errors.New("no child processes")
	runner := newFakeRunner(inst)

	inst.exit(0)

	res, err := runner.Run(context.Background(), mustSpec(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWait))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, int32(1), inst.kills.Load())
}

func TestRunStartFailure(t *testing.T) {
	runner := NewRunner(WithRuntime("fake", &fakeRuntime{startErr: errors.New("exec: not found")}))

	res, err := runner.Run(context.Background(), mustSpec(t))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrStart))

	var startErr *StartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, "tool --flag", startErr.Command)
}

func TestRunRejectsCancelledContextBeforeSpawn(t *testing.T) {
	inst := newFakeInstance()
	runner := newFakeRunner(inst)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, mustSpec(t))
	assert.True(t, errors.Is(err, ErrStart))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunNoWaitDetaches(t *testing.T) {
	inst := newFakeInstance()
	runner := newFakeRunner(inst, WithWaitForExit(false))

	ctx, cancel := context.WithCancel(context.Background())
	res, err := runner.Run(ctx, mustSpec(t))
	require.NoError(t, err)
	cancel()

	assert.True(t, res.Detached)
	assert.Empty(t, res.Lines)
	assert.Equal(t, StateRunning, res.State)

	// The caller's cancellation does not reach a detached run.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), inst.kills.Load())

	inst.exit(0)
	require.Eventually(t, func() bool { return inst.releases.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStreamYieldsLinesInBufferOrder(t *testing.T) {
	inst := newFakeInstance()
	runner := newFakeRunner(inst)

	exec, err := runner.Stream(context.Background(), mustSpec(t))
	require.NoError(t, err)

	go func() {
		for i := 0; i < 50; i++ {
			_, _ = io.WriteString(inst.stdoutW, "out\n")
			_, _ = io.WriteString(inst.stderrW, "err\n")
		}
		inst.exit(0)
	}()

	var streamed []string
	var lastSeq uint64
	for line := range exec.Lines() {
		assert.Greater(t, line.Seq, lastSeq)
		lastSeq = line.Seq
		streamed = append(streamed, line.Display())
	}

	res, err := exec.Wait()
	require.NoError(t, err)
	assert.Equal(t, res.Lines, streamed)
	assert.Len(t, streamed, 100)

	var again int
	for range exec.Lines() {
		again++
	}
	assert.Zero(t, again)
}

func TestExitOnlyRunHasNoLines(t *testing.T) {
	inst := newFakeInstance()
	runner := newFakeRunner(inst)
	spec := mustSpec(t)
	spec.RedirectStdout = false
	spec.RedirectStderr = false

	go inst.exit(5)
	res, err := runner.Run(context.Background(), spec)
	require.True(t, errors.Is(err, ErrNonZeroExit))
	assert.Empty(t, res.Lines)
	assert.Equal(t, 5, res.ExitCode)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateFailed.Terminal())

	var box stateBox
	assert.True(t, box.transition(StateCompleted))
	assert.False(t, box.transition(StateCancelled))
	assert.Equal(t, StateCompleted, box.load())
}

func TestTailHelper(t *testing.T) {
	err := error(&TimeoutError{Command: "x", Timeout: time.Second, Tail: []string{"z"}})
	assert.Equal(t, []string{"z"}, Tail(err))
	assert.Nil(t, Tail(errors.New("plain")))
}

func TestPumpResolvesOnlyAtEndOfStream(t *testing.T) {
	st := capture.NewState(true, false, nil, false)
	r, w := io.Pipe()
	finished := make(chan struct{})
	go pump(r, capture.StreamStdout, st, nil, func() { close(finished) })

	// One write carries several lines so they sit in the reader's buffer
	// together.
	_, err := io.WriteString(w, "a\nb\nc\n")
	require.NoError(t, err)
	sig := st.Signal(capture.StreamStdout)
	assert.False(t, sig.Resolved(), "signal resolved while the stream is still open")

	_, err = io.WriteString(w, "d")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("pump did not return after EOF")
	}
	assert.True(t, sig.Resolved())
	assert.Equal(t, []string{"a", "b", "c", "d"}, st.Buffer.Strings())
}

func TestRunCancelKeepsLinesAlreadyWritten(t *testing.T) {
	inst := newFakeInstance()
	runner := newFakeRunner(inst)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for i := 0; i < 20; i++ {
			_, _ = io.WriteString(inst.stdoutW, "line\n")
		}
		cancel()
	}()

	res, err := runner.Run(ctx, mustSpec(t))
	require.ErrorIs(t, err, ErrCancelled)
	// io.Pipe writes return only once read, so every line reached the pump
	// before the cancellation.
	assert.Len(t, res.Lines, 20)
}
