package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/Paintersrp/runcap/internal/procspec"
	"github.com/Paintersrp/runcap/internal/runtime"
)

// RuntimeName identifies the local process runtime.
const RuntimeName = "process"

func init() {
	runtime.Register(RuntimeName, New)
}

type runtimeImpl struct{}

// New constructs a runtime that executes specs as local processes.
func New() runtime.Runtime {
	return &runtimeImpl{}
}

func (r *runtimeImpl) Start(ctx context.Context, spec *procspec.Spec) (runtime.Instance, error) {
	if spec == nil {
		return nil, errors.New("process runtime requires a spec")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd, err := buildCommand(spec)
	if err != nil {
		return nil, err
	}
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}

	inst := &processInstance{name: spec.Command, cmd: cmd, sudo: spec.Launch == procspec.LaunchSudo}

	if spec.RedirectStdout {
		r, w, err := os.Pipe()
		if err != nil {
			inst.closePipes()
			return nil, fmt.Errorf("%s stdout: %w", spec.Command, err)
		}
		inst.stdout, inst.stdoutW = r, w
		cmd.Stdout = w
	}
	if spec.RedirectStderr {
		r, w, err := os.Pipe()
		if err != nil {
			inst.closePipes()
			return nil, fmt.Errorf("%s stderr: %w", spec.Command, err)
		}
		inst.stderr, inst.stderrW = r, w
		cmd.Stderr = w
	}

	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		inst.closePipes()
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}
	// The child holds its own copies of the write ends. Closing ours lets the
	// readers see EOF once the child and its descendants are done.
	inst.closeWriters()

	if err := inst.attach(); err != nil {
		_ = inst.Kill()
		_, _ = inst.Wait()
		_ = inst.Release()
		return nil, fmt.Errorf("supervise %s: %w", spec.Command, err)
	}
	return inst, nil
}

// overlayEnv returns the inherited environment with the spec overlay
// appended. exec.Cmd keeps the last value of duplicate keys, so the overlay
// wins. A nil result inherits the parent environment unchanged.
func overlayEnv(spec *procspec.Spec) []string {
	overlay := spec.EnvList()
	if len(overlay) == 0 {
		return nil
	}
	return append(os.Environ(), overlay...)
}

type processInstance struct {
	name string
	cmd  *exec.Cmd
	// sudo is set when the child runs under sudo and its group belongs to
	// root.
	sudo bool

	stdout, stdoutW *os.File
	stderr, stderrW *os.File

	plat platformState

	releaseOnce sync.Once
	releaseErr  error
}

func (p *processInstance) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *processInstance) Stdout() io.Reader {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

func (p *processInstance) Stderr() io.Reader {
	if p.stderr == nil {
		return nil
	}
	return p.stderr
}

func (p *processInstance) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitCode(exitErr.ProcessState), nil
	}
	return -1, fmt.Errorf("wait %s: %w", p.name, err)
}

func (p *processInstance) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.killTree()
}

// Terminate asks the process tree to exit without forcing it.
func (p *processInstance) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.terminateTree()
}

func (p *processInstance) Release() error {
	p.releaseOnce.Do(func() {
		p.closePipes()
		p.releaseErr = p.detach()
	})
	return p.releaseErr
}

func (p *processInstance) closeWriters() {
	for _, f := range []**os.File{&p.stdoutW, &p.stderrW} {
		if *f != nil {
			_ = (*f).Close()
			*f = nil
		}
	}
}

func (p *processInstance) closePipes() {
	p.closeWriters()
	for _, f := range []**os.File{&p.stdout, &p.stderr} {
		if *f != nil {
			_ = (*f).Close()
		}
	}
}
