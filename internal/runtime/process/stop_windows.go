//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

type platformState struct {
	job windows.Handle
}

// attach places the child in a fresh job object so the whole tree can be
// terminated later.
func (p *processInstance) attach() error {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return fmt.Errorf("create job object: %w", err)
	}
	proc, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(p.cmd.Process.Pid))
	if err != nil {
		_ = windows.CloseHandle(job)
		return fmt.Errorf("open process %d: %w", p.cmd.Process.Pid, err)
	}
	defer windows.CloseHandle(proc)
	if err := windows.AssignProcessToJobObject(job, proc); err != nil {
		_ = windows.CloseHandle(job)
		return fmt.Errorf("assign process to job: %w", err)
	}
	p.plat.job = job
	return nil
}

func (p *processInstance) detach() error {
	if p.plat.job == 0 {
		return nil
	}
	err := windows.CloseHandle(p.plat.job)
	p.plat.job = 0
	return err
}

func (p *processInstance) killTree() error {
	if p.plat.job != 0 {
		if err := windows.TerminateJobObject(p.plat.job, 1); err == nil {
			return nil
		}
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %s: %w", p.name, err)
	}
	return nil
}

// terminateTree has no graceful equivalent for an arbitrary console tree, so
// it sends an interrupt to the direct child only.
func (p *processInstance) terminateTree() error {
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("interrupt process %s: %w", p.name, err)
	}
	return nil
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}
