//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

type platformState struct{}

var (
	signalPid  = unix.Kill
	sudoSignal = runSudoKill
)

func (p *processInstance) attach() error { return nil }

func (p *processInstance) detach() error { return nil }

func (p *processInstance) killTree() error {
	return p.signalGroup(unix.SIGKILL)
}

func (p *processInstance) terminateTree() error {
	return p.signalGroup(unix.SIGTERM)
}

// signalGroup signals the child's process group (negative pid). If the group
// is gone the call is a no-op. An elevated group belongs to root, so EPERM is
// retried through sudo. Any other failure falls back to signalling the direct
// child.
func (p *processInstance) signalGroup(sig unix.Signal) error {
	pid := p.cmd.Process.Pid
	err := signalPid(-pid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	if p.sudo && errors.Is(err, unix.EPERM) {
		if sudoErr := sudoSignal(sig, pid); sudoErr != nil {
			return fmt.Errorf("signal process group %s through sudo: %w", p.name, sudoErr)
		}
		return nil
	}
	if sigErr := p.cmd.Process.Signal(sig); sigErr != nil && !errors.Is(sigErr, os.ErrProcessDone) {
		return fmt.Errorf("signal process group %s: %v; signal process: %w", p.name, err, sigErr)
	}
	return nil
}

func sudoKillArgs(sig unix.Signal, pgid int) []string {
	name := strings.TrimPrefix(unix.SignalName(sig), "SIG")
	return []string{"-n", "kill", "-" + name, "--", "-" + strconv.Itoa(pgid)}
}

func runSudoKill(sig unix.Signal, pgid int) error {
	out, err := exec.Command(sudoPath, sudoKillArgs(sig, pgid)...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return state.ExitCode()
}
