//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/runcap/internal/procspec"
)

type sudoCall struct {
	sig  unix.Signal
	pgid int
}

func withSignalSeams(t *testing.T, groupErr, sudoErr error) *[]sudoCall {
	t.Helper()
	prevSignal, prevSudo := signalPid, sudoSignal
	calls := &[]sudoCall{}
	signalPid = func(pid int, sig unix.Signal) error { return groupErr }
	sudoSignal = func(sig unix.Signal, pgid int) error {
		*calls = append(*calls, sudoCall{sig: sig, pgid: pgid})
		return sudoErr
	}
	t.Cleanup(func() { signalPid, sudoSignal = prevSignal, prevSudo })
	return calls
}

func sudoInstance(pid int) *processInstance {
	return &processInstance{
		name: "id",
		cmd:  &exec.Cmd{Process: &os.Process{Pid: pid}},
		sudo: true,
	}
}

func TestKillEscalatesThroughSudoOnPermissionDenied(t *testing.T) {
	calls := withSignalSeams(t, unix.EPERM, nil)

	inst := sudoInstance(4242)
	if err := inst.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := inst.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}

	want := []sudoCall{{sig: unix.SIGKILL, pgid: 4242}, {sig: unix.SIGTERM, pgid: 4242}}
	if !reflect.DeepEqual(*calls, want) {
		t.Fatalf("unexpected sudo signals %+v, want %+v", *calls, want)
	}
}

func TestKillReportsSudoFailure(t *testing.T) {
	withSignalSeams(t, unix.EPERM, errors.New("a password is required"))

	err := sudoInstance(4242).Kill()
	if err == nil {
		t.Fatal("expected kill to fail when sudo cannot signal the group")
	}
	if !strings.Contains(err.Error(), "through sudo") || !strings.Contains(err.Error(), "a password is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKillOfGoneGroupSkipsSudo(t *testing.T) {
	calls := withSignalSeams(t, unix.ESRCH, nil)

	if err := sudoInstance(4242).Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if len(*calls) != 0 {
		t.Fatalf("expected no sudo escalation for a vanished group, got %+v", *calls)
	}
}

func TestSudoKillArgsTargetTheGroup(t *testing.T) {
	got := sudoKillArgs(unix.SIGKILL, 321)
	want := []string{"-n", "kill", "-KILL", "--", "-321"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sudoKillArgs = %v, want %v", got, want)
	}
	if got := sudoKillArgs(unix.SIGTERM, 7)[2]; got != "-TERM" {
		t.Fatalf("expected -TERM, got %s", got)
	}
}

func TestStartMarksSudoLaunches(t *testing.T) {
	prev := sudoPath
	sudoPath = "/bin/true"
	t.Cleanup(func() { sudoPath = prev })

	spec := mustSpec(t, "id")
	spec.Launch = procspec.LaunchSudo

	inst, err := New().Start(t.Context(), spec)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer inst.Release()
	if _, err := inst.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !inst.(*processInstance).sudo {
		t.Fatal("expected sudo launch to be recorded on the instance")
	}
}
