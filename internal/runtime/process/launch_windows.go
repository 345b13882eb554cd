//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/Paintersrp/runcap/internal/procspec"
)

func buildCommand(spec *procspec.Spec) (*exec.Cmd, error) {
	if spec.Launch == procspec.LaunchShellOwned {
		return elevatedCommand(spec), nil
	}
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = overlayEnv(spec)
	if spec.ArgLine != "" {
		cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: commandLine(spec)}
	}
	return cmd, nil
}

// commandLine renders the full command line with ArgLine appended verbatim.
func commandLine(spec *procspec.Spec) string {
	parts := []string{syscall.EscapeArg(spec.Command)}
	if args := argumentString(spec); args != "" {
		parts = append(parts, args)
	}
	return strings.Join(parts, " ")
}

func argumentString(spec *procspec.Spec) string {
	parts := make([]string, 0, len(spec.Args)+1)
	for _, arg := range spec.Args {
		parts = append(parts, syscall.EscapeArg(arg))
	}
	if spec.ArgLine != "" {
		parts = append(parts, spec.ArgLine)
	}
	return strings.Join(parts, " ")
}

// elevatedCommand hands the spec to PowerShell, which starts it through the
// RunAs verb, waits for it and forwards its exit code. The elevated process
// gets a fresh environment, so the overlay is not applied.
func elevatedCommand(spec *procspec.Spec) *exec.Cmd {
	var script strings.Builder
	fmt.Fprintf(&script, "$p = Start-Process -FilePath %s -Verb RunAs -Wait -PassThru", psQuote(spec.Command))
	if args := argumentString(spec); args != "" {
		fmt.Fprintf(&script, " -ArgumentList %s", psQuote(args))
	}
	if spec.Dir != "" {
		fmt.Fprintf(&script, " -WorkingDirectory %s", psQuote(spec.Dir))
	}
	script.WriteString("; exit $p.ExitCode")
	return exec.Command("powershell.exe", "-NoProfile", "-NonInteractive", "-Command", script.String())
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
