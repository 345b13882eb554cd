//go:build !windows

package process

import (
	"os/exec"

	"github.com/Paintersrp/runcap/internal/procspec"
)

var sudoPath = "sudo"

func buildCommand(spec *procspec.Spec) (*exec.Cmd, error) {
	argv, err := spec.Argv()
	if err != nil {
		return nil, err
	}
	if spec.Launch == procspec.LaunchSudo {
		return exec.Command(sudoPath, sudoArgs(spec, argv)...), nil
	}
	cmd := exec.Command(spec.Command, argv...)
	cmd.Env = overlayEnv(spec)
	return cmd, nil
}

// sudoArgs runs the command non-interactively. sudo resets the environment,
// so the overlay is applied inside the elevated context through env(1).
func sudoArgs(spec *procspec.Spec, argv []string) []string {
	args := []string{"-n", "--"}
	if overlay := spec.EnvList(); len(overlay) > 0 {
		args = append(args, "env")
		args = append(args, overlay...)
	}
	args = append(args, spec.Command)
	return append(args, argv...)
}
