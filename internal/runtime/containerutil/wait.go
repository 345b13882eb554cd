package containerutil

import (
	"errors"
	"fmt"
	"strings"
)

// WaitStatus is the outcome of waiting for a container to stop.
type WaitStatus struct {
	ExitCode     int64
	ErrorMessage string
	Err          error
	OOMKilled    bool
	MemoryLimit  string
}

// ExitResult converts a wait status into an exit code, or an error when the
// exit could not be observed. A daemon-reported error message without an
// exit code counts as a failure to observe.
func ExitResult(status WaitStatus) (int, error) {
	if status.Err != nil {
		return -1, wrapOOMError(status.Err, status)
	}
	if status.ErrorMessage != "" && status.ExitCode == 0 {
		return -1, wrapOOMError(errors.New(status.ErrorMessage), status)
	}
	return int(status.ExitCode), nil
}

// Describe renders a short explanation of a non-zero exit, mentioning the
// OOM killer when it was involved.
func Describe(status WaitStatus) string {
	if status.ExitCode == 0 && !status.OOMKilled {
		return ""
	}
	err := wrapOOMError(fmt.Errorf("container exited with status %d", status.ExitCode), status)
	return err.Error()
}

func wrapOOMError(err error, status WaitStatus) error {
	if err == nil {
		return nil
	}
	if !status.OOMKilled {
		return err
	}
	limit := strings.TrimSpace(status.MemoryLimit)
	if limit != "" {
		return fmt.Errorf("container terminated by the kernel OOM killer (memory limit %s): %w", limit, err)
	}
	return fmt.Errorf("container terminated by the kernel OOM killer: %w", err)
}
