package cli

import (
	"errors"

	"github.com/Paintersrp/runcap/internal/engine"
)

// Process exit statuses used when the child's own code is not available.
const (
	exitTimeout   = 124
	exitNotFound  = 127
	exitCancelled = 130
)

// ExitCode maps a command error to the process exit status: the child's
// code for non-zero exits, 124 on timeout, 130 on cancellation, 127 when the
// process could not start and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *engine.ExitError
	switch {
	case errors.As(err, &exitErr):
		if exitErr.Code > 0 && exitErr.Code < 256 {
			return exitErr.Code
		}
		return 1
	case errors.Is(err, engine.ErrTimeout):
		return exitTimeout
	case errors.Is(err, engine.ErrCancelled):
		return exitCancelled
	case errors.Is(err, engine.ErrStart):
		return exitNotFound
	default:
		return 1
	}
}
