package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrStart marks failures to spawn the process.
	ErrStart = errors.New("process failed to start")
	// ErrNonZeroExit marks processes that completed with a non-zero code.
	ErrNonZeroExit = errors.New("process exited with non-zero code")
	// ErrTimeout marks processes killed after exceeding their timeout.
	ErrTimeout = errors.New("process timed out")
	// ErrCancelled marks processes killed because the caller cancelled.
	ErrCancelled = errors.New("process cancelled")
	// ErrWait marks failures to observe the process exit.
	ErrWait = errors.New("process wait failed")
)

// StartError reports that the process could not be spawned.
type StartError struct {
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %q: %v", e.Command, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

func (e *StartError) Is(target error) bool { return target == ErrStart }

// ExitError reports a completed process with a non-zero exit code.
type ExitError struct {
	Command string
	Code    int
	Tail    []string
	Note    string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%q exited with code %d", e.Command, e.Code)
	if e.Note != "" {
		msg += " (" + e.Note + ")"
	}
	return msg + tailSuffix(e.Tail)
}

func (e *ExitError) Is(target error) bool { return target == ErrNonZeroExit }

// TimeoutError reports a process tree killed after its timeout elapsed.
type TimeoutError struct {
	Command string
	Timeout time.Duration
	Tail    []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%q timed out after %s", e.Command, e.Timeout) + tailSuffix(e.Tail)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// CancelledError reports a process tree killed because the caller's context
// was cancelled. Cause is the context error.
type CancelledError struct {
	Command string
	Cause   error
	Tail    []string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%q cancelled: %v", e.Command, e.Cause) + tailSuffix(e.Tail)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// WaitError reports that the exit of a spawned process could not be observed.
type WaitError struct {
	Command string
	Err     error
	Tail    []string
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait for %q: %v", e.Command, e.Err) + tailSuffix(e.Tail)
}

func (e *WaitError) Unwrap() error { return e.Err }

func (e *WaitError) Is(target error) bool { return target == ErrWait }

// Tail returns the diagnostic output tail carried by err, if any.
func Tail(err error) []string {
	var (
		exitErr    *ExitError
		timeoutErr *TimeoutError
		cancelErr  *CancelledError
		waitErr    *WaitError
	)
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Tail
	case errors.As(err, &timeoutErr):
		return timeoutErr.Tail
	case errors.As(err, &cancelErr):
		return cancelErr.Tail
	case errors.As(err, &waitErr):
		return waitErr.Tail
	}
	return nil
}

func tailSuffix(tail []string) string {
	if len(tail) == 0 {
		return "\n(no output captured)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\nlast %d line(s) of output:", len(tail))
	for _, line := range tail {
		b.WriteString("\n  ")
		b.WriteString(line)
	}
	return b.String()
}
