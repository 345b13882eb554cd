package engine

import (
	"io"
	"log/slog"
	"time"

	"github.com/Paintersrp/runcap/internal/runtime"
	"github.com/Paintersrp/runcap/internal/runtime/process"
)

const (
	// DefaultTailLines bounds the output tail embedded in failure errors.
	DefaultTailLines = 40
	// DefaultDrainGrace bounds how long an aborted run waits for its pumps
	// and its reaper after the tree kill.
	DefaultDrainGrace = 2 * time.Second
)

// Options tune a single invocation. Zero values select the defaults.
type Options struct {
	Runtime     runtime.Runtime
	RuntimeName string
	Logger      *slog.Logger
	// LogOutput forwards every captured line to Logger.
	LogOutput bool
	// Timeout of zero or less disables the deadline.
	Timeout time.Duration
	// WaitForExit false returns as soon as the process is spawned.
	WaitForExit bool
	TailLines   int
	// KillGrace, when positive, asks the tree to terminate and waits this
	// long before killing it. Runtimes without graceful termination are
	// killed right away.
	KillGrace  time.Duration
	DrainGrace time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithRuntime selects the backend that spawns processes.
func WithRuntime(name string, rt runtime.Runtime) Option {
	return func(o *Options) {
		o.Runtime = rt
		o.RuntimeName = name
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithLogOutput toggles logging of captured lines.
func WithLogOutput(enabled bool) Option {
	return func(o *Options) {
		o.LogOutput = enabled
	}
}

// WithTimeout sets the run deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithWaitForExit controls whether Run blocks until the process exits.
func WithWaitForExit(wait bool) Option {
	return func(o *Options) {
		o.WaitForExit = wait
	}
}

// WithTailLines sets the number of lines embedded in failure errors.
func WithTailLines(n int) Option {
	return func(o *Options) {
		o.TailLines = n
	}
}

// WithKillGrace sets the terminate-to-kill grace period.
func WithKillGrace(d time.Duration) Option {
	return func(o *Options) {
		o.KillGrace = d
	}
}

// WithDrainGrace sets how long aborted runs wait for trailing output.
func WithDrainGrace(d time.Duration) Option {
	return func(o *Options) {
		o.DrainGrace = d
	}
}

func defaultOptions() Options {
	return Options{WaitForExit: true}
}

func (o Options) withDefaults() Options {
	if o.Runtime == nil {
		o.Runtime = process.New()
		o.RuntimeName = process.RuntimeName
	}
	if o.RuntimeName == "" {
		o.RuntimeName = "custom"
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.TailLines <= 0 {
		o.TailLines = DefaultTailLines
	}
	if o.DrainGrace <= 0 {
		o.DrainGrace = DefaultDrainGrace
	}
	return o
}
