// Package procspec assembles the launch configuration for a single external
// process invocation.
//
// A Spec is built once per invocation and never mutated afterwards. The only
// input validation performed here is that the command is not empty; missing
// or non-executable binaries surface later, when the runtime tries to spawn
// them.
package procspec

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
)

// ErrEmptyCommand is returned by New when the command is blank.
var ErrEmptyCommand = errors.New("procspec: command must not be empty")

// LaunchMode selects how the runtime hands the spec to the operating system.
type LaunchMode int

const (
	// LaunchDirect spawns the command as a direct child with redirected pipes.
	LaunchDirect LaunchMode = iota
	// LaunchSudo prefixes the command with a non-interactive sudo invocation.
	LaunchSudo
	// LaunchShellOwned hands the command to the platform shell, which owns the
	// elevated process. Streams cannot be redirected in this mode.
	LaunchShellOwned
)

func (m LaunchMode) String() string {
	switch m {
	case LaunchDirect:
		return "direct"
	case LaunchSudo:
		return "sudo"
	case LaunchShellOwned:
		return "shell-owned"
	default:
		return "unknown"
	}
}

// Spec is the immutable launch configuration of one process.
type Spec struct {
	Command string
	Args    []string
	// ArgLine is an optional raw argument string. Windows receives it verbatim
	// on the command line; other platforms split it with SplitArgs.
	ArgLine string
	Dir     string
	Env     map[string]string
	Admin   bool

	RedirectStdout bool
	RedirectStderr bool
	Launch         LaunchMode

	// Encoding decodes both output streams. Nil means UTF-8 passthrough.
	Encoding encoding.Encoding
}

// Option configures a Spec under construction.
type Option func(*Spec)

// WithArgs appends arguments to the argument vector.
func WithArgs(args ...string) Option {
	return func(s *Spec) {
		s.Args = append(s.Args, args...)
	}
}

// WithArgLine sets the raw argument string.
func WithArgLine(line string) Option {
	return func(s *Spec) {
		s.ArgLine = line
	}
}

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(s *Spec) {
		s.Dir = dir
	}
}

// WithEnv merges the provided variables into the environment overlay. Later
// values win for duplicate keys.
func WithEnv(env map[string]string) Option {
	return func(s *Spec) {
		if len(env) == 0 {
			return
		}
		if s.Env == nil {
			s.Env = make(map[string]string, len(env))
		}
		maps.Copy(s.Env, env)
	}
}

// WithEnvVar sets a single overlay variable.
func WithEnvVar(key, value string) Option {
	return func(s *Spec) {
		if s.Env == nil {
			s.Env = make(map[string]string, 1)
		}
		s.Env[key] = value
	}
}

// WithAdmin requests elevated privileges for the child process.
func WithAdmin(admin bool) Option {
	return func(s *Spec) {
		s.Admin = admin
	}
}

// WithEncoding sets the decoder applied to captured output.
func WithEncoding(enc encoding.Encoding) Option {
	return func(s *Spec) {
		s.Encoding = enc
	}
}

// New builds a spec for the provided command. Both output streams are
// redirected unless the elevation policy forbids it on this platform.
func New(command string, opts ...Option) (*Spec, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}
	spec := &Spec{
		Command:        command,
		RedirectStdout: true,
		RedirectStderr: true,
		Launch:         LaunchDirect,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(spec)
		}
	}
	ApplyElevation(spec)
	return spec, nil
}

// Clone returns a deep copy of the spec.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	dup := *s
	if s.Args != nil {
		dup.Args = append([]string(nil), s.Args...)
	}
	if s.Env != nil {
		dup.Env = maps.Clone(s.Env)
	}
	return &dup
}

// ExitOnly reports whether neither stream is redirected, in which case the
// caller can only observe the process exit.
func (s *Spec) ExitOnly() bool {
	return !s.RedirectStdout && !s.RedirectStderr
}

// Argv returns the full argument vector: Args followed by the split ArgLine.
func (s *Spec) Argv() ([]string, error) {
	argv := append([]string(nil), s.Args...)
	if s.ArgLine == "" {
		return argv, nil
	}
	extra, err := SplitArgs(s.ArgLine)
	if err != nil {
		return nil, fmt.Errorf("split arguments for %s: %w", s.Command, err)
	}
	return append(argv, extra...), nil
}

// EnvList renders the overlay as sorted KEY=VALUE pairs.
func (s *Spec) EnvList() []string {
	if len(s.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+s.Env[k])
	}
	return out
}

// String renders the command line for logs and error messages.
func (s *Spec) String() string {
	parts := make([]string, 0, len(s.Args)+2)
	parts = append(parts, s.Command)
	parts = append(parts, s.Args...)
	if s.ArgLine != "" {
		parts = append(parts, s.ArgLine)
	}
	return strings.Join(parts, " ")
}
