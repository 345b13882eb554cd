// Package config loads the runcap.yaml document: run defaults, docker
// backend options and named command presets.
package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// NewDuration returns an explicitly set duration.
func NewDuration(v time.Duration) Duration {
	return Duration{Duration: v, explicit: true}
}

// File mirrors the runcap.yaml document.
type File struct {
	Version  string                  `yaml:"version,omitempty"`
	Defaults Defaults                `yaml:"defaults"`
	Docker   Docker                  `yaml:"docker"`
	Commands map[string]*CommandSpec `yaml:"commands,omitempty"`

	// Path is the absolute location the file was loaded from, empty when no
	// file exists.
	Path string `yaml:"-"`
}

// Defaults apply to every run unless a flag or preset overrides them.
type Defaults struct {
	Timeout    Duration `yaml:"timeout,omitempty"`
	TailLines  int      `yaml:"tailLines,omitempty"`
	Runtime    string   `yaml:"runtime,omitempty"`
	LogOutput  bool     `yaml:"logOutput,omitempty"`
	LogLevel   string   `yaml:"logLevel,omitempty"`
	Encoding   string   `yaml:"encoding,omitempty"`
	DrainGrace Duration `yaml:"drainGrace,omitempty"`
	KillGrace  Duration `yaml:"killGrace,omitempty"`
}

// Docker configures the container backend.
type Docker struct {
	Image  string   `yaml:"image,omitempty"`
	Mounts []string `yaml:"mounts,omitempty"`
	Ports  []string `yaml:"ports,omitempty"`
	CPUs   string   `yaml:"cpus,omitempty"`
	Memory string   `yaml:"memory,omitempty"`
	Pull   string   `yaml:"pull,omitempty"`
}

// Shell names accepted by CommandSpec.Shell.
const (
	ShellPrimary   = "primary"
	ShellAlternate = "alternate"
)

// CommandSpec is a named preset. Exactly one of Command and Line is set.
type CommandSpec struct {
	Command     string            `yaml:"command,omitempty"`
	Args        []string          `yaml:"args,omitempty"`
	ArgLine     string            `yaml:"argLine,omitempty"`
	Line        string            `yaml:"line,omitempty"`
	Shell       string            `yaml:"shell,omitempty"`
	Workdir     string            `yaml:"workdir,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	EnvFromFile string            `yaml:"envFromFile,omitempty"`
	Admin       bool              `yaml:"admin,omitempty"`
	Timeout     Duration          `yaml:"timeout,omitempty"`
}

// ApplyDefaults fills unset fields with built-in defaults.
func (f *File) ApplyDefaults() {
	if f.Defaults.Runtime == "" {
		f.Defaults.Runtime = "process"
	}
	if f.Docker.Pull == "" {
		f.Docker.Pull = "missing"
	}
	for _, cmd := range f.Commands {
		if cmd != nil && cmd.Line != "" && cmd.Shell == "" {
			cmd.Shell = ShellPrimary
		}
	}
}

// Default returns the configuration used when no file exists.
func Default() *File {
	f := &File{}
	f.ApplyDefaults()
	return f
}

func commandField(name, field string) string {
	return fmt.Sprintf("commands.%s.%s", name, field)
}
