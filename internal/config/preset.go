package config

import (
	"fmt"
	"sort"

	"github.com/Paintersrp/runcap/internal/procspec"
	"github.com/Paintersrp/runcap/internal/runtime/containerutil"
)

// Preset returns the named command preset.
func (f *File) Preset(name string) (*CommandSpec, error) {
	cmd, ok := f.Commands[name]
	if !ok || cmd == nil {
		return nil, fmt.Errorf("unknown command preset %q (available: %v)", name, f.PresetNames())
	}
	return cmd, nil
}

// PresetNames lists the configured presets in sorted order.
func (f *File) PresetNames() []string {
	names := make([]string, 0, len(f.Commands))
	for name, cmd := range f.Commands {
		if cmd != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Spec converts the preset into a process spec. Extra options are applied
// after the preset's own settings.
func (c *CommandSpec) Spec(extra ...procspec.Option) (*procspec.Spec, error) {
	opts := []procspec.Option{
		procspec.WithDir(c.Workdir),
		procspec.WithEnv(c.Env),
		procspec.WithAdmin(c.Admin),
	}
	opts = append(opts, extra...)

	if c.Line != "" {
		if c.Shell == ShellAlternate {
			return procspec.AltShell(c.Line, opts...)
		}
		return procspec.Shell(c.Line, opts...)
	}

	opts = append([]procspec.Option{
		procspec.WithArgs(c.Args...),
		procspec.WithArgLine(c.ArgLine),
	}, opts...)
	return procspec.New(c.Command, opts...)
}

// DockerOptions converts the docker section into container backend options.
func (f *File) DockerOptions() containerutil.Options {
	return containerutil.Options{
		Image:  f.Docker.Image,
		Mounts: append([]string(nil), f.Docker.Mounts...),
		Ports:  append([]string(nil), f.Docker.Ports...),
		CPUs:   f.Docker.CPUs,
		Memory: f.Docker.Memory,
		Pull:   containerutil.PullPolicy(f.Docker.Pull),
	}
}
