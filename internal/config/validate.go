package config

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/docker/go-connections/nat"

	"github.com/Paintersrp/runcap/internal/procspec"
	"github.com/Paintersrp/runcap/internal/resources"
)

// Validate checks semantic rules the schema cannot express.
func (f *File) Validate() error {
	var errs []error

	d := f.Defaults
	if d.Timeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("defaults.timeout must not be negative"))
	}
	if d.DrainGrace.Duration < 0 {
		errs = append(errs, fmt.Errorf("defaults.drainGrace must not be negative"))
	}
	if d.KillGrace.Duration < 0 {
		errs = append(errs, fmt.Errorf("defaults.killGrace must not be negative"))
	}
	if d.TailLines < 0 {
		errs = append(errs, fmt.Errorf("defaults.tailLines must not be negative"))
	}
	switch d.Runtime {
	case "", "process":
	case "docker":
		if strings.TrimSpace(f.Docker.Image) == "" {
			errs = append(errs, fmt.Errorf("docker.image is required when defaults.runtime is docker"))
		}
	default:
		errs = append(errs, fmt.Errorf("defaults.runtime %q is not supported (process, docker)", d.Runtime))
	}
	switch strings.ToLower(d.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("defaults.logLevel %q is not supported", d.LogLevel))
	}
	if _, err := procspec.LookupEncoding(d.Encoding); err != nil {
		errs = append(errs, fmt.Errorf("defaults.encoding: %w", err))
	}

	errs = append(errs, f.Docker.validate()...)

	for _, name := range f.PresetNames() {
		if err := f.Commands[name].validate(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d Docker) validate() []error {
	var errs []error
	switch d.Pull {
	case "", "missing", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("docker.pull %q is not supported (missing, always, never)", d.Pull))
	}
	if _, err := resources.ParseCPU(d.CPUs); err != nil {
		errs = append(errs, fmt.Errorf("docker.cpus: %w", err))
	}
	if _, err := resources.ParseMemory(d.Memory); err != nil {
		errs = append(errs, fmt.Errorf("docker.memory: %w", err))
	}
	for i, m := range d.Mounts {
		if err := validateMount(m); err != nil {
			errs = append(errs, fmt.Errorf("docker.mounts[%d]: %w", i, err))
		}
	}
	if err := validatePortCollisions(d.Ports); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// validateMount performs a cheap host:container[:mode] shape check. The
// docker backend runs the daemon's own parser at run time.
func validateMount(spec string) error {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("invalid mount %q: expected hostPath:containerPath[:mode]", spec)
	}
	if strings.TrimSpace(parts[0]) == "" {
		return fmt.Errorf("invalid mount %q: host path is required", spec)
	}
	if !path.IsAbs(strings.TrimSpace(parts[1])) {
		return fmt.Errorf("invalid mount %q: container path must be absolute", spec)
	}
	if len(parts) == 3 && strings.TrimSpace(parts[2]) == "" {
		return fmt.Errorf("invalid mount %q: mode is empty", spec)
	}
	return nil
}

// validatePortCollisions rejects malformed port specs and host ports that are
// published twice.
func validatePortCollisions(specs []string) error {
	claimed := map[string]int{}
	for idx, spec := range specs {
		mappings, err := nat.ParsePortSpec(spec)
		if err != nil {
			return fmt.Errorf("docker.ports[%d]: invalid port mapping %q: %w", idx, spec, err)
		}
		for _, mapping := range mappings {
			hostPort := strings.TrimSpace(mapping.Binding.HostPort)
			if hostPort == "" {
				continue
			}
			start, end, err := nat.ParsePortRange(hostPort)
			if err != nil {
				return fmt.Errorf("docker.ports[%d]: invalid host port %q", idx, hostPort)
			}
			hostIP := normalizeHostIP(mapping.Binding.HostIP)
			for port := start; port <= end; port++ {
				for _, key := range []string{hostPortKey(hostIP, port), hostPortKey("0.0.0.0", port)} {
					if prev, ok := claimed[key]; ok {
						return fmt.Errorf("docker.ports[%d]: host port %d on IP %q already published by docker.ports[%d]", idx, port, hostIP, prev)
					}
				}
				claimed[hostPortKey(hostIP, port)] = idx
			}
		}
	}
	return nil
}

func hostPortKey(hostIP string, port uint64) string {
	return fmt.Sprintf("%s:%d", hostIP, port)
}

func normalizeHostIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == "0.0.0.0" {
		return "0.0.0.0"
	}
	return ip
}

func (c *CommandSpec) validate(name string) error {
	var errs []error
	hasCommand := strings.TrimSpace(c.Command) != ""
	hasLine := strings.TrimSpace(c.Line) != ""
	switch {
	case hasCommand && hasLine:
		errs = append(errs, fmt.Errorf("commands.%s: command and line are mutually exclusive", name))
	case !hasCommand && !hasLine:
		errs = append(errs, fmt.Errorf("commands.%s: one of command or line is required", name))
	}
	if hasLine && (len(c.Args) > 0 || c.ArgLine != "") {
		errs = append(errs, fmt.Errorf("commands.%s: args and argLine require command", name))
	}
	switch c.Shell {
	case "", ShellPrimary, ShellAlternate:
	default:
		errs = append(errs, fmt.Errorf("%s %q is not supported (primary, alternate)", commandField(name, "shell"), c.Shell))
	}
	if c.ArgLine != "" {
		if _, err := procspec.SplitArgs(c.ArgLine); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", commandField(name, "argLine"), err))
		}
	}
	if c.Timeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", commandField(name, "timeout")))
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" || strings.ContainsAny(k, "= \t") {
			errs = append(errs, fmt.Errorf("%s: invalid variable name %q", commandField(name, "env"), k))
		}
	}
	return errors.Join(errs...)
}
