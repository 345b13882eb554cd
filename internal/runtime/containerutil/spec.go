// Package containerutil translates a process spec into container
// configuration shared by container-backed runtimes.
package containerutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docker/docker/volume/mounts"
	"github.com/docker/go-connections/nat"

	"github.com/Paintersrp/runcap/internal/procspec"
	"github.com/Paintersrp/runcap/internal/resources"
)

// PullPolicy controls when the image is pulled before a run.
type PullPolicy string

const (
	PullMissing PullPolicy = "missing"
	PullAlways  PullPolicy = "always"
	PullNever   PullPolicy = "never"
)

// Options configures the container a spec runs in.
type Options struct {
	Image  string
	Mounts []string
	Ports  []string
	CPUs   string
	Memory string
	Pull   PullPolicy
}

type PortMapping struct {
	Port     nat.Port
	Bindings []nat.PortBinding
}

type Resources struct {
	NanoCPUs   int64
	Memory     int64
	MemorySwap int64
}

// ContainerSpec is the backend-neutral container description of a run.
type ContainerSpec struct {
	Image       string
	Env         []string
	Cmd         []string
	Workdir     string
	User        string
	Ports       []PortMapping
	Binds       []string
	Resources   Resources
	MemoryLimit string
}

// Prepare builds the container description for spec. The working directory,
// when set, is bind-mounted at the same path so relative paths behave as they
// would on the host. Admin runs as uid 0 inside the container; redirection is
// unaffected.
func Prepare(spec *procspec.Spec, opts Options) (ContainerSpec, error) {
	var out ContainerSpec
	if spec == nil {
		return out, errors.New("container spec requires a process spec")
	}
	out.Image = strings.TrimSpace(opts.Image)
	if out.Image == "" {
		return out, errors.New("container image is required")
	}

	argv, err := spec.Argv()
	if err != nil {
		return out, err
	}
	out.Cmd = append([]string{spec.Command}, argv...)
	out.Env = spec.EnvList()
	if spec.Admin {
		out.User = "0"
	}

	parser := mounts.NewParser()
	if spec.Dir != "" {
		dir, err := filepath.Abs(spec.Dir)
		if err != nil {
			return out, fmt.Errorf("resolve working directory: %w", err)
		}
		dir = filepath.ToSlash(dir)
		out.Workdir = dir
		out.Binds = append(out.Binds, dir+":"+dir)
	}
	for _, bind := range opts.Mounts {
		bind = strings.TrimSpace(bind)
		if _, err := parser.ParseMountRaw(bind, ""); err != nil {
			return out, fmt.Errorf("parse mount %q: %w", bind, err)
		}
		out.Binds = append(out.Binds, bind)
	}

	for _, portSpec := range opts.Ports {
		mappings, err := nat.ParsePortSpec(portSpec)
		if err != nil {
			return out, fmt.Errorf("parse port %q: %w", portSpec, err)
		}
		for _, mapping := range mappings {
			out.Ports = append(out.Ports, PortMapping{
				Port:     mapping.Port,
				Bindings: []nat.PortBinding{mapping.Binding},
			})
		}
	}

	limits, err := resources.ParseLimits(opts.CPUs, opts.Memory)
	if err != nil {
		return out, fmt.Errorf("parse limits: %w", err)
	}
	out.Resources.NanoCPUs = limits.NanoCPUs
	if limits.Memory > 0 {
		out.Resources.Memory = limits.Memory
		out.Resources.MemorySwap = limits.Memory
		out.MemoryLimit = strings.TrimSpace(opts.Memory)
	}
	return out, nil
}

// PortSets converts the mappings into the exposed-port and binding maps the
// Docker API expects.
func (c ContainerSpec) PortSets() (nat.PortSet, nat.PortMap) {
	if len(c.Ports) == 0 {
		return nil, nil
	}
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, mapping := range c.Ports {
		exposed[mapping.Port] = struct{}{}
		bindings[mapping.Port] = append(bindings[mapping.Port], mapping.Bindings...)
	}
	return exposed, bindings
}
