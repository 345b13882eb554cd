package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variables that override file values.
const (
	EnvTimeout     = "RUNCAP_TIMEOUT"
	EnvTailLines   = "RUNCAP_TAIL_LINES"
	EnvRuntime     = "RUNCAP_RUNTIME"
	EnvDockerImage = "RUNCAP_DOCKER_IMAGE"
	EnvLogLevel    = "RUNCAP_LOG_LEVEL"
)

// ApplyEnv overlays RUNCAP_* environment variables read through lookup and
// re-validates the result.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var errs []error
	if v, ok := get(EnvTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvTimeout, err))
		} else {
			f.Defaults.Timeout = NewDuration(d)
		}
	}
	if v, ok := get(EnvTailLines); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvTailLines, err))
		} else {
			f.Defaults.TailLines = n
		}
	}
	if v, ok := get(EnvRuntime); ok {
		f.Defaults.Runtime = v
	}
	if v, ok := get(EnvDockerImage); ok {
		f.Docker.Image = v
	}
	if v, ok := get(EnvLogLevel); ok {
		f.Defaults.LogLevel = strings.ToLower(v)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return f.Validate()
}
