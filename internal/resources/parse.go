// Package resources parses container CPU and memory limits.
package resources

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

// NanoCPUs is one full core in Docker nanocpu units.
const NanoCPUs = 1_000_000_000

// Limits is a parsed CPU and memory limit pair. Zero means unlimited.
type Limits struct {
	NanoCPUs int64
	Memory   int64
}

// ParseLimits parses both quantities, reporting every invalid one.
func ParseLimits(cpus, memory string) (Limits, error) {
	var l Limits
	var errs []error
	var err error
	if l.NanoCPUs, err = ParseCPU(cpus); err != nil {
		errs = append(errs, err)
	}
	if l.Memory, err = ParseMemory(memory); err != nil {
		errs = append(errs, err)
	}
	return l, errors.Join(errs...)
}

// IsZero reports whether no limit is set.
func (l Limits) IsZero() bool {
	return l.NanoCPUs == 0 && l.Memory == 0
}

// String renders the limits for logs, e.g. "cpus=0.5 memory=256MiB".
func (l Limits) String() string {
	if l.IsZero() {
		return "unlimited"
	}
	var parts []string
	if l.NanoCPUs > 0 {
		parts = append(parts, "cpus="+strconv.FormatFloat(float64(l.NanoCPUs)/NanoCPUs, 'f', -1, 64))
	}
	if l.Memory > 0 {
		parts = append(parts, "memory="+units.BytesSize(float64(l.Memory)))
	}
	return strings.Join(parts, " ")
}

// ParseCPU converts a CPU quantity into nanocpus. It accepts fractional core
// counts ("0.5") and Kubernetes style millicores ("500m"). Empty means no
// limit.
func ParseCPU(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	cores, err := parseCores(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid cpu quantity %q: %w", value, err)
	}
	nano := math.Round(cores * NanoCPUs)
	if nano > math.MaxInt64 {
		return 0, fmt.Errorf("invalid cpu quantity %q: exceeds supported range", value)
	}
	return max(int64(nano), 1), nil
}

func parseCores(s string) (float64, error) {
	scale := 1.0
	if lower := strings.ToLower(s); strings.HasSuffix(lower, "m") {
		s = strings.TrimSpace(s[:len(s)-1])
		scale = 1000
	}
	if s == "" {
		return 0, errors.New("missing number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("must be positive")
	}
	return v / scale, nil
}

// ParseMemory converts limits like "512m", "1g" or "256Mi" into bytes. The
// Kubernetes "Ki/Mi/Gi" suffixes are accepted alongside go-units notation.
// Empty means no limit.
func ParseMemory(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	lower := strings.ToLower(trimmed)
	for _, suffix := range []string{"ki", "mi", "gi", "ti", "pi", "ei"} {
		if strings.HasSuffix(lower, suffix) {
			trimmed += "B"
			break
		}
	}
	n, err := units.RAMInBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid memory quantity %q: %w", value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid memory quantity %q: must be positive", value)
	}
	return n, nil
}
