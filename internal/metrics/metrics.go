// Package metrics exposes Prometheus instruments for process runs.
package metrics

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "runcap"

var (
	registry = prometheus.NewRegistry()

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Total number of process runs by runtime and terminal outcome.",
	}, []string{"runtime", "outcome"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time from spawn to terminal state in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"runtime"})

	killsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "kills_total",
		Help:      "Process tree kills issued by the exit coordinator.",
	}, []string{"runtime", "reason"})

	capturedLines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "captured_lines_total",
		Help:      "Output lines captured per stream.",
	}, []string{"stream"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata for the running runcap binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(runsTotal, runDuration, killsTotal, capturedLines, buildInfo)
}

// Registry returns the Prometheus registry containing all runcap metrics.
func Registry() *prometheus.Registry {
	return registry
}

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// ObserveRun records one finished run and its duration.
func ObserveRun(runtimeName, outcome string, d time.Duration) {
	rt := label(runtimeName)
	runsTotal.WithLabelValues(rt, label(outcome)).Inc()
	if d > 0 {
		runDuration.WithLabelValues(rt).Observe(d.Seconds())
	}
}

// IncKill counts one tree kill issued for reason.
func IncKill(runtimeName, reason string) {
	killsTotal.WithLabelValues(label(runtimeName), label(reason)).Inc()
}

// AddCapturedLines adds n captured lines for a stream.
func AddCapturedLines(stream string, n int) {
	if n <= 0 {
		return
	}
	capturedLines.WithLabelValues(label(stream)).Add(float64(n))
}

// WriteTextfile dumps the registry in the text exposition format to path,
// suitable for the node_exporter textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
