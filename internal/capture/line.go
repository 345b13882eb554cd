// Package capture holds the per-invocation capture state shared by the two
// output pumps and the exit coordinator.
package capture

import "time"

// Stream identifies which redirected pipe produced a line.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// StderrPrefix tags stderr lines in the flattened result.
const StderrPrefix = "[stderr] "

// Line is a single captured output line.
type Line struct {
	// Seq is the arrival position across both streams, starting at 1.
	Seq    uint64
	Stream Stream
	Text   string
	Time   time.Time
}

// Display renders the line the way it appears in results and diagnostics:
// stdout verbatim, stderr with StderrPrefix.
func (l Line) Display() string {
	if l.Stream == StreamStderr {
		return StderrPrefix + l.Text
	}
	return l.Text
}
