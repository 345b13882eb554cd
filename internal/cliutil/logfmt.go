package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Paintersrp/runcap/internal/capture"
)

// LogRecord is one captured output line ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	RunID     string    `json:"run_id"`
	Stream    string    `json:"stream"`
	Seq       uint64    `json:"seq"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
}

// NewLogRecord converts a captured line into a structured record. Stderr
// defaults to warn and stdout to info unless the text carries its own level
// token. Secrets are redacted from the message.
func NewLogRecord(runID string, line capture.Line) LogRecord {
	level := inferLogLevel(line.Text)
	if level == "" {
		level = "info"
		if line.Stream == capture.StreamStderr {
			level = "warn"
		}
	}
	return LogRecord{
		Timestamp: line.Time,
		RunID:     runID,
		Stream:    string(line.Stream),
		Seq:       line.Seq,
		Level:     level,
		Message:   RedactSecrets(line.Text),
	}
}

var levelTokenPattern = regexp.MustCompile(`(?i)\b(error|warn|warning|info|debug)\b`)

func inferLogLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	switch strings.ToLower(matches[1]) {
	case "error":
		return "error"
	case "warn", "warning":
		return "warn"
	case "info":
		return "info"
	case "debug":
		return "debug"
	default:
		return ""
	}
}

// EncodeLine encodes a captured line to JSON, reporting errors to stderr.
func EncodeLine(enc *json.Encoder, stderr io.Writer, runID string, line capture.Line) {
	if enc == nil {
		return
	}
	record := NewLogRecord(runID, line)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode line: %v\n", err)
	}
}

// WriteLine prints a captured line in plain form. Stderr lines keep their
// prefix so the two streams stay distinguishable.
func WriteLine(w io.Writer, line capture.Line) {
	fmt.Fprintln(w, line.Display())
}
