package cliutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/runcap/internal/capture"
)

func TestEncodeLineInfersLevel(t *testing.T) {
	tests := []struct {
		name     string
		stream   capture.Stream
		message  string
		expected string
	}{
		{name: "errorToken", stream: capture.StreamStdout, message: "[ERROR] failed to start", expected: "error"},
		{name: "warningToken", stream: capture.StreamStdout, message: "WARNING disk almost full", expected: "warn"},
		{name: "debugToken", stream: capture.StreamStderr, message: "debug: cache miss", expected: "debug"},
		{name: "stdoutDefaultsInfo", stream: capture.StreamStdout, message: "build started", expected: "info"},
		{name: "stderrDefaultsWarn", stream: capture.StreamStderr, message: "deprecated flag", expected: "warn"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			var errBuf bytes.Buffer

			line := capture.Line{Seq: 7, Stream: tc.stream, Text: tc.message, Time: time.Unix(0, 0)}
			EncodeLine(json.NewEncoder(&out), &errBuf, "run-1", line)

			if errBuf.Len() != 0 {
				t.Fatalf("unexpected stderr output: %s", errBuf.String())
			}

			var record LogRecord
			if err := json.Unmarshal(out.Bytes(), &record); err != nil {
				t.Fatalf("failed to unmarshal log record: %v", err)
			}

			if record.Level != tc.expected {
				t.Fatalf("expected level %q, got %q", tc.expected, record.Level)
			}
			if record.RunID != "run-1" || record.Seq != 7 || record.Stream != string(tc.stream) {
				t.Fatalf("unexpected record identity: %+v", record)
			}
		})
	}
}

func TestEncodeLineFillsTimestamp(t *testing.T) {
	var out bytes.Buffer
	EncodeLine(json.NewEncoder(&out), &bytes.Buffer{}, "run-2", capture.Line{Text: "hello"})

	var record LogRecord
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("failed to unmarshal log record: %v", err)
	}
	if record.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be populated")
	}
}

func TestNewLogRecordRedactsSecrets(t *testing.T) {
	line := capture.Line{
		Stream: capture.StreamStdout,
		Text:   `sending ${API_TOKEN} AWS_SECRET_ACCESS_KEY="super-secret"`,
	}

	record := NewLogRecord("run-3", line)

	if strings.Contains(record.Message, "${API_TOKEN}") {
		t.Fatalf("expected template placeholder to be redacted, got %q", record.Message)
	}
	if strings.Contains(record.Message, "super-secret") {
		t.Fatalf("expected secret value to be redacted, got %q", record.Message)
	}
	if !strings.Contains(record.Message, `AWS_SECRET_ACCESS_KEY="[redacted]"`) {
		t.Fatalf("expected known secret key redacted, got %q", record.Message)
	}
}

func TestWriteLinePrefixesStderr(t *testing.T) {
	var out bytes.Buffer
	WriteLine(&out, capture.Line{Stream: capture.StreamStderr, Text: "boom"})
	WriteLine(&out, capture.Line{Stream: capture.StreamStdout, Text: "ok"})
	if got := out.String(); got != "[stderr] boom\nok\n" {
		t.Fatalf("unexpected output %q", got)
	}
}
