package capture

import (
	"context"
	"io"
	"log/slog"
)

// State is the capture state of exactly one running process. It is created
// right before spawn and must not be shared between invocations.
type State struct {
	Buffer    *Buffer
	Logger    *slog.Logger
	ShouldLog bool
	// Forward, when set, receives every recorded line in buffer order.
	Forward func(Line)

	stdout *Signal
	stderr *Signal
}

// NewState creates capture state with one completion signal per redirected
// stream. A nil logger discards output.
func NewState(redirectStdout, redirectStderr bool, logger *slog.Logger, shouldLog bool) *State {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	st := &State{
		Buffer:    NewBuffer(),
		Logger:    logger,
		ShouldLog: shouldLog,
	}
	if redirectStdout {
		st.stdout = NewSignal()
	}
	if redirectStderr {
		st.stderr = NewSignal()
	}
	return st
}

// Signal returns the completion signal for a stream, or nil when the stream
// is not redirected.
func (s *State) Signal(stream Stream) *Signal {
	switch stream {
	case StreamStdout:
		return s.stdout
	case StreamStderr:
		return s.stderr
	default:
		return nil
	}
}

// Signals returns the completion signals of every redirected stream.
func (s *State) Signals() []*Signal {
	out := make([]*Signal, 0, 2)
	if s.stdout != nil {
		out = append(out, s.stdout)
	}
	if s.stderr != nil {
		out = append(out, s.stderr)
	}
	return out
}

// Drained returns a channel closed once every redirected stream resolved.
// With no redirected streams it is closed immediately.
func (s *State) Drained() <-chan struct{} {
	done := make(chan struct{})
	signals := s.Signals()
	go func() {
		defer close(done)
		for _, sig := range signals {
			<-sig.Done()
		}
	}()
	return done
}

// WaitDrained blocks until every redirected stream resolved or ctx is done.
func (s *State) WaitDrained(ctx context.Context) error {
	for _, sig := range s.Signals() {
		select {
		case <-sig.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Record appends a line and forwards it to the logger when enabled. Stdout
// is logged at info, stderr at warn.
func (s *State) Record(stream Stream, text string) Line {
	line := s.Buffer.AppendFunc(stream, text, s.Forward)
	if s.ShouldLog {
		level := slog.LevelInfo
		if stream == StreamStderr {
			level = slog.LevelWarn
		}
		s.Logger.LogAttrs(context.Background(), level, text,
			slog.String("stream", string(stream)),
			slog.Uint64("seq", line.Seq),
		)
	}
	return line
}
