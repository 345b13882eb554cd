package capture

import (
	"sync"
	"time"
)

// Buffer is an ordered, append-only line buffer safe for concurrent appends.
// The arrival sequence is assigned under the same lock that performs the
// append, so buffer order is the order in which pumps delivered lines.
type Buffer struct {
	mu    sync.Mutex
	lines []Line
	now   func() time.Time
}

// NewBuffer constructs an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{now: time.Now}
}

// Append records text from the given stream and returns the stored line.
func (b *Buffer) Append(stream Stream, text string) Line {
	return b.AppendFunc(stream, text, nil)
}

// AppendFunc records text and, while still holding the append lock, hands
// the stored line to fn. Downstream queues fed from fn therefore observe
// lines in exactly the buffer's order. fn must not block.
func (b *Buffer) AppendFunc(stream Stream, text string, fn func(Line)) Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	line := Line{
		Seq:    uint64(len(b.lines)) + 1,
		Stream: stream,
		Text:   text,
		Time:   b.now(),
	}
	b.lines = append(b.lines, line)
	if fn != nil {
		fn(line)
	}
	return line
}

// Len reports the number of captured lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Lines returns a copy of every captured line in arrival order.
func (b *Buffer) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Line(nil), b.lines...)
}

// Strings returns the display form of every captured line.
func (b *Buffer) Strings() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	for i, line := range b.lines {
		out[i] = line.Display()
	}
	return out
}

// Tail returns the display form of at most the last n lines. It copies only
// the tail, so the cost does not depend on the total buffer size.
func (b *Buffer) Tail(n int) []string {
	if n <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	start := len(b.lines) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(b.lines)-start)
	for _, line := range b.lines[start:] {
		out = append(out, line.Display())
	}
	return out
}
