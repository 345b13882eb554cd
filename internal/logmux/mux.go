// Package logmux merges the output of concurrently running pumps into a
// single ordered queue drained by one consumer.
package logmux

import (
	"context"
	"iter"
	"sync"

	"github.com/Paintersrp/runcap/internal/capture"
)

// Mux fans in lines from up to two pumps and hands them to one consumer in
// the order they were sent. The queue is unbounded so a slow consumer never
// stalls a pump, and therefore never back-pressures the child process.
type Mux struct {
	mu     sync.Mutex
	queue  []capture.Line
	closed bool

	notify    chan struct{}
	inputs    sync.WaitGroup
	closeOnce sync.Once
}

// New constructs an empty mux.
func New() *Mux {
	return &Mux{notify: make(chan struct{}, 1)}
}

// Producer is the sending half handed to one pump.
type Producer struct {
	mux  *Mux
	once sync.Once
}

// Add registers a new producer. The mux is not closed until every producer
// called Done.
func (m *Mux) Add() *Producer {
	m.inputs.Add(1)
	return &Producer{mux: m}
}

// Send enqueues a line.
func (p *Producer) Send(line capture.Line) {
	p.mux.push(line)
}

// Done marks the producer finished. Extra calls are ignored.
func (p *Producer) Done() {
	p.once.Do(p.mux.inputs.Done)
}

// Close waits for all producers to finish and then marks the queue closed.
// Items already queued remain readable. Close is idempotent.
func (m *Mux) Close() {
	m.closeOnce.Do(func() {
		m.inputs.Wait()
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		m.wake()
	})
}

// Closed reports whether the queue has been closed.
func (m *Mux) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Pending reports the number of queued, unread lines.
func (m *Mux) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Next blocks until a line is available, the queue is closed and empty, or
// ctx is done. ok is false once the queue is exhausted.
func (m *Mux) Next(ctx context.Context) (line capture.Line, ok bool, err error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			line = m.queue[0]
			m.queue[0] = capture.Line{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return line, true, nil
		}
		if m.closed {
			m.mu.Unlock()
			return capture.Line{}, false, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-ctx.Done():
			return capture.Line{}, false, ctx.Err()
		}
	}
}

// Lines returns a lazy sequence over the queue. It ends once the queue is
// closed and drained. The sequence is not restartable: ranging over it again
// after it ended yields nothing.
func (m *Mux) Lines() iter.Seq[capture.Line] {
	return func(yield func(capture.Line) bool) {
		for {
			line, ok, _ := m.Next(context.Background())
			if !ok || !yield(line) {
				return
			}
		}
	}
}

func (m *Mux) push(line capture.Line) {
	m.mu.Lock()
	m.queue = append(m.queue, line)
	m.mu.Unlock()
	m.wake()
}

func (m *Mux) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
