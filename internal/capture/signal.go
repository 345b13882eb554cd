package capture

import "sync"

// Signal is a completion future that resolves exactly once.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// NewSignal returns an unresolved signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Resolve marks the signal complete. Subsequent calls are no-ops.
func (s *Signal) Resolve() {
	s.once.Do(func() { close(s.done) })
}

// Done returns a channel closed once the signal resolves.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Resolved reports whether Resolve has been called.
func (s *Signal) Resolved() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
