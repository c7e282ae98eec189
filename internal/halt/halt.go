// Package halt provides the small embeddable shutdown primitive that
// client2/connection.go gets from katzenpost's core/worker.Worker: a
// HaltCh() that every blocking loop selects on, and a Halt() that is safe
// to call more than once. core/worker itself is not part of this module
// (it pulls in the rest of that package's worker-pool scheduling, which
// nothing here needs); this is the same embeddable shape, sized for one
// goroutine group instead of a pool.
package halt

import "sync"

// Halt is embedded by value into a type that owns one or more goroutines.
// Callers select on HaltCh() in their loop bodies and call Halt() from
// Close; Halt() may be called from multiple goroutines and multiple times.
type Halt struct {
	once sync.Once
	ch   chan struct{}
	mu   sync.Mutex
}

func (h *Halt) lazyInit() chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ch == nil {
		h.ch = make(chan struct{})
	}
	return h.ch
}

// HaltCh returns the channel that is closed when Halt is called.
func (h *Halt) HaltCh() <-chan struct{} {
	return h.lazyInit()
}

// Halt closes the halt channel, signaling every goroutine selecting on
// HaltCh() to stop. Safe to call from multiple goroutines and more than
// once.
func (h *Halt) Halt() {
	ch := h.lazyInit()
	h.once.Do(func() {
		close(ch)
	})
}

// IsHalted reports whether Halt has already been called.
func (h *Halt) IsHalted() bool {
	select {
	case <-h.lazyInit():
		return true
	default:
		return false
	}
}
