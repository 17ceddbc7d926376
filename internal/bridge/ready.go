package bridge

import "sync"

// Ready is the adapter's availability signal: false until initialization and
// migration application complete, then true forever. It is a one-shot
// broadcast, not a general pub/sub channel — no unsubscribe, no repeated
// flips. Listeners may register from any goroutine.
type Ready struct {
	mu        sync.Mutex
	committed bool
	listeners []func(bool)
}

func newReady() *Ready {
	return &Ready{}
}

// Committed reports whether the signal has fired.
func (r *Ready) Committed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

// Subscribe synchronously delivers the current state to fn, then retains fn
// for exactly one future delivery when the state flips to true. A listener
// registered after the flip only receives the immediate delivery.
func (r *Ready) Subscribe(fn func(ready bool)) {
	r.mu.Lock()
	committed := r.committed
	if !committed {
		r.listeners = append(r.listeners, fn)
	}
	r.mu.Unlock()

	fn(committed)
}

// Commit flips the state to true and notifies every retained listener.
// Exactly one flip occurs per adapter instance; later calls are no-ops.
func (r *Ready) Commit() {
	r.mu.Lock()
	if r.committed {
		r.mu.Unlock()
		return
	}
	r.committed = true
	listeners := r.listeners
	r.listeners = nil
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(true)
	}
}
