package call

import (
	"context"
	"sync"
)

// Handle exposes the operations the registry may invoke on a live call
// without owning its state.
type Handle struct {
	Session *Session
	Cancel  func()
}

// Registry maps call identifiers to live call sessions. It is the only
// state shared across concurrently handled calls; each entry is owned by
// exactly one bridge goroutine, so no transactional semantics are needed.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*trackedCall
	wg    sync.WaitGroup
}

type trackedCall struct {
	handle Handle
	once   sync.Once
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*trackedCall)}
}

// Register inserts a call under its call identifier and returns an
// idempotent unregister func. A stale entry under the same identifier is
// displaced; a call ID maps to at most one live session at any time.
func (r *Registry) Register(callID string, h Handle) (unregister func()) {
	if r == nil {
		return func() {}
	}

	entry := &trackedCall{handle: h}

	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]*trackedCall)
	}
	old := r.calls[callID]
	r.calls[callID] = entry
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		r.unregister(callID, old)
	}

	return func() { r.unregister(callID, entry) }
}

func (r *Registry) unregister(callID string, entry *trackedCall) {
	if r == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		r.mu.Lock()
		if r.calls != nil && r.calls[callID] == entry {
			delete(r.calls, callID)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

// Lookup returns the live session for a call ID, if registered.
func (r *Registry) Lookup(callID string) (*Session, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.calls[callID]
	if !ok || entry.handle.Session == nil {
		return nil, false
	}
	return entry.handle.Session, true
}

// Count returns the number of live calls. The health endpoint reads this;
// an approximate value during churn is acceptable.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// CancelAll tears down every live call, used when draining on shutdown.
func (r *Registry) CancelAll() (canceled int) {
	if r == nil {
		return 0
	}

	var cancels []func()
	r.mu.Lock()
	for _, entry := range r.calls {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered call has unregistered or the context
// expires. Returns false on timeout.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	if ctx == nil {
		r.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
