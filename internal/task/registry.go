package task

import "sync"

// Registry tracks in-flight task identifiers so that at most one pipeline
// run operates on a given remote repository at a time. Acquire and the
// membership check are a single atomic step; there is no window where two
// callers both observe "not in flight".
type Registry struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{inFlight: make(map[string]struct{})}
}

// Acquire marks taskID in flight. It returns false if the task is already
// in flight; the caller must reject the request rather than queue it.
func (r *Registry) Acquire(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[taskID]; busy {
		return false
	}
	r.inFlight[taskID] = struct{}{}
	return true
}

// Release removes taskID from the in-flight set. Releasing an id that is
// not held is a no-op.
func (r *Registry) Release(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, taskID)
}

// InFlight reports whether taskID is currently held.
func (r *Registry) InFlight(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.inFlight[taskID]
	return busy
}
