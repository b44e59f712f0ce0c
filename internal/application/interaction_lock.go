package application

import "sync"

// interactionLock is the single-slot mutual-exclusion guard around
// interactive sign-in flows: at most one may run process-wide, and a second
// attempt fails immediately instead of queuing.
type interactionLock struct {
	mu   sync.Mutex
	held bool
}

// acquire claims the slot or reports ErrInteractionConflict when it is taken.
func (l *interactionLock) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return ErrInteractionConflict
	}
	l.held = true
	return nil
}

// release frees the slot. Releasing an unheld lock is a no-op so that it can
// be deferred on every exit path.
func (l *interactionLock) release() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}
