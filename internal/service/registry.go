package service

import (
	"sync"
	"time"

	transporttypes "telerelay/pkg/transport/types"
)

// Registry is the process-wide map of live transport handles keyed by
// user id, together with the per-user recovery bookkeeping the health
// sweep uses to throttle reconnect storms. All mutation is single-step
// under the lock so no caller can observe a half-registered handle.
type Registry struct {
	mu               sync.RWMutex
	handles          map[int64]transporttypes.Handle
	recoveryFailures map[int64]int
	suspendedUntil   map[int64]time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		handles:          make(map[int64]transporttypes.Handle),
		recoveryFailures: make(map[int64]int),
		suspendedUntil:   make(map[int64]time.Time),
	}
}

// Put registers a handle for a user, replacing any previous one. The
// displaced handle is returned so the caller can close it.
func (r *Registry) Put(userID int64, handle transporttypes.Handle) transporttypes.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.handles[userID]
	r.handles[userID] = handle
	return previous
}

// Get returns the registered handle for a user, or nil.
func (r *Registry) Get(userID int64) transporttypes.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[userID]
}

// Remove deregisters and returns the handle for a user, or nil if none
// was registered. The caller owns closing it.
func (r *Registry) Remove(userID int64) transporttypes.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := r.handles[userID]
	delete(r.handles, userID)
	return handle
}

// Users returns the ids of all users with a registered handle.
func (r *Registry) Users() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]int64, 0, len(r.handles))
	for userID := range r.handles {
		users = append(users, userID)
	}
	return users
}

// Count returns the number of registered handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// RecordRecoveryFailure increments the consecutive failure counter for
// a user. When the counter reaches maxAttempts the user is suspended
// for the cool-down window and the counter resets. Returns the new
// counter value and whether the user was just suspended.
func (r *Registry) RecordRecoveryFailure(userID int64, maxAttempts int, cooldown time.Duration) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recoveryFailures[userID]++
	failures := r.recoveryFailures[userID]

	if failures >= maxAttempts {
		r.suspendedUntil[userID] = time.Now().Add(cooldown)
		r.recoveryFailures[userID] = 0
		return failures, true
	}
	return failures, false
}

// ResetRecovery clears the failure counter and any suspension for a
// user after a successful recovery.
func (r *Registry) ResetRecovery(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recoveryFailures, userID)
	delete(r.suspendedUntil, userID)
}

// IsSuspended reports whether recovery attempts for a user are
// currently suppressed. An elapsed suspension is cleared on read.
func (r *Registry) IsSuspended(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	until, exists := r.suspendedUntil[userID]
	if !exists {
		return false
	}
	if time.Now().After(until) {
		delete(r.suspendedUntil, userID)
		return false
	}
	return true
}
