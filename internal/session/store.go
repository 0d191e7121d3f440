package session

import (
	"sync"

	"github.com/wolfeidau/blogify/internal/models"
)

// Snapshot is a consistent view of the store.
type Snapshot struct {
	State   models.SessionState
	Loading bool
}

// Listener is notified with the new snapshot after every change.
type Listener func(Snapshot)

// Store holds the current SessionState and the loading flag.
// It is a plain value holder: the Reconciler and explicit login/logout calls
// write to it, everything else only reads or subscribes.
type Store struct {
	mu        sync.RWMutex
	state     models.SessionState
	loading   bool
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a store in the Unresolved state with loading set.
func NewStore() *Store {
	return &Store{
		state:     models.Unresolved(),
		loading:   true,
		listeners: make(map[int]Listener),
	}
}

// Get returns the current state.
func (s *Store) Get() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Loading reports whether resolution is still in progress.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loading
}

// Snapshot returns state and loading together.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{State: s.state, Loading: s.loading}
}

// Set replaces the state. Returning to Unresolved after a resolution is
// ignored and reported as false.
func (s *Store) Set(state models.SessionState) bool {
	return s.update(func() bool {
		if !state.IsResolved() && s.state.IsResolved() {
			return false
		}
		s.state = state
		return true
	})
}

// SetLoading updates the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.update(func() bool {
		if s.loading == loading {
			return false
		}
		s.loading = loading
		return true
	})
}

// Resolve sets a resolved state and clears loading with a single notification.
func (s *Store) Resolve(state models.SessionState) bool {
	return s.ResolveIf(func() bool { return true }, state)
}

// ResolveIf is Resolve guarded by cond. cond runs under the store's write lock,
// so no other write can land between the check and the update. cond must not
// call back into the store.
func (s *Store) ResolveIf(cond func() bool, state models.SessionState) bool {
	return s.update(func() bool {
		if !state.IsResolved() || !cond() {
			return false
		}
		s.state = state
		s.loading = false
		return true
	})
}

// Subscribe registers fn for change notifications and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// update applies fn under the lock and notifies listeners outside it when fn reports a change.
func (s *Store) update(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	snap := Snapshot{State: s.state, Loading: s.loading}
	listeners := make([]Listener, 0, len(s.listeners))
	if changed {
		for _, l := range s.listeners {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return changed
}
