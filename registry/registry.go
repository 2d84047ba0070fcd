// Package registry provides the connection registry shared by the accept loop,
// the session workers and the broadcast engine.
package registry

import (
	"slices"
	"sync"
)

// Entry is anything the registry can hold. The ID is the identity used for
// lookup and removal and must not change while the entry is registered.
type Entry interface {
	ID() uint64
}

// Registry is an insertion-ordered collection of entries keyed by ID. It is
// safe for concurrent use: mutations take the write lock, reads take the read
// lock. The lock only protects the collection itself, never the entries.
//
// Entries are removed by identity rather than by position, so concurrent
// inserts and removals can never make a session remove somebody else.
type Registry[E Entry] struct {
	entries []E
	index   map[uint64]struct{}
	sync.RWMutex
}

// NewRegistry creates and returns a new empty Registry.
func NewRegistry[E Entry]() *Registry[E] {
	return &Registry[E]{index: make(map[uint64]struct{})}
}

// Insert appends e. If an entry with the same ID is already registered the
// registry is left unchanged, so an ID appears at most once.
//
// Parameters:
//   - e: The entry to add
//
// Returns:
//   - The position of the entry: the registry length before insertion, or
//     the existing position when the ID was already present
func (r *Registry[E]) Insert(e E) int {
	r.Lock()
	defer r.Unlock()

	id := e.ID()
	if _, ok := r.index[id]; ok {
		return r.position(id)
	}

	pos := len(r.entries)
	r.entries = append(r.entries, e)
	r.index[id] = struct{}{}
	return pos
}

// Remove deletes the entry with the given ID. Removing an absent ID is a no-op.
//
// Parameters:
//   - id: The ID of the entry to remove
//
// Returns:
//   - true if an entry was removed, false otherwise
func (r *Registry[E]) Remove(id uint64) bool {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.index[id]; !ok {
		return false
	}

	pos := r.position(id)
	r.entries = slices.Delete(r.entries, pos, pos+1)
	delete(r.index, id)
	return true
}

// position returns the index of id in entries; caller must hold the lock.
func (r *Registry[E]) position(id uint64) int {
	return slices.IndexFunc(r.entries, func(e E) bool { return e.ID() == id })
}

// Snapshot returns a point-in-time copy of all entries in insertion order.
// Later mutations of the registry are not reflected in the copy.
//
// Returns:
//   - A new slice holding the registered entries
func (r *Registry[E]) Snapshot() []E {
	r.RLock()
	defer r.RUnlock()

	return slices.Clone(r.entries)
}

// Get returns the entry registered under id.
//
// Parameters:
//   - id: The ID to look up
//
// Returns:
//   - The entry and true if found, or a zero value and false otherwise
func (r *Registry[E]) Get(id uint64) (E, bool) {
	r.RLock()
	defer r.RUnlock()

	if _, ok := r.index[id]; !ok {
		var zero E
		return zero, false
	}

	return r.entries[r.position(id)], true
}

// Contains reports whether an entry with the given ID is registered.
func (r *Registry[E]) Contains(id uint64) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.index[id]
	return ok
}

// Len returns the number of registered entries.
func (r *Registry[E]) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.entries)
}
