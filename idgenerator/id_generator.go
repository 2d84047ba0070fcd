package idgenerator

import "sync/atomic"

// IdGenerator hands out monotonically increasing uint64 session IDs in a
// concurrency-safe manner. The first call to Id returns the starting value;
// IDs are never reused, even after the session that held one is gone.
type IdGenerator struct {
	next atomic.Uint64
}

// NewIdGenerator creates an IdGenerator whose first Id() is first.
//
// Parameters:
//   - first: The first ID to hand out; relay servers use 0
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(first uint64) *IdGenerator {
	gen := &IdGenerator{}
	gen.next.Store(first)
	return gen
}

// Id returns the next unique ID.
//
// Returns:
//   - The next uint64 ID
func (l *IdGenerator) Id() uint64 {
	return l.next.Add(1) - 1
}

// Issued returns the value the next call to Id will return. For a generator
// started at 0 this is the number of IDs handed out so far.
func (l *IdGenerator) Issued() uint64 {
	return l.next.Load()
}
