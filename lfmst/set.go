package lfmst

import "github.com/rogpeppe/lfmst/key"

// ConcurrentSet is the public lock-free ordered set over values of type
// V. Every method takes an explicit tid in [0, threads): goroutines have
// no stable identity to hang a thread-local hazard slot or PRNG state
// off, so callers own a dense per-goroutine id for the goroutine's
// lifetime instead. Reusing a tid across two goroutines that may run
// concurrently is not safe; owning a worker-pool index for the pool's
// lifetime is the intended usage.
type ConcurrentSet[V any] struct {
	tree *Tree[V]
}

// NewSet builds a ConcurrentSet sized for threads concurrent callers.
// hash must be a pure, stable function from V to its total order: equal
// values must hash equal, and two distinct values that happen to hash
// equal are treated as the same set member.
func NewSet[V any](threads int, hash func(V) int32) *ConcurrentSet[V] {
	return &ConcurrentSet[V]{tree: newTree[V](threads, hash)}
}

// Contains reports whether v is a member of the set.
func (s *ConcurrentSet[V]) Contains(tid int, v V) bool {
	return s.tree.Contains(tid, key.New(s.tree.hash(v)))
}

// Add inserts v, reporting whether it was not already present.
func (s *ConcurrentSet[V]) Add(tid int, v V) bool {
	return s.tree.Add(tid, key.New(s.tree.hash(v)))
}

// Remove deletes v, reporting whether it was present.
func (s *ConcurrentSet[V]) Remove(tid int, v V) bool {
	return s.tree.Remove(tid, key.New(s.tree.hash(v)))
}
