// Package refset is a second, independently implemented concurrent set
// (unordered: it answers membership only) used only as a test oracle:
// lfmst's property tests cross check ConcurrentSet[V] against it. It
// adapts package ctrie's generation-stamped CAS hash trie — a different
// lock-free strategy entirely from lfmst's CAS-on-Contents multiway tree —
// trimmed to the Add/Remove/Contains/Len surface those tests need; ctrie
// carries no point-in-time Clone/RClone/Iterator, since no scenario needs
// a snapshot or ordered traversal, only membership.
//
// Using a structurally different lock-free set as the oracle, rather
// than a single mutex-guarded map, means a bug shared between the
// system under test and its oracle is far less likely than if both were
// built the same way.
package refset

import "github.com/rogpeppe/lfmst/ctrie"

// Set is a concurrent set of int32 — the hash space lfmst.ConcurrentSet
// itself operates over — built on ctrie.Map[int32, struct{}].
type Set struct {
	m *ctrie.Map[int32, struct{}]
}

// New returns an empty Set.
func New() *Set {
	return &Set{
		m: ctrie.NewWithFuncs[int32, struct{}](
			func(a, b int32) bool { return a == b },
			func(k int32) uint64 { return uint64(uint32(k)) },
		),
	}
}

// Add inserts k, reporting whether it was not already present.
func (s *Set) Add(k int32) bool {
	_, existed := s.m.Get(k)
	s.m.Set(k, struct{}{})
	return !existed
}

// Remove deletes k, reporting whether it was present.
func (s *Set) Remove(k int32) bool {
	_, existed := s.m.Delete(k)
	return existed
}

// Contains reports whether k is a member of the set.
func (s *Set) Contains(k int32) bool {
	_, ok := s.m.Get(k)
	return ok
}

// Len reports the current number of members.
func (s *Set) Len() int {
	return s.m.Len()
}
