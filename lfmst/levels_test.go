package lfmst

import (
	"testing"

	"github.com/go-quicktest/qt"
)

// fixedLevels replaces the real xorshift levelSource in tests that need
// deterministic root growth instead of a geometric distribution.
type fixedLevels struct {
	seq []int
	i   int
}

func (f *fixedLevels) randomLevel(tid int) int {
	v := f.seq[f.i%len(f.seq)]
	f.i++
	return v
}

// TestRootGrowsWithInjectedLevels drives three Adds through a level
// sequence of 5, 7, 3 and checks the root settles at height 7 — the
// tallest level requested, since increaseRootHeight only ever grows.
func TestRootGrowsWithInjectedLevels(t *testing.T) {
	s := NewSet[int32](1, func(v int32) int32 { return v })
	s.tree.rng = &fixedLevels{seq: []int{5, 7, 3}}

	for i := int32(0); i < 3; i++ {
		qt.Assert(t, qt.IsTrue(s.Add(0, i)))
	}

	qt.Assert(t, qt.Equals(s.tree.loadRoot().Height, 7))
}

func TestLevelGeneratorNeverPanics(t *testing.T) {
	g := newLevelGenerator(4)
	for tid := 0; tid < 4; tid++ {
		for i := 0; i < 5000; i++ {
			level := g.randomLevel(tid)
			qt.Assert(t, qt.IsTrue(level >= 0))
		}
	}
}
