package lfmst_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/rogpeppe/lfmst/lfmst"
)

func identity(v int32) int32 { return v }

// TestSequentialAddContainsRemove is the single-thread, sequential
// sanity sweep: every key added is found, then every key removed is
// gone, over a single goroutine's worth of ids.
func TestSequentialAddContainsRemove(t *testing.T) {
	const n = 10000
	s := lfmst.NewSet[int32](1, identity)

	for i := int32(0); i < n; i++ {
		qt.Assert(t, qt.IsTrue(s.Add(0, i)))
	}
	for i := int32(0); i < n; i++ {
		qt.Assert(t, qt.IsTrue(s.Contains(0, i)))
		qt.Assert(t, qt.IsFalse(s.Add(0, i)))
	}
	for i := int32(0); i < n; i++ {
		qt.Assert(t, qt.IsTrue(s.Remove(0, i)))
		qt.Assert(t, qt.IsFalse(s.Contains(0, i)))
	}
}

// TestConcurrentDisjointRanges has each goroutine own a disjoint key
// range, so success is determined purely by whether cross-thread
// structural sharing (splits, slides, root growth) corrupts another
// thread's keys.
func TestConcurrentDisjointRanges(t *testing.T) {
	const threads = 8
	const n = 10000

	s := lfmst.NewSet[int32](threads, identity)

	var wg sync.WaitGroup
	wg.Add(threads)
	for tid := 0; tid < threads; tid++ {
		go func(tid int) {
			defer wg.Done()
			base := int32(tid * n)
			for i := int32(0); i < n; i++ {
				qt.Assert(t, qt.IsTrue(s.Add(tid, base+i)))
			}
		}(tid)
	}
	wg.Wait()

	for tid := 0; tid < threads; tid++ {
		base := int32(tid * n)
		for i := int32(0); i < n; i++ {
			qt.Assert(t, qt.IsTrue(s.Contains(tid, base+i)))
		}
	}
}

// TestContendedSingleKey hammers one key from every thread at once.
// Every successful Add must eventually be matched by exactly one
// successful Remove, since the key can only be "present" once per add.
func TestContendedSingleKey(t *testing.T) {
	const threads = 8
	const iterations = 10000
	const key = int32(42)

	s := lfmst.NewSet[int32](threads, identity)

	var added, removed int64
	var wg sync.WaitGroup
	wg.Add(threads)
	for tid := 0; tid < threads; tid++ {
		go func(tid int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if s.Add(tid, key) {
					atomic.AddInt64(&added, 1)
				}
				if s.Remove(tid, key) {
					atomic.AddInt64(&removed, 1)
				}
			}
		}(tid)
	}
	wg.Wait()

	qt.Assert(t, qt.Equals(added, removed))
	qt.Assert(t, qt.IsFalse(s.Contains(0, key)))
}
