package lfmst_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/rogpeppe/lfmst/internal/refset"
	"github.com/rogpeppe/lfmst/lfmst"
)

// TestRandomAgainstReference replays the same randomly chosen sequence
// of Add/Remove/Contains calls against ConcurrentSet and against an
// independently implemented reference set, asserting both report the
// same answer at every step. A fixed seed makes a failure reproducible.
func TestRandomAgainstReference(t *testing.T) {
	const n = 10000
	const keySpace = 2000

	rng := rand.New(rand.NewSource(42))
	s := lfmst.NewSet[int32](1, identity)
	ref := refset.New()

	for i := 0; i < n; i++ {
		v := rng.Int31n(keySpace)
		switch rng.Intn(3) {
		case 0:
			qt.Assert(t, qt.Equals(s.Add(0, v), ref.Add(v)))
		case 1:
			qt.Assert(t, qt.Equals(s.Remove(0, v), ref.Remove(v)))
		default:
			qt.Assert(t, qt.Equals(s.Contains(0, v), ref.Contains(v)))
		}
	}
}

// TestMixedWorkloadAgainstReference runs a concurrent 20/10/70
// add/remove/contains workload across several threads. Mutating calls
// (add, remove) are paired atomically with the matching call on the
// reference set under a single lock, so the reference mirrors exactly
// one valid linearization of the mutation history; membership reads run
// fully unlocked and race against it, exercising real concurrent
// traversal of the tree under contention. Final membership is checked
// across the whole key space once every goroutine has finished.
func TestMixedWorkloadAgainstReference(t *testing.T) {
	const threads = 4
	const iterations = 10000
	const keySpace = 500

	s := lfmst.NewSet[int32](threads, identity)
	ref := refset.New()
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(threads)
	for tid := 0; tid < threads; tid++ {
		go func(tid int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(1000 + tid)))
			for i := 0; i < iterations; i++ {
				v := rng.Int31n(keySpace)
				switch r := rng.Intn(100); {
				case r < 20:
					mu.Lock()
					s.Add(tid, v)
					ref.Add(v)
					mu.Unlock()
				case r < 30:
					mu.Lock()
					s.Remove(tid, v)
					ref.Remove(v)
					mu.Unlock()
				default:
					s.Contains(tid, v)
				}
			}
		}(tid)
	}
	wg.Wait()

	for v := int32(0); v < keySpace; v++ {
		qt.Assert(t, qt.Equals(s.Contains(0, v), ref.Contains(v)))
	}
}
