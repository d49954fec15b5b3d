/*
Copyright 2015 Workiva, LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

 http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ctrie

import (
	"bytes"
	"hash/maphash"
	"strconv"
	"sync"
	"testing"
	"time"
)

var testSeed = maphash.MakeSeed()

func testHash(key []byte) uint64 {
	var h maphash.Hash
	h.SetSeed(testSeed)
	h.Write(key)
	return h.Sum64()
}

func TestCtrie(t *testing.T) {
	ctrie := NewWithFuncs[[]byte, string](bytes.Equal, testHash)

	_, ok := ctrie.Get([]byte("foo"))
	assertFalse(t, ok)

	ctrie.Set([]byte("foo"), "bar")
	val, ok := ctrie.Get([]byte("foo"))
	assertTrue(t, ok)
	assertEqual(t, "bar", val)

	ctrie.Set([]byte("fooooo"), "baz")
	val, ok = ctrie.Get([]byte("foo"))
	assertTrue(t, ok)
	assertEqual(t, "bar", val)
	val, ok = ctrie.Get([]byte("fooooo"))
	assertTrue(t, ok)
	assertEqual(t, "baz", val)

	for i := 0; i < 100; i++ {
		ctrie.Set([]byte(strconv.Itoa(i)), "blah")
	}
	for i := 0; i < 100; i++ {
		val, ok = ctrie.Get([]byte(strconv.Itoa(i)))
		assertTrue(t, ok)
		assertEqual(t, "blah", val)
	}

	val, ok = ctrie.Get([]byte("foo"))
	assertTrue(t, ok)
	assertEqual(t, "bar", val)
	ctrie.Set([]byte("foo"), "qux")
	val, ok = ctrie.Get([]byte("foo"))
	assertTrue(t, ok)
	assertEqual(t, "qux", val)

	val, ok = ctrie.Delete([]byte("foo"))
	assertTrue(t, ok)
	assertEqual(t, "qux", val)

	_, ok = ctrie.Delete([]byte("foo"))
	assertFalse(t, ok)

	val, ok = ctrie.Delete([]byte("fooooo"))
	assertTrue(t, ok)
	assertEqual(t, "baz", val)

	for i := 0; i < 100; i++ {
		ctrie.Delete([]byte(strconv.Itoa(i)))
	}
}

func TestSetLNode(t *testing.T) {
	ctrie := NewWithFuncs[[]byte, int](bytes.Equal, func([]byte) uint64 { return 0 })

	for i := 0; i < 10; i++ {
		ctrie.Set([]byte(strconv.Itoa(i)), i)
	}

	for i := 0; i < 10; i++ {
		val, ok := ctrie.Get([]byte(strconv.Itoa(i)))
		assertTrue(t, ok)
		assertEqual(t, i, val)
	}
	_, ok := ctrie.Get([]byte("11"))
	assertFalse(t, ok)

	for i := 0; i < 10; i++ {
		val, ok := ctrie.Delete([]byte(strconv.Itoa(i)))
		assertTrue(t, ok)
		assertEqual(t, i, val)
	}
}

func TestSetTNode(t *testing.T) {
	ctrie := NewWithFuncs[[]byte, int](bytes.Equal, testHash)

	for i := 0; i < 10000; i++ {
		ctrie.Set([]byte(strconv.Itoa(i)), i)
	}

	for i := 0; i < 5000; i++ {
		ctrie.Delete([]byte(strconv.Itoa(i)))
	}

	for i := 0; i < 10000; i++ {
		ctrie.Set([]byte(strconv.Itoa(i)), i)
	}

	for i := 0; i < 10000; i++ {
		val, ok := ctrie.Get([]byte(strconv.Itoa(i)))
		assertTrue(t, ok)
		assertEqual(t, i, val)
	}
}

func TestConcurrency(t *testing.T) {
	ctrie := NewWithFuncs[[]byte, int](bytes.Equal, testHash)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		for i := 0; i < 10000; i++ {
			ctrie.Set([]byte(strconv.Itoa(i)), i)
		}
		wg.Done()
	}()

	go func() {
		for i := 0; i < 10000; i++ {
			val, ok := ctrie.Get([]byte(strconv.Itoa(i)))
			if ok {
				assertEqual(t, i, val)
			}
		}
		wg.Done()
	}()

	for i := 0; i < 10000; i++ {
		time.Sleep(5)
		ctrie.Delete([]byte(strconv.Itoa(i)))
	}

	wg.Wait()
}

// TestConcurrency2 has one writer and two readers hammer the same keys
// while a counting goroutine repeatedly calls Len, exercising the
// lock-free Set/Get/Delete/Len paths together under contention.
func TestConcurrency2(t *testing.T) {
	ctrie := NewWithFuncs[[]byte, int](bytes.Equal, testHash)
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		for i := 0; i < 10000; i++ {
			ctrie.Set([]byte(strconv.Itoa(i)), i)
		}
		wg.Done()
	}()

	go func() {
		for i := 0; i < 10000; i++ {
			val, ok := ctrie.Get([]byte(strconv.Itoa(i)))
			if ok {
				assertEqual(t, i, val)
			}
		}
		wg.Done()
	}()

	go func() {
		for i := 0; i < 10000; i++ {
			ctrie.Len()
		}
		wg.Done()
	}()

	go func() {
		for i := 0; i < 5000; i++ {
			ctrie.Get([]byte(strconv.Itoa(i)))
		}
		wg.Done()
	}()

	wg.Wait()
	assertEqual(t, 10000, ctrie.Len())
}

func TestLen(t *testing.T) {
	ctrie := NewWithFuncs[[]byte, int](bytes.Equal, testHash)
	for i := 0; i < 10; i++ {
		ctrie.Set([]byte(strconv.Itoa(i)), i)
	}
	assertEqual(t, 10, ctrie.Len())

	for i := 0; i < 4; i++ {
		ctrie.Delete([]byte(strconv.Itoa(i)))
	}
	assertEqual(t, 6, ctrie.Len())
}

func TestHashCollision(t *testing.T) {
	trie := NewWithFuncs[[]byte, int](bytes.Equal, func([]byte) uint64 {
		return 42
	})
	trie.Set([]byte("foobar"), 1)
	trie.Set([]byte("zogzog"), 2)
	trie.Set([]byte("foobar"), 3)
	val, exists := trie.Get([]byte("foobar"))
	assertTrue(t, exists)
	assertEqual(t, 3, val)
	assertEqual(t, 2, trie.Len())

	trie.Delete([]byte("foobar"))

	_, exists = trie.Get([]byte("foobar"))
	assertFalse(t, exists)
}

// TestLenCoversTNodes reproduces a scenario where tNodes weren't being
// traversed by Len's node-walk: two colliding keys collapse to a single
// sNode behind a tNode once one is deleted, and Len must still count it.
func TestLenCoversTNodes(t *testing.T) {
	ctrie := NewWithFuncs[[]byte, bool](bytes.Equal, func([]byte) uint64 { return 0 })
	// Add a pair of keys that collide (because we're using the mock hash).
	ctrie.Set([]byte("a"), true)
	ctrie.Set([]byte("b"), true)
	// Delete one key, leaving exactly one entry in the colliding keys'
	// lNode. This will trigger creation of a tNode.
	ctrie.Delete([]byte("b"))
	assertEqual(t, 1, ctrie.Len())
	_, ok := ctrie.Get([]byte("a"))
	assertTrue(t, ok)
}

func BenchmarkSet(b *testing.B) {
	ctrie := NewWithFuncs[[]byte, int](bytes.Equal, testHash)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctrie.Set([]byte("foo"), 0)
	}
}

func BenchmarkGet(b *testing.B) {
	numItems := 1000
	ctrie := NewWithFuncs[[]byte, int](bytes.Equal, testHash)
	for i := 0; i < numItems; i++ {
		ctrie.Set([]byte(strconv.Itoa(i)), i)
	}
	key := []byte(strconv.Itoa(numItems / 2))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		ctrie.Get(key)
	}
}

func BenchmarkDelete(b *testing.B) {
	numItems := 1000
	ctrie := NewWithFuncs[[]byte, int](bytes.Equal, testHash)
	for i := 0; i < numItems; i++ {
		ctrie.Set([]byte(strconv.Itoa(i)), i)
	}
	key := []byte(strconv.Itoa(numItems / 2))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		ctrie.Delete(key)
	}
}

func assertTrue(t *testing.T, x bool) bool {
	t.Helper()
	if !x {
		t.Errorf("not true")
		return false
	}
	return true
}

func assertFalse(t *testing.T, x bool) {
	t.Helper()
	if x {
		t.Errorf("not false")
	}
}

func assertEqual[T comparable](t *testing.T, x, y T) {
	t.Helper()
	if x != y {
		t.Errorf("not equal, got %#v want %#v", y, x)
	}
}
