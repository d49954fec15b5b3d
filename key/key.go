// Package key implements the tagged key type and ordering the multiway
// search tree in package lfmst is built on: a total order over hashed
// values, lifted with two sentinels — an empty "no barrier" marker and a
// terminal +infinity that every level's rightmost key carries.
package key

// Flag tags a Key as an ordinary value or one of the two sentinels.
type Flag uint8

const (
	// Normal keys carry a real, compared Int.
	Normal Flag = iota
	// Empty keys never participate in compare; they signal "no barrier"
	// to the structural-cleanup primitives in package lfmst.
	Empty
	// Inf is strictly greater than every Normal key; it terminates the
	// item array of the rightmost node on every level.
	Inf
)

// Key is the tagged, totally-ordered key type keys and search operate on.
type Key struct {
	Flag Flag
	Int  int32
}

// New returns a Normal key wrapping v.
func New(v int32) Key {
	return Key{Flag: Normal, Int: v}
}

// EmptyKey is the shared "no barrier" sentinel.
var EmptyKey = Key{Flag: Empty}

// InfKey is the shared terminal sentinel.
var InfKey = Key{Flag: Inf}

// Compare orders two keys. Inf dominates; Empty keys must never be passed
// in (callers treat Empty specially before reaching compare).
//
// Inf is checked on k1 first, so Compare(InfKey, InfKey) returns 1, not
// 0. Two Inf keys never need to compare equal in practice — Inf only
// ever appears as the lone terminal sentinel of a level's rightmost
// node — so this asymmetry is harmless and is kept rather than forced
// to a symmetric tie-break.
func Compare(k1, k2 Key) int {
	if k1.Flag == Inf {
		return 1
	}
	if k2.Flag == Inf {
		return -1
	}
	switch {
	case k1.Int < k2.Int:
		return -1
	case k1.Int > k2.Int:
		return 1
	default:
		return 0
	}
}

// Search performs a binary search for key within items, which must be
// sorted under Compare and may end in an Inf sentinel (excluded from the
// search range). It returns the index of key if present, or -(insertion
// point)-1 if not. A result of -(len(items))-1 means key belongs strictly
// to the right of items — the caller must follow its node's link.
func Search(items []Key, key Key) int {
	low, high := 0, len(items)-1
	if low > high {
		return -1
	}
	if items[high].Flag == Inf {
		high--
	}
	for low <= high {
		mid := (low + high) >> 1
		switch cmp := Compare(key, items[mid]); {
		case cmp > 0:
			low = mid + 1
		case cmp < 0:
			high = mid - 1
		default:
			return mid
		}
	}
	return -(low + 1)
}

// SearchWithHint is Search, but starts from hint instead of the array's
// midpoint. Used after a CAS failure to re-search near the previously
// found position, amortizing repeated lookups for nearby keys.
func SearchWithHint(items []Key, key Key, hint int) int {
	low, high := 0, len(items)-1
	if low > high {
		return -1
	}
	if items[high].Flag == Inf {
		high--
	}
	mid := hint
	if mid > high {
		mid = (low + high) >> 1
	}
	for low <= high {
		switch cmp := Compare(key, items[mid]); {
		case cmp > 0:
			low = mid + 1
		case cmp < 0:
			high = mid - 1
		default:
			return mid
		}
		mid = (low + high) >> 1
	}
	return -(low + 1)
}
