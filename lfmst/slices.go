package lfmst

import "github.com/rogpeppe/lfmst/key"

// Helpers for building the Items/Children slices of a new Contents from
// an existing one: insert, split into a left/right half around an
// index, or remove a single element. Every Contents is installed once
// and never mutated in place, so each helper returns a fresh backing
// array rather than a sub-slice of the input, keeping that invariant
// intact.

func insertKey(items []key.Key, k key.Key, index int) []key.Key {
	out := make([]key.Key, len(items)+1)
	copy(out, items[:index])
	out[index] = k
	copy(out[index+1:], items[index:])
	return out
}

func insertChild[V any](children []*Node[V], c *Node[V], index int) []*Node[V] {
	out := make([]*Node[V], len(children)+1)
	copy(out, children[:index])
	out[index] = c
	copy(out[index+1:], children[index:])
	return out
}

func leftKeys(items []key.Key, index int) []key.Key {
	out := make([]key.Key, index+1)
	copy(out, items[:index+1])
	return out
}

func rightKeys(items []key.Key, index int) []key.Key {
	out := make([]key.Key, len(items)-index-1)
	copy(out, items[index+1:])
	return out
}

func leftChildren[V any](children []*Node[V], index int) []*Node[V] {
	out := make([]*Node[V], index+1)
	copy(out, children[:index+1])
	return out
}

func rightChildren[V any](children []*Node[V], index int) []*Node[V] {
	out := make([]*Node[V], len(children)-index-1)
	copy(out, children[index+1:])
	return out
}

func removeKey(items []key.Key, index int) []key.Key {
	out := make([]key.Key, len(items)-1)
	copy(out, items[:index])
	copy(out[index:], items[index+1:])
	return out
}

func removeChild[V any](children []*Node[V], index int) []*Node[V] {
	out := make([]*Node[V], len(children)-1)
	copy(out, children[:index])
	copy(out[index:], children[index+1:])
	return out
}

func copyChildren[V any](children []*Node[V]) []*Node[V] {
	out := make([]*Node[V], len(children))
	copy(out, children)
	return out
}
