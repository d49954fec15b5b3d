// Package lfmst implements a lock-free concurrent ordered set over
// hashable values, backed by a multiway search tree (MWST). Mutations
// install a new Contents descriptor on a Node via compare-and-swap;
// cooperative "good samaritan" cleanup repairs structural debt left behind
// by concurrent splits and slides. Safe reclamation of retired Contents and
// HeadNode descriptors is provided by package hazard.
package lfmst

import (
	"github.com/rogpeppe/lfmst/gatomic"
	"github.com/rogpeppe/lfmst/hazard"
	"github.com/rogpeppe/lfmst/key"
)

// Node is a mutable holder of exactly one field, its published Contents.
// Identity is pointer identity. A Node is retired when it is discarded
// before ever being published to the shared structure — the right half
// of a failed split, or the wrapper built by a losing increaseRootHeight
// attempt — since no reader could hold a hazard pointer to something
// that was never made reachable; next is the link those retired Nodes
// are threaded through on their pool's retire queue.
type Node[V any] struct {
	contents *Contents[V]
	next     *Node[V] // retire-queue link
}

func nodeNext[V any](n *Node[V]) *Node[V]       { return n.next }
func nodeSetNext[V any](n *Node[V], nx *Node[V]) { n.next = nx }

func (n *Node[V]) load() *Contents[V] {
	return gatomic.LoadPointer(&n.contents)
}

func (n *Node[V]) cas(old, nw *Contents[V]) bool {
	return gatomic.CompareAndSwapPointer(&n.contents, old, nw)
}

// Contents is the immutable-once-published triple a Node's state is
// replaced by CAS. children is nil for leaf nodes. A Contents whose items
// is empty is dead: it is observed only transiently, and traversal follows
// link past it.
type Contents[V any] struct {
	Items    []key.Key
	Children []*Node[V] // nil at leaf level
	Link     *Node[V]   // lateral pointer to the right sibling-in-level

	next *Contents[V] // retire-queue link
}

func contentsNext[V any](c *Contents[V]) *Contents[V]        { return c.next }
func contentsSetNext[V any](c *Contents[V], nx *Contents[V]) { c.next = nx }

// Search is a read receipt: index >= 0 means key was found at that
// position; index < 0 means "not found; insertion point is -index-1";
// index == -len(Items)-1 means "key is to the right of this node; follow
// Link".
type Search[V any] struct {
	Node     *Node[V]
	Contents *Contents[V]
	Index    int
}

// HeadNode is the root descriptor: height 0 means a single-level tree (a
// bare leaf).
type HeadNode[V any] struct {
	Node   *Node[V]
	Height int

	next *HeadNode[V] // retire-queue link
}

func headNodeNext[V any](h *HeadNode[V]) *HeadNode[V]        { return h.next }
func headNodeSetNext[V any](h *HeadNode[V], nx *HeadNode[V]) { h.next = nx }

// Tree is the internal lock-free multiway search tree. ConcurrentSet, in
// set.go, wraps it with the public value-oriented set API.
type Tree[V any] struct {
	root *HeadNode[V]

	threads int
	hash    func(V) int32

	heads    *hazard.Manager[HeadNode[V]]
	nodes    *hazard.Manager[Node[V]]
	contents *hazard.Manager[Contents[V]]

	rng levelSource
}

// levelSource draws the per-insert level an Add grows a key into. It is
// an interface, rather than a concrete *levelGenerator field, purely so
// tests can substitute a fixed sequence to exercise root-growth
// deterministically; production code always uses *levelGenerator.
type levelSource interface {
	randomLevel(tid int) int
}

const (
	headSlots     = 1
	nodeSlots     = 3
	contentsSlots = 4
)

// newTree builds a single-level tree (one leaf node, whose sole item is
// the Inf terminal sentinel) ready to serve threads concurrent callers.
func newTree[V any](threads int, hash func(V) int32) *Tree[V] {
	t := &Tree[V]{
		threads: threads,
		hash:    hash,
		heads: hazard.New(threads, headSlots, 1,
			func() *HeadNode[V] { return &HeadNode[V]{} },
			headNodeNext[V], headNodeSetNext[V]),
		nodes: hazard.New(threads, nodeSlots, 4,
			func() *Node[V] { return &Node[V]{} },
			nodeNext[V], nodeSetNext[V]),
		contents: hazard.New(threads, contentsSlots, 8,
			func() *Contents[V] { return &Contents[V]{} },
			contentsNext[V], contentsSetNext[V]),
		rng: newLevelGenerator(threads),
	}

	root := t.newNode(0, t.newContents(0, []key.Key{key.InfKey}, nil, nil))
	t.root = t.newHeadNode(0, root, 0)
	return t
}

func (t *Tree[V]) newNode(tid int, contents *Contents[V]) *Node[V] {
	n := t.nodes.Acquire(tid)
	n.contents = contents
	n.next = nil
	return n
}

func (t *Tree[V]) newContents(tid int, items []key.Key, children []*Node[V], link *Node[V]) *Contents[V] {
	c := t.contents.Acquire(tid)
	c.Items = items
	c.Children = children
	c.Link = link
	c.next = nil
	return c
}

func (t *Tree[V]) newHeadNode(tid int, node *Node[V], height int) *HeadNode[V] {
	h := t.heads.Acquire(tid)
	h.Node = node
	h.Height = height
	h.next = nil
	return h
}

func (t *Tree[V]) newSearch(node *Node[V], contents *Contents[V], index int) *Search[V] {
	return &Search[V]{Node: node, Contents: contents, Index: index}
}

func (t *Tree[V]) loadRoot() *HeadNode[V] {
	return gatomic.LoadPointer(&t.root)
}

func (t *Tree[V]) casRoot(old, nw *HeadNode[V]) bool {
	return gatomic.CompareAndSwapPointer(&t.root, old, nw)
}
