package lfmst

import "github.com/rogpeppe/lfmst/key"

// Hazard slots on the Contents manager. Each logical phase of the
// algorithm claims its own slot so a nested helper call can publish its
// own reference without clobbering the caller's: Items, Children, and
// Link all live inside one Contents value, so publishing that one
// pointer protects all three fields at once.
const (
	slotMain    = 0 // top-level traversal / orchestration entry point
	slotClean   = 1 // cleanNode / cleanLink
	slotSibling = 2 // pushRight targets, attemptSlideKey's sibling
	slotNephew  = 3 // goodSamaritanCleanNeighbor's sibling-of-sibling
)

// pushRight follows node's Link chain past any node that is empty, or
// whose rightmost item does not exceed leftBarrier, stopping at the
// first node that clears the barrier (any non-empty node when leftBarrier
// is Empty). It does not check for a nil Link: the rightmost node of a
// level ends in Inf, which clears every barrier.
func (t *Tree[V]) pushRight(tid int, node *Node[V], leftBarrier key.Key) *Node[V] {
	for {
		contents := node.load()
		t.contents.Publish(tid, slotSibling, contents)

		length := len(contents.Items)
		if length == 0 {
			node = contents.Link
		} else if leftBarrier.Flag == key.Empty || key.Compare(contents.Items[length-1], leftBarrier) > 0 {
			t.contents.Release(tid, slotSibling)
			return node
		} else {
			node = contents.Link
		}
	}
}

// cleanLink repairs a stale Link left behind by a concurrent split:
// pushRight re-resolves the target, and if it differs from the current
// Link, a new Contents carrying the fresh Link is installed.
func (t *Tree[V]) cleanLink(tid int, node *Node[V], contents *Contents[V]) *Contents[V] {
	for {
		t.contents.Publish(tid, slotClean, contents)

		newLink := t.pushRight(tid, contents.Link, key.EmptyKey)
		if newLink == contents.Link {
			t.contents.Release(tid, slotClean)
			return contents
		}

		update := t.newContents(tid, contents.Items, contents.Children, newLink)
		if node.cas(contents, update) {
			t.contents.Retire(tid, contents)
			t.contents.Release(tid, slotClean)
			return update
		}
		t.contents.Retire(tid, update)
		t.contents.Release(tid, slotClean)

		contents = node.load()
	}
}

// cleanNode repeatedly applies the cleanup primitive appropriate to
// contents' current width until no more structural debt remains at
// index, or the key has moved past this node entirely.
func (t *Tree[V]) cleanNode(tid int, k key.Key, node *Node[V], contents *Contents[V], index int, leftBarrier key.Key) {
	for {
		t.contents.Publish(tid, slotClean, contents)

		length := len(contents.Items)
		var done bool
		switch {
		case length == 0:
			t.contents.Release(tid, slotClean)
			return
		case length == 1:
			done = t.cleanNode1(tid, node, contents, leftBarrier)
		case length == 2:
			done = t.cleanNode2(tid, node, contents, leftBarrier)
		default:
			done = t.cleanNodeN(tid, node, contents, index, leftBarrier)
		}
		if done {
			t.contents.Release(tid, slotClean)
			return
		}

		contents = node.load()
		t.contents.Publish(tid, slotClean, contents)

		index = key.Search(contents.Items, k)
		if -index-1 == len(contents.Items) {
			t.contents.Release(tid, slotClean)
			return
		}
		if index < 0 {
			index = -index - 1
		}
	}
}

// cleanNode1 cleans a single-item node: slide the key to the right
// sibling if possible, else push the lone child past leftBarrier.
//
// contents (and its Items/Children) must already be published by the
// caller.
func (t *Tree[V]) cleanNode1(tid int, node *Node[V], contents *Contents[V], leftBarrier key.Key) bool {
	if t.attemptSlideKey(tid, node, contents) {
		return true
	}

	k := contents.Items[0]
	if leftBarrier.Flag != key.Empty && key.Compare(k, leftBarrier) <= 0 {
		leftBarrier = key.EmptyKey
	}

	childNode := contents.Children[0]
	adjustedChild := t.pushRight(tid, childNode, leftBarrier)
	if adjustedChild == childNode {
		return true
	}
	return t.shiftChild(tid, node, contents, 0, adjustedChild)
}

// cleanNode2 is cleanNode1's two-item counterpart.
func (t *Tree[V]) cleanNode2(tid int, node *Node[V], contents *Contents[V], leftBarrier key.Key) bool {
	if t.attemptSlideKey(tid, node, contents) {
		return true
	}

	k := contents.Items[0]
	if leftBarrier.Flag != key.Empty && key.Compare(k, leftBarrier) <= 0 {
		leftBarrier = key.EmptyKey
	}

	childNode1 := contents.Children[0]
	adjustedChild1 := t.pushRight(tid, childNode1, leftBarrier)
	leftBarrier = contents.Items[0]
	childNode2 := contents.Children[1]
	adjustedChild2 := t.pushRight(tid, childNode2, leftBarrier)

	if adjustedChild1 == childNode1 && adjustedChild2 == childNode2 {
		return true
	}
	return t.shiftChildren(tid, node, contents, adjustedChild1, adjustedChild2)
}

// cleanNodeN cleans a node with three or more items, merging the child
// at index into its right neighbor when they have converged to the same
// pushed-right target.
func (t *Tree[V]) cleanNodeN(tid int, node *Node[V], contents *Contents[V], index int, leftBarrier key.Key) bool {
	key0 := contents.Items[0]

	if index > 0 {
		leftBarrier = contents.Items[index-1]
	} else if leftBarrier.Flag != key.Empty && key.Compare(key0, leftBarrier) <= 0 {
		leftBarrier = key.EmptyKey
	}

	childNode := contents.Children[index]
	adjustedChild := t.pushRight(tid, childNode, leftBarrier)

	if index == 0 || index == len(contents.Children)-1 {
		if adjustedChild == childNode {
			return true
		}
		return t.shiftChild(tid, node, contents, index, adjustedChild)
	}

	adjustedNeighbor := t.pushRight(tid, contents.Children[index+1], contents.Items[index])

	switch {
	case adjustedNeighbor == adjustedChild:
		return t.dropChild(tid, node, contents, index, adjustedChild)
	case adjustedChild != childNode:
		return t.shiftChild(tid, node, contents, index, adjustedChild)
	default:
		return true
	}
}

// shiftChild installs a Contents identical to contents but with the
// child at index replaced by adjustedChild.
func (t *Tree[V]) shiftChild(tid int, node *Node[V], contents *Contents[V], index int, adjustedChild *Node[V]) bool {
	children := copyChildren(contents.Children)
	children[index] = adjustedChild

	update := t.newContents(tid, contents.Items, children, contents.Link)
	if node.cas(contents, update) {
		t.contents.Retire(tid, contents)
		return true
	}
	t.contents.Retire(tid, update)
	return false
}

// shiftChildren installs a two-child Contents replacing the current
// children with child1 and child2, each at their own index.
func (t *Tree[V]) shiftChildren(tid int, node *Node[V], contents *Contents[V], child1, child2 *Node[V]) bool {
	children := []*Node[V]{child1, child2}

	update := t.newContents(tid, contents.Items, children, contents.Link)
	if node.cas(contents, update) {
		t.contents.Retire(tid, contents)
		return true
	}
	t.contents.Retire(tid, update)
	return false
}

// dropChild merges the child at index with its right neighbor: the item
// separating them and the neighbor slot both disappear, and index's
// child slot is replaced by adjustedChild.
func (t *Tree[V]) dropChild(tid int, node *Node[V], contents *Contents[V], index int, adjustedChild *Node[V]) bool {
	length := len(contents.Items)

	items := make([]key.Key, length-1)
	children := make([]*Node[V], length-1)

	copy(items, contents.Items[:index])
	copy(children, contents.Children[:index])
	children[index] = adjustedChild
	copy(items[index:], contents.Items[index+1:length])
	copy(children[index+1:], contents.Children[index+2:length])

	update := t.newContents(tid, items, children, contents.Link)
	if node.cas(contents, update) {
		t.contents.Retire(tid, contents)
		return true
	}
	t.contents.Retire(tid, update)
	return false
}

// attemptSlideKey tries to slide this node's rightmost key, and the
// child that key guards, over to the neighboring node to the right.
// It reports whether the key was actually relocated, matching every
// other primitive in this file, so callers can tell a completed slide
// from one that lost its CAS race and needs retrying.
func (t *Tree[V]) attemptSlideKey(tid int, node *Node[V], contents *Contents[V]) bool {
	if contents.Link == nil {
		return false
	}

	length := len(contents.Items)
	kkey := contents.Items[length-1]
	child := contents.Children[length-1]
	sibling := t.pushRight(tid, contents.Link, key.EmptyKey)

	siblingContents := sibling.load()
	t.contents.Publish(tid, slotSibling, siblingContents)

	if len(siblingContents.Children) == 0 {
		t.contents.Release(tid, slotSibling)
		return false
	}
	nephew := siblingContents.Children[0]

	if key.Compare(siblingContents.Items[0], kkey) > 0 {
		nephew = t.pushRight(tid, nephew, kkey)
	} else {
		nephew = t.pushRight(tid, nephew, key.EmptyKey)
	}

	if nephew != child {
		t.contents.Release(tid, slotSibling)
		return false
	}

	success := t.slideToNeighbor(tid, sibling, siblingContents, kkey, kkey, child)
	if success {
		t.deleteSlidedKey(tid, node, contents, kkey)
	}

	t.contents.Release(tid, slotSibling)
	return success
}

// slideToNeighbor installs key and child at the front of sibling's
// Contents, unless key is already present there (another thread slid it
// first) or the sibling's layout has since changed incompatibly.
func (t *Tree[V]) slideToNeighbor(tid int, sibling *Node[V], sibContents *Contents[V], kkey, k key.Key, child *Node[V]) bool {
	index := key.Search(sibContents.Items, k)
	if index >= 0 {
		return true
	}
	if index < -1 {
		return false
	}

	items := insertKey(sibContents.Items, kkey, 0)
	children := insertChild(sibContents.Children, child, 0)

	update := t.newContents(tid, items, children, sibContents.Link)
	if sibling.cas(sibContents, update) {
		t.contents.Retire(tid, sibContents)
		return true
	}
	t.contents.Retire(tid, update)
	return false
}

// deleteSlidedKey removes key (and its child) from contents once it has
// been confirmed present on the neighbor it was slid to.
func (t *Tree[V]) deleteSlidedKey(tid int, node *Node[V], contents *Contents[V], k key.Key) *Contents[V] {
	index := key.Search(contents.Items, k)
	if index < 0 {
		return contents
	}

	items := removeKey(contents.Items, index)
	children := removeChild(contents.Children, index)

	update := t.newContents(tid, items, children, contents.Link)
	if node.cas(contents, update) {
		t.contents.Retire(tid, contents)
		return update
	}
	t.contents.Retire(tid, update)
	return contents
}
