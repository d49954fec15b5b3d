package lfmst

import "github.com/rogpeppe/lfmst/key"

// traverseLeaf descends from the root to the leaf level for k. With
// cleanup set, every internal node visited along the way has cleanNode
// run against it, amortizing structural repair into ordinary lookups.
func (t *Tree[V]) traverseLeaf(tid int, k key.Key, cleanup bool) *Search[V] {
	node := t.loadRoot().Node
	contents := node.load()
	t.contents.Publish(tid, slotMain, contents)

	index := key.Search(contents.Items, k)
	leftBarrier := key.EmptyKey

	for contents.Children != nil {
		if -index-1 == len(contents.Items) {
			if len(contents.Items) > 0 {
				leftBarrier = contents.Items[len(contents.Items)-1]
			}
			node = t.cleanLink(tid, node, contents).Link
		} else {
			if index < 0 {
				index = -index - 1
			}
			if cleanup {
				t.cleanNode(tid, k, node, contents, index, leftBarrier)
			}
			node = contents.Children[index]
			leftBarrier = key.EmptyKey
		}

		contents = node.load()
		t.contents.Publish(tid, slotMain, contents)
		index = key.Search(contents.Items, k)
	}

	for {
		if index > -len(contents.Items)-1 {
			t.contents.Release(tid, slotMain)
			return t.newSearch(node, contents, index)
		}
		node = t.cleanLink(tid, node, contents).Link
		contents = node.load()
		t.contents.Publish(tid, slotMain, contents)
		index = key.Search(contents.Items, k)
	}
}

// traverseNonLeaf descends to the leaf for k while recording, in
// storeResults, the Search receipt at every level from 0 up to target —
// growing the root first if its height has not yet caught up to target.
func (t *Tree[V]) traverseNonLeaf(tid int, k key.Key, target int, storeResults []*Search[V]) {
	rootHead := t.loadRoot()
	if rootHead.Height < target {
		rootHead = t.increaseRootHeight(tid, target)
	}

	height := rootHead.Height
	node := rootHead.Node

	for {
		contents := node.load()
		t.contents.Publish(tid, slotMain, contents)

		index := key.Search(contents.Items, k)

		switch {
		case -index-1 == len(contents.Items):
			node = contents.Link
		case height == 0:
			storeResults[0] = t.newSearch(node, contents, index)
			t.contents.Release(tid, slotMain)
			return
		default:
			firstResults := t.newSearch(node, contents, index)
			results := t.goodSamaritanCleanNeighbor(tid, k, firstResults)

			if height <= target {
				storeResults[height] = results
			}

			if index < 0 {
				index = -index - 1
			}
			node = contents.Children[index]
			height--
		}
	}
}

// moveForward re-resolves a Search receipt after a failed CAS, following
// Link pointers until a node whose Items actually bracket k is found.
// hint seeds the binary search near the previously found position.
func (t *Tree[V]) moveForward(tid int, node *Node[V], k key.Key, hint int) *Search[V] {
	for {
		contents := node.load()
		t.contents.Publish(tid, slotClean, contents)

		index := key.SearchWithHint(contents.Items, k, hint)
		if index > -len(contents.Items)-1 {
			t.contents.Release(tid, slotClean)
			return t.newSearch(node, contents, index)
		}
		node = contents.Link
	}
}

// goodSamaritanCleanNeighbor opportunistically repairs the boundary
// between results' node and its right sibling while already holding the
// references needed to do so, re-resolving results if the repair moved
// the key's home node.
func (t *Tree[V]) goodSamaritanCleanNeighbor(tid int, k key.Key, results *Search[V]) *Search[V] {
	node := results.Node
	contents := results.Contents
	t.contents.Publish(tid, slotSibling, contents)

	if contents.Link == nil {
		t.contents.Release(tid, slotSibling)
		return results
	}

	length := len(contents.Items)
	leftBarrier := contents.Items[length-1]
	child := contents.Children[length-1]
	sibling := t.pushRight(tid, contents.Link, key.EmptyKey)

	siblingContents := sibling.load()
	t.contents.Publish(tid, slotNephew, siblingContents)

	if len(siblingContents.Children) == 0 {
		cleaned := t.cleanLink(tid, node, node.load())
		index := key.Search(cleaned.Items, k)

		t.contents.Release(tid, slotSibling)
		t.contents.Release(tid, slotNephew)

		return t.newSearch(node, cleaned, index)
	}
	nephew := siblingContents.Children[0]

	var adjustedNephew *Node[V]
	if key.Compare(siblingContents.Items[0], leftBarrier) > 0 {
		adjustedNephew = t.pushRight(tid, nephew, leftBarrier)
	} else {
		adjustedNephew = t.pushRight(tid, nephew, key.EmptyKey)
	}

	if nephew != child {
		if adjustedNephew != nephew {
			t.shiftChild(tid, sibling, siblingContents, 0, adjustedNephew)
		}
	} else if t.slideToNeighbor(tid, sibling, siblingContents, leftBarrier, leftBarrier, child) {
		updated := t.deleteSlidedKey(tid, node, contents, leftBarrier)
		index := key.Search(updated.Items, k)

		t.contents.Release(tid, slotSibling)
		t.contents.Release(tid, slotNephew)

		return t.newSearch(node, updated, index)
	}

	t.contents.Release(tid, slotSibling)
	t.contents.Release(tid, slotNephew)

	return results
}
