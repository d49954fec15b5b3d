package lfmst

import "github.com/rogpeppe/lfmst/key"

// increaseRootHeight grows the tree until the root's height reaches at
// least target, wrapping the current root in new single-child levels one
// at a time. Concurrent growers race on the root CAS; a loser simply
// re-reads the now-taller root and, if still short, tries again.
func (t *Tree[V]) increaseRootHeight(tid int, target int) *HeadNode[V] {
	root := t.loadRoot()
	t.heads.Publish(tid, 0, root)

	height := root.Height
	for height < target {
		items := []key.Key{key.InfKey}
		children := []*Node[V]{root.Node}

		contents := t.newContents(tid, items, children, nil)
		wrapper := t.newNode(tid, contents)
		update := t.newHeadNode(tid, wrapper, height+1)

		if t.casRoot(root, update) {
			t.heads.Retire(tid, root)
		} else {
			t.contents.Retire(tid, contents)
			t.nodes.Retire(tid, wrapper)
			t.heads.Retire(tid, update)
		}

		root = t.loadRoot()
		t.heads.Publish(tid, 0, root)
		height = root.Height
	}

	t.heads.Release(tid, 0)
	return root
}

// Contains reports whether k is a member of the tree.
func (t *Tree[V]) Contains(tid int, k key.Key) bool {
	node := t.loadRoot().Node
	contents := node.load()
	t.contents.Publish(tid, slotMain, contents)

	index := key.Search(contents.Items, k)
	for contents.Children != nil {
		switch {
		case -index-1 == len(contents.Items):
			node = contents.Link
		case index < 0:
			node = contents.Children[-index-1]
		default:
			node = contents.Children[index]
		}
		contents = node.load()
		t.contents.Publish(tid, slotMain, contents)
		index = key.Search(contents.Items, k)
	}

	for {
		if -index-1 == len(contents.Items) {
			node = contents.Link
		} else {
			t.contents.Release(tid, slotMain)
			return index >= 0
		}
		contents = node.load()
		t.contents.Publish(tid, slotMain, contents)
		index = key.Search(contents.Items, k)
	}
}

// Add inserts k, reporting whether it was not already present. A
// randomly drawn level above zero grows the key into an index spanning
// that many extra levels, splitting each affected node as needed.
func (t *Tree[V]) Add(tid int, k key.Key) bool {
	height := t.rng.randomLevel(tid)
	if height == 0 {
		results := t.traverseLeaf(tid, k, false)
		return t.insertLeafLevel(tid, k, results)
	}

	resultsStore := make([]*Search[V], height+1)
	t.traverseNonLeaf(tid, k, height, resultsStore)

	if !t.beginInsertOneLevel(tid, k, resultsStore) {
		return false
	}

	for i := 0; i < height; i++ {
		right := t.splitOneLevel(tid, k, resultsStore[i])
		t.insertOneLevel(tid, k, resultsStore, right, i+1)
	}
	return true
}

// Remove deletes k, reporting whether it was present.
func (t *Tree[V]) Remove(tid int, k key.Key) bool {
	results := t.traverseLeaf(tid, k, true)
	return t.removeFromNode(tid, k, results)
}

// removeFromNode installs a Contents with k's item dropped. It only
// ever runs against leaf-level receipts (traverseLeaf never stops above
// the leaf level), so a non-nil Children here means a caller broke that
// contract rather than a condition this code should paper over.
func (t *Tree[V]) removeFromNode(tid int, k key.Key, results *Search[V]) bool {
	for {
		node := results.Node
		contents := results.Contents
		index := results.Index

		if index < 0 {
			return false
		}

		t.contents.Publish(tid, slotMain, contents)

		if contents.Children != nil {
			panic("lfmst: removeFromNode called with non-leaf contents")
		}

		newItems := removeKey(contents.Items, index)
		update := t.newContents(tid, newItems, nil, contents.Link)

		if node.cas(contents, update) {
			t.contents.Retire(tid, contents)
			t.contents.Release(tid, slotMain)
			return true
		}
		t.contents.Retire(tid, update)
		t.contents.Release(tid, slotMain)

		results = t.moveForward(tid, node, k, index)
	}
}

// splitOneLevel splits results' node in two just after the item at
// results.Index (the key being grown), returning the freshly created right
// half, or nil if no split applies (the key is not in the node, the node
// has fewer than two items, or the key is already its last item).
func (t *Tree[V]) splitOneLevel(tid int, k key.Key, results *Search[V]) *Node[V] {
	for {
		node := results.Node
		contents := results.Contents
		t.contents.Publish(tid, slotMain, contents)

		index := results.Index
		length := len(contents.Items)

		if index < 0 || length < 2 || index == length-1 {
			t.contents.Release(tid, slotMain)
			return nil
		}

		// Leaf Children stay nil on both halves.
		var leftCh, rightCh []*Node[V]
		if contents.Children != nil {
			leftCh = leftChildren(contents.Children, index)
			rightCh = rightChildren(contents.Children, index)
		}

		rightContents := t.newContents(tid, rightKeys(contents.Items, index), rightCh, contents.Link)
		right := t.newNode(tid, rightContents)
		left := t.newContents(tid, leftKeys(contents.Items, index), leftCh, right)

		if node.cas(contents, left) {
			t.contents.Retire(tid, contents)
			t.contents.Release(tid, slotMain)
			return right
		}
		t.contents.Retire(tid, rightContents)
		t.nodes.Retire(tid, right)
		t.contents.Retire(tid, left)
		t.contents.Release(tid, slotMain)

		results = t.moveForward(tid, node, k, index)
	}
}

// insertLeafLevel installs k as a new item in results' leaf node.
func (t *Tree[V]) insertLeafLevel(tid int, k key.Key, results *Search[V]) bool {
	for {
		node := results.Node
		contents := results.Contents
		t.contents.Publish(tid, slotMain, contents)

		index := results.Index
		if index >= 0 {
			t.contents.Release(tid, slotMain)
			return false
		}
		index = -index - 1

		update := t.newContents(tid, insertKey(contents.Items, k, index), nil, contents.Link)
		if node.cas(contents, update) {
			t.contents.Retire(tid, contents)
			t.contents.Release(tid, slotMain)
			return true
		}
		t.contents.Retire(tid, update)
		t.contents.Release(tid, slotMain)

		results = t.moveForward(tid, node, k, index)
	}
}

// beginInsertOneLevel is insertLeafLevel's counterpart for a
// multi-level Add: it installs k at resultsStore[0]'s node and, on
// success, replaces resultsStore[0] with a receipt reflecting the new
// Contents — later levels' splitOneLevel/insertOneLevel calls read that
// updated receipt, not the one traverseNonLeaf originally recorded.
func (t *Tree[V]) beginInsertOneLevel(tid int, k key.Key, resultsStore []*Search[V]) bool {
	results := resultsStore[0]

	for {
		node := results.Node
		contents := results.Contents
		t.contents.Publish(tid, slotMain, contents)

		index := results.Index
		if index >= 0 {
			t.contents.Release(tid, slotMain)
			return false
		}
		index = -index - 1

		update := t.newContents(tid, insertKey(contents.Items, k, index), nil, contents.Link)
		if node.cas(contents, update) {
			t.contents.Retire(tid, contents)
			t.contents.Release(tid, slotMain)

			resultsStore[0] = t.newSearch(node, update, index)
			return true
		}
		t.contents.Retire(tid, update)
		t.contents.Release(tid, slotMain)

		results = t.moveForward(tid, node, k, index)
	}
}

// insertOneLevel installs child into resultsStore[target]'s node
// alongside k, once splitOneLevel has produced child for the level
// below. A nil child (no split was needed at the level below) makes
// this a no-op.
func (t *Tree[V]) insertOneLevel(tid int, k key.Key, resultsStore []*Search[V], child *Node[V], target int) {
	if child == nil {
		return
	}

	results := resultsStore[target]

	for {
		node := results.Node
		contents := results.Contents
		t.contents.Publish(tid, slotMain, contents)

		index := results.Index

		if index >= 0 {
			t.contents.Release(tid, slotMain)
			return
		} else if index > -len(contents.Items)-1 {
			index = -index - 1

			newItems := insertKey(contents.Items, k, index)
			newChildren := insertChild(contents.Children, child, index+1)

			update := t.newContents(tid, newItems, newChildren, contents.Link)
			if node.cas(contents, update) {
				t.contents.Retire(tid, contents)
				t.contents.Release(tid, slotMain)

				resultsStore[target] = t.newSearch(node, update, index)
				return
			}
			t.contents.Retire(tid, update)
			results = t.moveForward(tid, node, k, index)
		} else {
			results = t.moveForward(tid, node, k, -index-1)
		}

		t.contents.Release(tid, slotMain)
	}
}
