package index

import (
	"github.com/ashgrove/txcore/storage/buffer"
	"github.com/ashgrove/txcore/storage/page"
)

// Iterator is a forward range scan over a tree's leaf chain, latched one
// leaf at a time the way TableHeapIterator walks one table page at a
// time: readers are snapshot-free, never holding more than one leaf's
// shared latch, so they can neither block nor be blocked by inserts or
// deletes on leaves already passed.
type Iterator[K any] struct {
	bpm   *buffer.BufferPoolManager
	codec KeyCodec[K]
	leaf  *LeafPage[K]
	index int32
}

// Begin returns an iterator positioned at the smallest key in the tree.
func (t *BPlusTree[K]) Begin() *Iterator[K] {
	if t.IsEmpty() {
		return &Iterator[K]{bpm: t.bpm, codec: t.codec}
	}
	leaf, path := t.leftmostLeaf()
	t.releaseAncestorsForHandoff(path)
	return &Iterator[K]{bpm: t.bpm, codec: t.codec, leaf: leaf, index: 0}
}

// BeginAt returns an iterator positioned at the first key >= key.
func (t *BPlusTree[K]) BeginAt(key K) *Iterator[K] {
	if t.IsEmpty() {
		return &Iterator[K]{bpm: t.bpm, codec: t.codec}
	}
	leaf, path := t.findLeaf(key, OpRead)
	t.releaseAncestorsForHandoff(path)
	idx := leaf.KeyIndex(key, t.cmp)
	it := &Iterator[K]{bpm: t.bpm, codec: t.codec, leaf: leaf, index: idx}
	it.skipToNextLeafIfExhausted()
	return it
}

// End reports whether the iterator has no more entries.
func (it *Iterator[K]) End() bool {
	return it.leaf == nil
}

// Current returns the (key, rid) the iterator is positioned at.
func (it *Iterator[K]) Current() (K, page.RID) {
	return it.leaf.KeyAt(it.index), it.leaf.RIDAt(it.index)
}

// Next advances the iterator by one entry, crossing into the next leaf
// via next_page_id when the current one is exhausted.
func (it *Iterator[K]) Next() {
	it.index++
	it.skipToNextLeafIfExhausted()
}

func (it *Iterator[K]) skipToNextLeafIfExhausted() {
	for !it.End() && it.index >= it.leaf.GetSize() {
		nextID := it.leaf.GetNextPageId()
		it.leaf.Page.RUnlatch()
		it.bpm.UnpinPage(it.leaf.GetPageId(), false)
		if !nextID.IsValid() {
			it.leaf = nil
			it.index = 0
			return
		}
		nextPg := it.bpm.FetchPage(nextID)
		nextPg.RLatch()
		it.leaf = CastPageAsLeafPage(nextPg, it.codec)
		it.index = 0
	}
}

// Close releases the iterator's held leaf latch/pin without exhausting
// the scan, for callers that stop early.
func (it *Iterator[K]) Close() {
	if it.leaf == nil {
		return
	}
	it.leaf.Page.RUnlatch()
	it.bpm.UnpinPage(it.leaf.GetPageId(), false)
	it.leaf = nil
}
