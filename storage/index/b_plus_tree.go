// Tree traversal and mutation algorithm grounded on
// _examples/original_source/src/index/b_plus_tree.cpp (Insert/Remove/
// Split/CoalesceOrRedistribute/AdjustRoot), re-expressed over Go
// generics and the teacher's page/latch/buffer-pool idiom instead of
// the original's raw pointer casts.

package index

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ashgrove/txcore/storage/buffer"
	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/common"
	"github.com/ashgrove/txcore/types"
)

// OpType tags what an index operation intends to do to the leaf it
// descends to, which governs when an ancestor latch can be released
// early (spec's latch-crabbing safety rule).
type OpType int

const (
	OpRead OpType = iota
	OpInsert
	OpDelete
)

// BPlusTree is a disk-backed, generic ordered index from K to RID,
// latch-crabbed for concurrent access. One tree instance owns one
// root-page-id record in the shared header page.
type BPlusTree[K any] struct {
	name            string
	bpm             *buffer.BufferPoolManager
	cmp             Comparator[K]
	codec           KeyCodec[K]
	leafMaxSize     int32
	internalMaxSize int32
	rootLatch       common.ReaderWriterLatch
	headerPageId    types.PageID
}

// NewBPlusTree opens (or, on first use, implicitly creates) the named
// index against headerPageId's directory page. A maxSize of 0 picks the
// largest size that still fits one physical page, the way the
// teacher's Init() methods size themselves off PAGE_SIZE.
func NewBPlusTree[K any](name string, bpm *buffer.BufferPoolManager, cmp Comparator[K], codec KeyCodec[K], leafMaxSize, internalMaxSize int32) *BPlusTree[K] {
	if leafMaxSize <= 0 {
		leafMaxSize = int32((page.PageSize-page.CommonHeaderSize-sizeLeafPageHeader)/(codec.Size+ridSize)) - 1
	}
	if internalMaxSize <= 0 {
		internalMaxSize = int32((page.PageSize-page.CommonHeaderSize-sizeIndexPageHeader)/(codec.Size+4)) - 1
	}
	return &BPlusTree[K]{
		name:            name,
		bpm:             bpm,
		cmp:             cmp,
		codec:           codec,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootLatch:       common.NewRWLatch(),
		headerPageId:    types.PageID(common.HeaderPageID),
	}
}

func (t *BPlusTree[K]) header() *page.HeaderPage {
	return page.CastPageAsHeaderPage(t.bpm.FetchPage(t.headerPageId))
}

func (t *BPlusTree[K]) GetRootPageId() types.PageID {
	h := t.header()
	defer t.bpm.UnpinPage(t.headerPageId, false)
	if id, ok := h.FetchRootID(t.name); ok {
		return id
	}
	return types.InvalidPageID
}

func (t *BPlusTree[K]) setRootPageId(id types.PageID) {
	h := t.header()
	h.UpdateRecord(t.name, id)
	t.bpm.UnpinPage(t.headerPageId, true)
}

func (t *BPlusTree[K]) IsEmpty() bool {
	return !t.GetRootPageId().IsValid()
}

// crabPath accumulates the still-latched ancestor chain of one index
// operation: pages unsafe to release early, in root-to-leaf acquisition
// order, plus whether the tree-root latch itself is still held.
type crabPath struct {
	heldPages  []*page.Page
	rootLatched bool
	op          OpType
}

func (t *BPlusTree[K]) lockRoot(op OpType) {
	if op == OpRead {
		t.rootLatch.RLock()
	} else {
		t.rootLatch.WLock()
	}
}

func (t *BPlusTree[K]) unlockRoot(op OpType) {
	if op == OpRead {
		t.rootLatch.RUnlock()
	} else {
		t.rootLatch.WUnlock()
	}
}

func latchPage(p *page.Page, op OpType) {
	if op == OpRead {
		p.RLatch()
	} else {
		p.WLatch()
	}
}

func unlatchPage(p *page.Page, op OpType) {
	if op == OpRead {
		p.RUnlatch()
	} else {
		p.WUnlatch()
	}
}

func isLeafPageRaw(p *page.Page) bool {
	return (&bPlusTreePage{p}).IsLeafPage()
}

// isSafe implements spec §4.2 step 4's safety predicate.
func (t *BPlusTree[K]) isSafe(p *page.Page, op OpType) bool {
	bt := &bPlusTreePage{p}
	switch op {
	case OpRead:
		return true
	case OpInsert:
		return bt.GetSize() < bt.GetMaxSize()
	case OpDelete:
		return bt.GetSize() > bt.GetMinSize()
	}
	return false
}

// releaseAncestors drops every held page but the most recently
// acquired one (and the root latch, if still held), in acquisition
// order, per spec step 4.
func (t *BPlusTree[K]) releaseAncestors(path *crabPath) {
	for i := 0; i < len(path.heldPages)-1; i++ {
		p := path.heldPages[i]
		unlatchPage(p, path.op)
		t.bpm.UnpinPage(p.ID(), false)
	}
	path.heldPages = path.heldPages[len(path.heldPages)-1:]
	if path.rootLatched {
		t.unlockRoot(path.op)
		path.rootLatched = false
	}
}

// releaseRemaining unlatches and unpins whatever is still held at the
// end of an operation (spec step 6). dirtyLast marks whether the final
// (most recently touched) page was actually mutated.
func (t *BPlusTree[K]) releaseRemaining(path *crabPath, dirtyLast bool) {
	last := len(path.heldPages) - 1
	for i := last; i >= 0; i-- {
		p := path.heldPages[i]
		unlatchPage(p, path.op)
		dirty := dirtyLast && i == last
		t.bpm.UnpinPage(p.ID(), dirty)
	}
	if path.rootLatched {
		t.unlockRoot(path.op)
	}
}

// releaseAncestorsForHandoff releases every ancestor latch/pin and the
// root latch still held in path, but leaves the final page (the leaf)
// latched and pinned exactly as the descent left it, so a caller can
// hand that single pin/latch off to a longer-lived owner (the
// iterator) instead of dropping it here and trying to reacquire it
// later, which would momentarily pin the page at zero while it's still
// being read.
func (t *BPlusTree[K]) releaseAncestorsForHandoff(path *crabPath) *page.Page {
	last := len(path.heldPages) - 1
	for i := 0; i < last; i++ {
		p := path.heldPages[i]
		unlatchPage(p, path.op)
		t.bpm.UnpinPage(p.ID(), false)
	}
	if path.rootLatched {
		t.unlockRoot(path.op)
	}
	if last < 0 {
		return nil
	}
	return path.heldPages[last]
}

// findLeaf descends from the root to the leaf owning key, latching and
// early-releasing per the crabbing protocol, and returns the still
// (at least partially) latched path plus that leaf. When the tree is
// empty it returns a nil leaf with the root latch still held so the
// caller can decide what to do next without racing a concurrent
// StartNewTree.
func (t *BPlusTree[K]) findLeaf(key K, op OpType) (*LeafPage[K], *crabPath) {
	path := &crabPath{op: op}
	t.lockRoot(op)
	path.rootLatched = true

	rootID := t.GetRootPageId()
	if !rootID.IsValid() {
		return nil, path
	}

	cur := t.bpm.FetchPage(rootID)
	latchPage(cur, op)
	path.heldPages = append(path.heldPages, cur)
	if t.isSafe(cur, op) {
		t.releaseAncestors(path)
	}

	for !isLeafPageRaw(cur) {
		internal := CastPageAsInternalPage(cur, t.codec)
		childID := internal.Lookup(key, t.cmp)
		child := t.bpm.FetchPage(childID)
		latchPage(child, op)
		path.heldPages = append(path.heldPages, child)
		if t.isSafe(child, op) {
			t.releaseAncestors(path)
		}
		cur = child
	}
	return CastPageAsLeafPage(cur, t.codec), path
}

// leftmostLeaf descends to the first (smallest-key) leaf, used by
// Begin() with no starting key.
func (t *BPlusTree[K]) leftmostLeaf() (*LeafPage[K], *crabPath) {
	path := &crabPath{op: OpRead}
	t.lockRoot(OpRead)
	path.rootLatched = true

	rootID := t.GetRootPageId()
	if !rootID.IsValid() {
		return nil, path
	}
	cur := t.bpm.FetchPage(rootID)
	latchPage(cur, OpRead)
	path.heldPages = append(path.heldPages, cur)
	t.releaseAncestors(path)

	for !isLeafPageRaw(cur) {
		internal := CastPageAsInternalPage(cur, t.codec)
		childID := internal.ValueAt(0)
		child := t.bpm.FetchPage(childID)
		latchPage(child, OpRead)
		path.heldPages = append(path.heldPages, child)
		t.releaseAncestors(path)
		cur = child
	}
	return CastPageAsLeafPage(cur, t.codec), path
}

// GetValue performs a point lookup.
func (t *BPlusTree[K]) GetValue(key K) (page.RID, bool) {
	if t.IsEmpty() {
		return page.RID{}, false
	}
	leaf, path := t.findLeaf(key, OpRead)
	if leaf == nil {
		t.releaseRemaining(path, false)
		return page.RID{}, false
	}
	rid, found := leaf.Lookup(key, t.cmp)
	t.releaseRemaining(path, false)
	return rid, found
}

// Insert adds (key, rid), returning false if key is already present.
func (t *BPlusTree[K]) Insert(key K, rid page.RID) bool {
	t.rootLatch.WLock()
	if !t.GetRootPageId().IsValid() {
		t.startNewTree(key, rid)
		t.rootLatch.WUnlock()
		return true
	}
	t.rootLatch.WUnlock()

	leaf, path := t.findLeaf(key, OpInsert)
	if leaf == nil {
		// A concurrent Remove emptied the tree between the check above
		// and findLeaf's descent; path still holds the root write latch,
		// so it's safe to start a fresh tree here.
		t.startNewTree(key, rid)
		if path.rootLatched {
			t.unlockRoot(path.op)
		}
		return true
	}
	if _, found := leaf.Lookup(key, t.cmp); found {
		t.releaseRemaining(path, false)
		return false
	}
	leaf.Insert(key, rid, t.cmp)
	if leaf.GetSize() > leaf.GetMaxSize() {
		t.splitAndPropagate(path)
	} else {
		t.releaseRemaining(path, true)
	}
	return true
}

// startNewTree allocates the first leaf page (the initial root) and
// inserts the single (key, rid). Caller holds the tree-root write latch.
func (t *BPlusTree[K]) startNewTree(key K, rid page.RID) {
	p := t.bpm.NewPage()
	leaf := CastPageAsLeafPage(p, t.codec)
	leaf.Init(p.ID(), types.InvalidPageID, t.leafMaxSize)
	leaf.Insert(key, rid, t.cmp)
	t.setRootPageId(p.ID())
	t.bpm.UnpinPage(p.ID(), true)
}

// splitAndPropagate handles a leaf (or, recursively, internal node)
// that has grown one entry past max_size: split it, and insert the
// separator into the parent, splitting that too if needed, all the way
// up to a fresh root if the split reaches the top of path.
func (t *BPlusTree[K]) splitAndPropagate(path *crabPath) {
	idx := len(path.heldPages) - 1
	for {
		cur := path.heldPages[idx]
		var sepKey K
		var newSiblingID types.PageID
		overflowed := true

		if isLeafPageRaw(cur) {
			leaf := CastPageAsLeafPage(cur, t.codec)
			if leaf.GetSize() <= leaf.GetMaxSize() {
				overflowed = false
			} else {
				newPage := t.bpm.NewPage()
				newLeaf := CastPageAsLeafPage(newPage, t.codec)
				newLeaf.Init(newPage.ID(), leaf.GetParentPageId(), leaf.GetMaxSize())
				leaf.MoveHalfTo(newLeaf)
				newLeaf.SetNextPageId(leaf.GetNextPageId())
				leaf.SetNextPageId(newLeaf.GetPageId())
				sepKey = newLeaf.KeyAt(0)
				newSiblingID = newLeaf.GetPageId()
				t.bpm.UnpinPage(newSiblingID, true)
			}
		} else {
			internal := CastPageAsInternalPage(cur, t.codec)
			if internal.GetSize() <= internal.GetMaxSize() {
				overflowed = false
			} else {
				newPage := t.bpm.NewPage()
				newInternal := CastPageAsInternalPage(newPage, t.codec)
				newInternal.Init(newPage.ID(), internal.GetParentPageId(), internal.GetMaxSize())
				internal.MoveHalfTo(newInternal)
				sepKey = newInternal.KeyAt(0)
				t.reparentChildren(newInternal, 0, newInternal.GetSize())
				newSiblingID = newInternal.GetPageId()
				t.bpm.UnpinPage(newSiblingID, true)
			}
		}

		if !overflowed {
			unlatchPage(cur, path.op)
			t.bpm.UnpinPage(cur.ID(), true)
			idx--
			break
		}

		if idx == 0 {
			newRootPage := t.bpm.NewPage()
			newRoot := CastPageAsInternalPage(newRootPage, t.codec)
			newRoot.Init(newRootPage.ID(), types.InvalidPageID, t.internalMaxSize)
			newRoot.PopulateNewRoot(cur.ID(), sepKey, newSiblingID)
			(&bPlusTreePage{cur}).SetParentPageId(newRoot.GetPageId())
			siblingPg := t.bpm.FetchPage(newSiblingID)
			(&bPlusTreePage{siblingPg}).SetParentPageId(newRoot.GetPageId())
			t.bpm.UnpinPage(newSiblingID, true)
			t.setRootPageId(newRoot.GetPageId())
			t.bpm.UnpinPage(newRoot.GetPageId(), true)
			unlatchPage(cur, path.op)
			t.bpm.UnpinPage(cur.ID(), true)
			idx--
			break
		}

		parent := CastPageAsInternalPage(path.heldPages[idx-1], t.codec)
		parent.InsertNodeAfter(cur.ID(), sepKey, newSiblingID)
		unlatchPage(cur, path.op)
		t.bpm.UnpinPage(cur.ID(), true)
		idx--
	}

	for i := idx; i >= 0; i-- {
		p := path.heldPages[i]
		unlatchPage(p, path.op)
		t.bpm.UnpinPage(p.ID(), false)
	}
	if path.rootLatched {
		t.unlockRoot(path.op)
	}
}

func (t *BPlusTree[K]) reparentChildren(internal *InternalPage[K], from, to int32) {
	for i := from; i < to; i++ {
		childID := internal.ValueAt(i)
		childPg := t.bpm.FetchPage(childID)
		(&bPlusTreePage{childPg}).SetParentPageId(internal.GetPageId())
		t.bpm.UnpinPage(childID, true)
	}
}

// Remove deletes key, a no-op if key is absent.
func (t *BPlusTree[K]) Remove(key K) {
	if t.IsEmpty() {
		return
	}
	leaf, path := t.findLeaf(key, OpDelete)
	if leaf == nil {
		// Tree was concurrently emptied by another Remove; nothing to do.
		t.releaseRemaining(path, false)
		return
	}
	sizeBefore := leaf.GetSize()
	leaf.Delete(key, t.cmp)
	if leaf.GetSize() == sizeBefore {
		// key was absent
		t.releaseRemaining(path, false)
		return
	}
	if leaf.IsUnderflow() {
		deleted := mapset.NewSet[types.PageID]()
		t.coalesceOrRedistribute(path, deleted)
		deleted.Each(func(id types.PageID) bool {
			t.bpm.DeletePage(id)
			return false
		})
	} else {
		t.releaseRemaining(path, true)
	}
}

// coalesceOrRedistribute implements spec §4.2's Remove continuation:
// merge an underflowed node into a sibling (recursing upward if that
// empties the parent below min_size), or borrow one entry from a
// sibling (no recursion needed). Deleted page ids are added to
// deletedPages rather than removed from the buffer pool immediately,
// so callers can drop them only after every latch in path is released.
func (t *BPlusTree[K]) coalesceOrRedistribute(path *crabPath, deletedPages mapset.Set[types.PageID]) {
	idx := len(path.heldPages) - 1
	for idx >= 0 {
		cur := path.heldPages[idx]
		if idx == 0 {
			t.adjustRoot(cur, deletedPages)
			unlatchPage(cur, path.op)
			t.bpm.UnpinPage(cur.ID(), true)
			idx--
			break
		}

		curBT := &bPlusTreePage{cur}
		if !curBT.IsUnderflow() {
			unlatchPage(cur, path.op)
			t.bpm.UnpinPage(cur.ID(), true)
			idx--
			break
		}

		parent := CastPageAsInternalPage(path.heldPages[idx-1], t.codec)
		curIdx := parent.ValueIndex(cur.ID())
		useRightSibling := curIdx == 0
		var siblingIdx int32
		if useRightSibling {
			siblingIdx = 1
		} else {
			siblingIdx = curIdx - 1
		}
		siblingID := parent.ValueAt(siblingIdx)
		siblingPg := t.bpm.FetchPage(siblingID)
		siblingPg.WLatch()
		siblingBT := &bPlusTreePage{siblingPg}
		curIsLeaf := isLeafPageRaw(cur)

		if siblingBT.GetSize()+curBT.GetSize() <= curBT.GetMaxSize() {
			// Coalesce: final order is left-then-right.
			if useRightSibling {
				// cur is left, sibling is right: sibling merges into cur.
				sepIdx := siblingIdx
				if curIsLeaf {
					CastPageAsLeafPage(siblingPg, t.codec).MoveAllTo(CastPageAsLeafPage(cur, t.codec))
				} else {
					in := CastPageAsInternalPage(cur, t.codec)
					sn := CastPageAsInternalPage(siblingPg, t.codec)
					base := in.GetSize()
					midKey := parent.KeyAt(sepIdx)
					sn.MoveAllTo(in, midKey)
					t.reparentChildren(in, base, in.GetSize())
				}
				parent.Remove(sepIdx)
				deletedPages.Add(siblingID)
				siblingPg.WUnlatch()
				t.bpm.UnpinPage(siblingID, true)
				unlatchPage(cur, path.op)
				t.bpm.UnpinPage(cur.ID(), true)
			} else {
				// sibling is left, cur is right: cur merges into sibling.
				sepIdx := curIdx
				if curIsLeaf {
					CastPageAsLeafPage(cur, t.codec).MoveAllTo(CastPageAsLeafPage(siblingPg, t.codec))
				} else {
					sn := CastPageAsInternalPage(siblingPg, t.codec)
					in := CastPageAsInternalPage(cur, t.codec)
					base := sn.GetSize()
					midKey := parent.KeyAt(sepIdx)
					in.MoveAllTo(sn, midKey)
					t.reparentChildren(sn, base, sn.GetSize())
				}
				parent.Remove(sepIdx)
				deletedPages.Add(cur.ID())
				unlatchPage(cur, path.op)
				t.bpm.UnpinPage(cur.ID(), true)
				siblingPg.WUnlatch()
				t.bpm.UnpinPage(siblingID, true)
			}
			idx--
			continue
		}

		// Redistribute: borrow one entry, fix up the parent separator,
		// no further propagation upward.
		if useRightSibling {
			sepIdx := siblingIdx
			if curIsLeaf {
				sf := CastPageAsLeafPage(siblingPg, t.codec)
				lf := CastPageAsLeafPage(cur, t.codec)
				sf.MoveFirstToEndOf(lf)
				parent.setKeyAt(sepIdx, sf.KeyAt(0))
			} else {
				sn := CastPageAsInternalPage(siblingPg, t.codec)
				in := CastPageAsInternalPage(cur, t.codec)
				midKey := parent.KeyAt(sepIdx)
				newSentinel := sn.MoveFirstToEndOf(in, midKey)
				t.reparentChildren(in, in.GetSize()-1, in.GetSize())
				parent.setKeyAt(sepIdx, newSentinel)
			}
		} else {
			sepIdx := curIdx
			if curIsLeaf {
				sf := CastPageAsLeafPage(siblingPg, t.codec)
				lf := CastPageAsLeafPage(cur, t.codec)
				sf.MoveLastToFrontOf(lf)
				parent.setKeyAt(sepIdx, lf.KeyAt(0))
			} else {
				sn := CastPageAsInternalPage(siblingPg, t.codec)
				in := CastPageAsInternalPage(cur, t.codec)
				midKey := parent.KeyAt(sepIdx)
				newSep := sn.MoveLastToFrontOf(in, midKey)
				t.reparentChildren(in, 0, 1)
				parent.setKeyAt(sepIdx, newSep)
			}
		}
		siblingPg.WUnlatch()
		t.bpm.UnpinPage(siblingID, true)
		unlatchPage(cur, path.op)
		t.bpm.UnpinPage(cur.ID(), true)
		idx--
		break
	}

	for i := idx; i >= 0; i-- {
		p := path.heldPages[i]
		unlatchPage(p, path.op)
		t.bpm.UnpinPage(p.ID(), false)
	}
	if path.rootLatched {
		t.unlockRoot(path.op)
	}
}

// adjustRoot implements spec §4.2's root special case: an emptied leaf
// root clears the tree, and an internal root reduced to its single
// remaining child is replaced by that child.
func (t *BPlusTree[K]) adjustRoot(root *page.Page, deletedPages mapset.Set[types.PageID]) {
	bt := &bPlusTreePage{root}
	if isLeafPageRaw(root) {
		if bt.GetSize() == 0 {
			t.setRootPageId(types.InvalidPageID)
			deletedPages.Add(root.ID())
		}
		return
	}
	internal := CastPageAsInternalPage(root, t.codec)
	if internal.GetSize() == 1 {
		onlyChild := internal.RemoveAndReturnOnlyChild()
		childPg := t.bpm.FetchPage(onlyChild)
		(&bPlusTreePage{childPg}).SetParentPageId(types.InvalidPageID)
		t.bpm.UnpinPage(onlyChild, true)
		t.setRootPageId(onlyChild)
		deletedPages.Add(root.ID())
	}
}
