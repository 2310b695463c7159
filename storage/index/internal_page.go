package index

import (
	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/types"
)

// InternalPage is a B+ tree internal node: size child page ids and
// size-1 separator keys. Slot 0's key is an unused sentinel (treated as
// -infinity by Lookup) so the array can carry one more child than key.
type InternalPage[K any] struct {
	bPlusTreePage
	codec KeyCodec[K]
}

func CastPageAsInternalPage[K any](p *page.Page, codec KeyCodec[K]) *InternalPage[K] {
	return &InternalPage[K]{bPlusTreePage{p}, codec}
}

func (n *InternalPage[K]) entrySize() uint32 { return n.codec.Size + 4 }

func (n *InternalPage[K]) slotOffset(i int32) uint32 {
	return page.CommonHeaderSize + sizeIndexPageHeader + uint32(i)*n.entrySize()
}

func (n *InternalPage[K]) Init(pageID, parentID types.PageID, maxSize int32) {
	n.setPageType(internalPageType)
	n.SetSize(0)
	n.SetPageId(pageID)
	n.SetParentPageId(parentID)
	n.SetMaxSize(maxSize)
}

func (n *InternalPage[K]) KeyAt(i int32) K {
	return n.codec.Decode(n.Data()[n.slotOffset(i):])
}

func (n *InternalPage[K]) setKeyAt(i int32, key K) {
	n.Copy(n.slotOffset(i), n.codec.Encode(key))
}

func (n *InternalPage[K]) ValueAt(i int32) types.PageID {
	return types.NewPageIDFromBytes(n.Data()[n.slotOffset(i)+n.codec.Size:])
}

func (n *InternalPage[K]) setValueAt(i int32, v types.PageID) {
	n.Copy(n.slotOffset(i)+n.codec.Size, v.Serialize())
}

func (n *InternalPage[K]) setEntry(i int32, key K, v types.PageID) {
	n.setKeyAt(i, key)
	n.setValueAt(i, v)
}

// ValueIndex returns the slot holding childID, or -1.
func (n *InternalPage[K]) ValueIndex(childID types.PageID) int32 {
	for i := int32(0); i < n.GetSize(); i++ {
		if n.ValueAt(i) == childID {
			return i
		}
	}
	return -1
}

// Lookup implements spec §4.2's internal-node rule: the child for key is
// the one at the last slot i whose key is <= key (slot 0's key is
// -infinity, so it's always a valid fallback).
func (n *InternalPage[K]) Lookup(key K, cmp Comparator[K]) types.PageID {
	lo, hi := int32(1), n.GetSize()-1
	result := int32(0)
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if cmp(n.KeyAt(mid), key) <= 0 {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return n.ValueAt(result)
}

// PopulateNewRoot sets up a brand new root with exactly two children:
// the old root (slot 0, sentinel key) and the new sibling produced by
// splitting it, separated by key.
func (n *InternalPage[K]) PopulateNewRoot(oldChild types.PageID, key K, newChild types.PageID) {
	n.setValueAt(0, oldChild)
	n.setEntry(1, key, newChild)
	n.SetSize(2)
}

// InsertNodeAfter inserts (key, newChild) right after the slot holding
// oldChild, used when a child split and its separator propagates up.
func (n *InternalPage[K]) InsertNodeAfter(oldChild types.PageID, key K, newChild types.PageID) int32 {
	idx := n.ValueIndex(oldChild) + 1
	size := n.GetSize()
	for i := size; i > idx; i-- {
		n.setEntry(i, n.KeyAt(i-1), n.ValueAt(i-1))
	}
	n.setEntry(idx, key, newChild)
	n.IncreaseSize(1)
	return n.GetSize()
}

// Remove deletes the entry at index i (shifting later entries left).
func (n *InternalPage[K]) Remove(i int32) {
	size := n.GetSize()
	for j := i; j < size-1; j++ {
		n.setEntry(j, n.KeyAt(j+1), n.ValueAt(j+1))
	}
	n.IncreaseSize(-1)
}

// RemoveAndReturnOnlyChild is called on adjust_root when an internal
// root shrinks to a single child: that child becomes the new root.
func (n *InternalPage[K]) RemoveAndReturnOnlyChild() types.PageID {
	child := n.ValueAt(0)
	n.SetSize(0)
	return child
}

// MoveHalfTo appends the upper half of n's entries (including the
// sentinel-keyed first of that half, whose key becomes the caller's
// separator) onto recipient as part of a split.
func (n *InternalPage[K]) MoveHalfTo(recipient *InternalPage[K]) {
	size := n.GetSize()
	split := size / 2
	for i := split; i < size; i++ {
		recipient.setEntry(i-split, n.KeyAt(i), n.ValueAt(i))
	}
	recipient.SetSize(size - split)
	n.SetSize(split)
}

// MoveAllTo appends every entry of n onto recipient during a coalesce.
// middleKey becomes the separator for n's first (sentinel) child, since
// it is dropped from the parent as part of this merge.
func (n *InternalPage[K]) MoveAllTo(recipient *InternalPage[K], middleKey K) {
	base := recipient.GetSize()
	recipient.setEntry(base, middleKey, n.ValueAt(0))
	size := n.GetSize()
	for i := int32(1); i < size; i++ {
		recipient.setEntry(base+i, n.KeyAt(i), n.ValueAt(i))
	}
	recipient.SetSize(base + size)
	n.SetSize(0)
}

// MoveFirstToEndOf redistributes: n lends its first child to
// recipient's tail. middleKey is the parent separator between them,
// which becomes the key for the moved entry in its new home; n's new
// first entry (formerly at index 1) becomes the new sentinel.
func (n *InternalPage[K]) MoveFirstToEndOf(recipient *InternalPage[K], middleKey K) K {
	movedChild := n.ValueAt(0)
	newSentinelKey := n.KeyAt(1)
	recipient.setEntry(recipient.GetSize(), middleKey, movedChild)
	recipient.IncreaseSize(1)
	for i := int32(1); i < n.GetSize(); i++ {
		n.setEntry(i-1, n.KeyAt(i), n.ValueAt(i))
	}
	n.IncreaseSize(-1)
	return newSentinelKey
}

// MoveLastToFrontOf redistributes: n lends its last child to
// recipient's head. middleKey is the parent separator between them; it
// becomes recipient's new sentinel key's replacement at slot 1, and
// n's former last key becomes the new parent separator, returned here.
func (n *InternalPage[K]) MoveLastToFrontOf(recipient *InternalPage[K], middleKey K) K {
	last := n.GetSize() - 1
	movedChild := n.ValueAt(last)
	newSeparator := n.KeyAt(last)
	for i := recipient.GetSize(); i > 0; i-- {
		recipient.setEntry(i, recipient.KeyAt(i-1), recipient.ValueAt(i-1))
	}
	recipient.setEntry(1, middleKey, recipient.ValueAt(0))
	recipient.setValueAt(0, movedChild)
	recipient.IncreaseSize(1)
	n.IncreaseSize(-1)
	return newSeparator
}
