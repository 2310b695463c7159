package index

import (
	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/types"
)

// Leaf header, right after the shared bPlusTreePage header:
//
//	------------------
//	| next page id(4) |
//	------------------
const (
	offsetLeafNextPageId = page.CommonHeaderSize + sizeIndexPageHeader
	sizeLeafPageHeader   = sizeIndexPageHeader + 4
)

const ridSize = uint32(8)

// LeafPage is a B+ tree leaf node: a sorted array of (key, RID) pairs
// plus the next_page_id sibling link range scans walk.
type LeafPage[K any] struct {
	bPlusTreePage
	codec KeyCodec[K]
}

func CastPageAsLeafPage[K any](p *page.Page, codec KeyCodec[K]) *LeafPage[K] {
	return &LeafPage[K]{bPlusTreePage{p}, codec}
}

func (l *LeafPage[K]) entrySize() uint32 { return l.codec.Size + ridSize }

func (l *LeafPage[K]) slotOffset(i int32) uint32 {
	return page.CommonHeaderSize + sizeLeafPageHeader + uint32(i)*l.entrySize()
}

// Init resets the page to an empty leaf with no siblings.
func (l *LeafPage[K]) Init(pageID, parentID types.PageID, maxSize int32) {
	l.setPageType(leafPageType)
	l.SetSize(0)
	l.SetPageId(pageID)
	l.SetParentPageId(parentID)
	l.SetMaxSize(maxSize)
	l.SetNextPageId(types.InvalidPageID)
}

func (l *LeafPage[K]) GetNextPageId() types.PageID {
	return types.NewPageIDFromBytes(l.Data()[offsetLeafNextPageId:])
}

func (l *LeafPage[K]) SetNextPageId(id types.PageID) {
	l.Copy(offsetLeafNextPageId, id.Serialize())
}

func (l *LeafPage[K]) KeyAt(i int32) K {
	return l.codec.Decode(l.Data()[l.slotOffset(i):])
}

func (l *LeafPage[K]) RIDAt(i int32) page.RID {
	off := l.slotOffset(i) + l.codec.Size
	var rid page.RID
	rid.Set(types.NewPageIDFromBytes(l.Data()[off:]), uint32(types.NewInt32FromBytes(l.Data()[off+4:])))
	return rid
}

func (l *LeafPage[K]) setEntry(i int32, key K, rid page.RID) {
	off := l.slotOffset(i)
	l.Copy(off, l.codec.Encode(key))
	l.Copy(off+l.codec.Size, rid.GetPageId().Serialize())
	l.Copy(off+l.codec.Size+4, types.Int32(rid.GetSlotNum()).Serialize())
}

// KeyIndex returns the first index i such that array[i] >= key (spec
// §4.2's key_index), via binary search.
func (l *LeafPage[K]) KeyIndex(key K, cmp Comparator[K]) int32 {
	lo, hi := int32(0), l.GetSize()-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if cmp(l.KeyAt(mid), key) >= 0 {
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Lookup returns the RID for key and true, or the zero RID and false.
func (l *LeafPage[K]) Lookup(key K, cmp Comparator[K]) (page.RID, bool) {
	i := l.KeyIndex(key, cmp)
	if i < l.GetSize() && cmp(l.KeyAt(i), key) == 0 {
		return l.RIDAt(i), true
	}
	return page.RID{}, false
}

// Insert places (key, rid) in sorted order and returns the new size.
// Callers must already know key is absent (the tree checks via Lookup
// before calling this, per spec's uniqueness requirement).
func (l *LeafPage[K]) Insert(key K, rid page.RID, cmp Comparator[K]) int32 {
	idx := l.KeyIndex(key, cmp)
	size := l.GetSize()
	for i := size; i > idx; i-- {
		k := l.KeyAt(i - 1)
		r := l.RIDAt(i - 1)
		l.setEntry(i, k, r)
	}
	l.setEntry(idx, key, rid)
	l.IncreaseSize(1)
	return l.GetSize()
}

// Delete removes key if present and returns the new size either way.
func (l *LeafPage[K]) Delete(key K, cmp Comparator[K]) int32 {
	idx := l.KeyIndex(key, cmp)
	size := l.GetSize()
	if idx >= size || cmp(l.KeyAt(idx), key) != 0 {
		return size
	}
	for i := idx; i < size-1; i++ {
		l.setEntry(i, l.KeyAt(i+1), l.RIDAt(i+1))
	}
	l.IncreaseSize(-1)
	return l.GetSize()
}

// MoveHalfTo appends the upper half of l's entries onto recipient,
// which must be empty, as part of a split.
func (l *LeafPage[K]) MoveHalfTo(recipient *LeafPage[K]) {
	size := l.GetSize()
	split := size / 2
	for i := split; i < size; i++ {
		recipient.setEntry(i-split, l.KeyAt(i), l.RIDAt(i))
	}
	recipient.SetSize(size - split)
	l.SetSize(split)
}

// MoveAllTo appends every entry of l onto recipient (coalesce target)
// and relinks the sibling chain so recipient now points past l.
func (l *LeafPage[K]) MoveAllTo(recipient *LeafPage[K]) {
	base := recipient.GetSize()
	size := l.GetSize()
	for i := int32(0); i < size; i++ {
		recipient.setEntry(base+i, l.KeyAt(i), l.RIDAt(i))
	}
	recipient.SetSize(base + size)
	recipient.SetNextPageId(l.GetNextPageId())
	l.SetSize(0)
}

// MoveFirstToEndOf redistributes: l lends its first entry to recipient's
// tail (recipient precedes l in key order).
func (l *LeafPage[K]) MoveFirstToEndOf(recipient *LeafPage[K]) {
	k, r := l.KeyAt(0), l.RIDAt(0)
	recipient.setEntry(recipient.GetSize(), k, r)
	recipient.IncreaseSize(1)
	for i := int32(1); i < l.GetSize(); i++ {
		l.setEntry(i-1, l.KeyAt(i), l.RIDAt(i))
	}
	l.IncreaseSize(-1)
}

// MoveLastToFrontOf redistributes: l lends its last entry to recipient's
// head (recipient follows l in key order).
func (l *LeafPage[K]) MoveLastToFrontOf(recipient *LeafPage[K]) {
	last := l.GetSize() - 1
	k, r := l.KeyAt(last), l.RIDAt(last)
	for i := recipient.GetSize(); i > 0; i-- {
		recipient.setEntry(i, recipient.KeyAt(i-1), recipient.RIDAt(i-1))
	}
	recipient.setEntry(0, k, r)
	recipient.IncreaseSize(1)
	l.IncreaseSize(-1)
}
