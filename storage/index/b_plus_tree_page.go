// Page layout grounded on the teacher's storage/access/table_page.go slotted
// page: a small fixed header living right after the page's common
// (page id, LSN) prefix, followed by a packed array of fixed-width slots.

package index

import (
	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/types"
)

// pageType tags whether a B+ tree node's page is a leaf or an internal
// node, mirroring IndexPageType in the teacher's hash/skip-list page
// headers.
type pageType int32

const (
	invalidPageType pageType = iota
	leafPageType
	internalPageType
)

// Shared header, common to both leaf and internal node pages:
//
//	------------------------------------------------
//	| page type(4) | size(4) | max size(4) | parent id(4) |
//	------------------------------------------------
const (
	offsetPageType     = page.CommonHeaderSize + 0
	offsetSize         = page.CommonHeaderSize + 4
	offsetMaxSize      = page.CommonHeaderSize + 8
	offsetParentPageId = page.CommonHeaderSize + 12
	sizeIndexPageHeader = uint32(16)
)

// bPlusTreePage is the common portion of a leaf or internal node's page,
// the index-package analogue of TablePage's embedding of *page.Page.
type bPlusTreePage struct {
	*page.Page
}

func (p *bPlusTreePage) IsLeafPage() bool {
	return types.PageID(p.getPageType()) == types.PageID(leafPageType)
}

func (p *bPlusTreePage) getPageType() pageType {
	return pageType(types.NewInt32FromBytes(p.Data()[offsetPageType:]))
}

func (p *bPlusTreePage) setPageType(t pageType) {
	p.Copy(offsetPageType, types.Int32(t).Serialize())
}

func (p *bPlusTreePage) GetSize() int32 {
	return int32(types.NewInt32FromBytes(p.Data()[offsetSize:]))
}

func (p *bPlusTreePage) SetSize(size int32) {
	p.Copy(offsetSize, types.Int32(size).Serialize())
}

func (p *bPlusTreePage) IncreaseSize(delta int32) {
	p.SetSize(p.GetSize() + delta)
}

func (p *bPlusTreePage) GetMaxSize() int32 {
	return int32(types.NewInt32FromBytes(p.Data()[offsetMaxSize:]))
}

func (p *bPlusTreePage) SetMaxSize(maxSize int32) {
	p.Copy(offsetMaxSize, types.Int32(maxSize).Serialize())
}

// GetMinSize follows spec's min_size rule: ceil(max/2) for leaves and
// ceil((max+1)/2) for internal nodes, whose slot 0 key is an unused
// sentinel; the two differ (by one) only when max is even.
func (p *bPlusTreePage) GetMinSize() int32 {
	if p.IsLeafPage() {
		return (p.GetMaxSize() + 1) / 2
	}
	return (p.GetMaxSize() + 2) / 2
}

func (p *bPlusTreePage) IsRootPage() bool {
	return !p.GetParentPageId().IsValid()
}

func (p *bPlusTreePage) GetParentPageId() types.PageID {
	return types.NewPageIDFromBytes(p.Data()[offsetParentPageId:])
}

func (p *bPlusTreePage) SetParentPageId(id types.PageID) {
	p.Copy(offsetParentPageId, id.Serialize())
}

func (p *bPlusTreePage) GetPageId() types.PageID {
	return p.ID()
}

// IsFull reports whether the node holds at least max_size entries. The
// tree's insert path does not use it: it inserts first and splits once
// the size exceeds max_size.
func (p *bPlusTreePage) IsFull() bool {
	return p.GetSize() >= p.GetMaxSize()
}

// IsUnderflow reports whether the node has fallen below min_size and
// needs coalesce_or_redistribute.
func (p *bPlusTreePage) IsUnderflow() bool {
	return p.GetSize() < p.GetMinSize()
}
