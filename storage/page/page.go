// this code is from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package page

import (
	"sync/atomic"

	"github.com/ashgrove/txcore/common"
	"github.com/ashgrove/txcore/types"
)

const PageSize = common.PageSize

// page body header, common to every page layout built on top of Page:
//
//	--------------------------------
//	| PageId (4) | LSN (8) | ... |
//	--------------------------------
//
// TablePage and the B+ tree leaf/internal page layouts start their own
// headers right after this common prefix.
const (
	offsetPageID = uint32(0)
	offsetLSN    = uint32(4)
	CommonHeaderSize = uint32(12)
)

// Page is a single frame's worth of buffer-pool-managed memory: the raw
// bytes plus the bookkeeping (pin count, dirty flag, latch) the buffer pool
// manager and latch-crabbing callers need. Concrete layouts (TablePage,
// B+ tree leaf/internal pages) are thin views that interpret Data()'s
// bytes; they never copy it.
type Page struct {
	id       types.PageID
	pinCount int32
	isDirty  bool
	data     []byte
	latch    common.ReaderWriterLatch
}

func New(id types.PageID, isDirty bool, data []byte) *Page {
	return &Page{id: id, isDirty: isDirty, data: data, latch: common.NewRWLatch()}
}

func NewEmpty(id types.PageID) *Page {
	data := make([]byte, PageSize)
	p := &Page{id: id, pinCount: 1, data: data, latch: common.NewRWLatch()}
	p.SetPageId(id)
	return p
}

func (p *Page) IncPinCount() { atomic.AddInt32(&p.pinCount, 1) }

func (p *Page) DecPinCount() {
	for {
		cur := atomic.LoadInt32(&p.pinCount)
		if cur <= 0 {
			return
		}
		if atomic.CompareAndSwapInt32(&p.pinCount, cur, cur-1) {
			return
		}
	}
}

func (p *Page) PinCount() int { return int(atomic.LoadInt32(&p.pinCount)) }

func (p *Page) ID() types.PageID { return p.id }

func (p *Page) Data() []byte { return p.data }

func (p *Page) SetIsDirty(isDirty bool) { p.isDirty = isDirty }

func (p *Page) IsDirty() bool { return p.isDirty }

// Copy writes data into the page body at offset, the way every on-disk
// field setter (page id, LSN, slot headers, tuple bytes) is expressed.
func (p *Page) Copy(offset uint32, data []byte) {
	copy(p.data[offset:], data)
}

func (p *Page) SetPageId(id types.PageID) {
	p.id = id
	p.Copy(offsetPageID, id.Serialize())
}

func (p *Page) GetLSN() types.LSN {
	return types.NewLSNFromBytes(p.data[offsetLSN:])
}

func (p *Page) SetLSN(lsn types.LSN) {
	p.Copy(offsetLSN, lsn.Serialize())
}

// WLatch/RLatch expose the page's own crabbing latch; B+ tree and table
// heap code hold these across structural mutation the way the teacher's
// TablePage wraps common.ReaderWriterLatch.
func (p *Page) WLatch()   { p.latch.WLock() }
func (p *Page) WUnlatch() { p.latch.WUnlock() }
func (p *Page) RLatch()   { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
