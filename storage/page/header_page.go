package page

import (
	"github.com/ashgrove/txcore/types"
)

// HeaderPage is the fixed page-0 record that maps an index's name to the
// page id of its current root, the same "name -> page id" record layout
// the teacher's hash-table header page uses for its own index type. A B+
// tree looks its root up here on open instead of caching a bare page id,
// so root splits (which allocate a new root page) stay durable across a
// restart once the header page is flushed.
//
// Record format, repeated until a zero-length name is hit:
//
//	----------------------------------------
//	| name length (4) | name | root page id (4) |
//	----------------------------------------
type HeaderPage struct {
	*Page
}

func CastPageAsHeaderPage(p *Page) *HeaderPage {
	if p == nil {
		return nil
	}
	return &HeaderPage{p}
}

func (h *HeaderPage) InsertRecord(name string, rootID types.PageID) bool {
	offset := h.findRecordOffset(name)
	if offset >= 0 {
		return false
	}
	offset = int(h.recordCount() )
	pos := CommonHeaderSize + 4
	// walk to the first empty slot (name length 0)
	for {
		nameLen := types.NewUInt32FromBytes(h.Data()[pos:])
		if nameLen == 0 {
			break
		}
		pos += 4 + uint32(nameLen) + 4
	}
	h.Copy(pos, types.UInt32(len(name)).Serialize())
	pos += 4
	h.Copy(pos, []byte(name))
	pos += uint32(len(name))
	h.Copy(pos, rootID.Serialize())
	_ = offset
	return true
}

func (h *HeaderPage) UpdateRecord(name string, rootID types.PageID) bool {
	pos := h.findRecordOffset(name)
	if pos < 0 {
		return h.InsertRecord(name, rootID)
	}
	nameLen := uint32(types.NewUInt32FromBytes(h.Data()[pos:]))
	h.Copy(uint32(pos)+4+nameLen, rootID.Serialize())
	return true
}

func (h *HeaderPage) FetchRootID(name string) (types.PageID, bool) {
	pos := h.findRecordOffset(name)
	if pos < 0 {
		return types.InvalidPageID, false
	}
	nameLen := uint32(types.NewUInt32FromBytes(h.Data()[pos:]))
	return types.NewPageIDFromBytes(h.Data()[uint32(pos)+4+nameLen:]), true
}

// findRecordOffset returns the byte offset of the record whose name
// matches, or -1. Records start after the common page header and a
// 4-byte record-count field.
func (h *HeaderPage) findRecordOffset(name string) int {
	pos := CommonHeaderSize + 4
	for {
		nameLen := uint32(types.NewUInt32FromBytes(h.Data()[pos:]))
		if nameLen == 0 {
			return -1
		}
		candidate := string(h.Data()[pos+4 : pos+4+nameLen])
		if candidate == name {
			return int(pos)
		}
		pos += 4 + nameLen + 4
	}
}

func (h *HeaderPage) recordCount() uint32 {
	return uint32(types.NewUInt32FromBytes(h.Data()[CommonHeaderSize:]))
}
