// this code is from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package tuple

import (
	"bytes"
	"encoding/binary"

	"github.com/ashgrove/txcore/storage/page"
)

// TupleSizeOffsetInLogrecord is the byte width of a tuple's length prefix
// wherever a tuple is serialized inline (log records). Table pages store
// the raw payload and keep its size in the slot array instead.
var TupleSizeOffsetInLogrecord = 4

// Tuple is an opaque byte payload plus the record id it currently lives
// at. Neither the table heap nor the log/recovery layer interprets the
// bytes; callers are responsible for whatever encoding they choose.
//
// Wire format:
// ---------------------------------------------------------------------
// | size (4 bytes) | payload (size bytes) |
// ---------------------------------------------------------------------
type Tuple struct {
	rid  *page.RID
	size uint32
	data []byte
}

func NewTuple(rid *page.RID, size uint32, data []byte) *Tuple {
	return &Tuple{rid, size, data}
}

func (t *Tuple) Size() uint32 {
	return t.size
}

func (t *Tuple) SetSize(size uint32) {
	t.size = size
}

func (t *Tuple) Data() []byte {
	return t.data
}

func (t *Tuple) SetData(data []byte) {
	t.data = data
}

func (t *Tuple) GetRID() *page.RID {
	return t.rid
}

func (t *Tuple) SetRID(rid *page.RID) {
	t.rid = rid
}

func (t *Tuple) Copy(offset uint32, data []byte) {
	copy(t.data[offset:], data)
}

func (tuple_ *Tuple) SerializeTo(storage []byte) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, tuple_.size)
	sizeInBytes := buf.Bytes()
	copy(storage, sizeInBytes)
	copy(storage[TupleSizeOffsetInLogrecord:TupleSizeOffsetInLogrecord+int(tuple_.size)], tuple_.data)
}

func (tuple_ *Tuple) DeserializeFrom(storage []byte) {
	buf := bytes.NewBuffer(storage)
	binary.Read(buf, binary.LittleEndian, &tuple_.size)
	tuple_.data = make([]byte, tuple_.size)
	copy(tuple_.data, storage[TupleSizeOffsetInLogrecord:TupleSizeOffsetInLogrecord+int(tuple_.size)])
}

func (tuple_ *Tuple) GetDeepCopy() *Tuple {
	ret := new(Tuple)
	ret.size = tuple_.size
	ret.data = make([]byte, tuple_.size)
	copy(ret.data, tuple_.data)
	if tuple_.rid != nil {
		copied_rid := new(page.RID)
		copied_rid.Set(tuple_.rid.GetPageId(), tuple_.rid.GetSlotNum())
		ret.rid = copied_rid
	}
	return ret
}
