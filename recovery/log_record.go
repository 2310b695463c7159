package recovery

import (
	"bytes"
	"encoding/binary"

	"github.com/ashgrove/txcore/common"
	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/storage/tuple"
	"github.com/ashgrove/txcore/types"
)

// LogRecordType tags what kind of change a log record describes.
type LogRecordType int32

const (
	INVALID LogRecordType = iota
	INSERT
	MARKDELETE
	APPLYDELETE
	ROLLBACKDELETE
	UPDATE
	BEGIN
	COMMIT
	ABORT
	// NEWPAGE records the allocation of a new table page during a table
	// heap's insert chain extension.
	NEWPAGE
)

// HEADER_SIZE is the width, in bytes, of the fields every log record
// carries regardless of type:
//
//	---------------------------------------------
//	| size(4) | LSN(8) | txn id(4) | prev LSN(8) | type(4) |
//	---------------------------------------------
const HEADER_SIZE = uint32(4 + types.SizeOfLSN + 4 + types.SizeOfLSN + 4)

// LogRecord is a single write-ahead-log entry. Every mutation a
// transaction makes against a table page is logged here before the page
// itself is allowed to reach disk, so recovery can redo or undo it later.
//
// For insert/delete records:
//
//	| HEADER | rid | tuple size | tuple data |
//
// For update records:
//
//	| HEADER | rid | old tuple size | old tuple data | new tuple size | new tuple data |
//
// For new-page records:
//
//	| HEADER | prev page id |
type LogRecord struct {
	Size            uint32
	Lsn             types.LSN
	Txn_id          types.TxnID
	Prev_lsn        types.LSN
	Log_record_type LogRecordType

	// delete (mark/apply/rollback) payload, used for UNDO
	Delete_rid   page.RID
	Delete_tuple tuple.Tuple

	// insert payload
	Insert_rid   page.RID
	Insert_tuple tuple.Tuple

	// update payload
	Update_rid page.RID
	Old_tuple  tuple.Tuple
	New_tuple  tuple.Tuple

	// new-page payload
	Prev_page_id types.PageID
}

// NewLogRecordTxn builds a BEGIN/COMMIT/ABORT record, which carries no
// payload beyond the common header.
func NewLogRecordTxn(txnID types.TxnID, prevLSN types.LSN, recordType LogRecordType) *LogRecord {
	return &LogRecord{
		Size:            HEADER_SIZE,
		Lsn:             common.InvalidLSN,
		Txn_id:          txnID,
		Prev_lsn:        prevLSN,
		Log_record_type: recordType,
	}
}

// NewLogRecordInsertDelete builds an INSERT, MARKDELETE, APPLYDELETE, or
// ROLLBACKDELETE record around the affected rid and tuple.
func NewLogRecordInsertDelete(txnID types.TxnID, prevLSN types.LSN, recordType LogRecordType, rid page.RID, tuple_ tuple.Tuple) *LogRecord {
	size := HEADER_SIZE + uint32(ridSize) + uint32(tuple.TupleSizeOffsetInLogrecord) + tuple_.Size()
	rec := &LogRecord{
		Size:            size,
		Lsn:             common.InvalidLSN,
		Txn_id:          txnID,
		Prev_lsn:        prevLSN,
		Log_record_type: recordType,
	}
	if recordType == INSERT {
		rec.Insert_rid = rid
		rec.Insert_tuple = tuple_
	} else {
		rec.Delete_rid = rid
		rec.Delete_tuple = tuple_
	}
	return rec
}

// NewLogRecordUpdate builds an UPDATE record carrying both the before and
// after tuple images, so undo can restore the exact original bytes.
func NewLogRecordUpdate(txnID types.TxnID, prevLSN types.LSN, updateRID page.RID, oldTuple, newTuple tuple.Tuple) *LogRecord {
	size := HEADER_SIZE + uint32(ridSize) +
		uint32(tuple.TupleSizeOffsetInLogrecord) + oldTuple.Size() +
		uint32(tuple.TupleSizeOffsetInLogrecord) + newTuple.Size()
	return &LogRecord{
		Size:            size,
		Lsn:             common.InvalidLSN,
		Txn_id:          txnID,
		Prev_lsn:        prevLSN,
		Log_record_type: UPDATE,
		Update_rid:      updateRID,
		Old_tuple:       oldTuple,
		New_tuple:       newTuple,
	}
}

// NewLogRecordNewPage builds a NEWPAGE record, noting the id of the page
// being extended from so redo can relink the chain.
func NewLogRecordNewPage(txnID types.TxnID, prevLSN types.LSN, prevPageID types.PageID) *LogRecord {
	return &LogRecord{
		Size:            HEADER_SIZE + uint32(pageIDSize),
		Lsn:             common.InvalidLSN,
		Txn_id:          txnID,
		Prev_lsn:        prevLSN,
		Log_record_type: NEWPAGE,
		Prev_page_id:    prevPageID,
	}
}

const ridSize = 8 // page id (4) + slot num (4)
const pageIDSize = 4

func (lr *LogRecord) GetLSN() types.LSN            { return lr.Lsn }
func (lr *LogRecord) GetTxnId() types.TxnID         { return lr.Txn_id }
func (lr *LogRecord) GetPrevLSN() types.LSN         { return lr.Prev_lsn }
func (lr *LogRecord) GetSize() uint32               { return lr.Size }
func (lr *LogRecord) GetLogRecordType() LogRecordType { return lr.Log_record_type }

// GetLogHeaderData serializes the five common header fields in their wire
// order: size, LSN, txn id, prev LSN, record type.
func (lr *LogRecord) GetLogHeaderData() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, lr.Size)
	binary.Write(buf, binary.LittleEndian, lr.Lsn)
	binary.Write(buf, binary.LittleEndian, lr.Txn_id)
	binary.Write(buf, binary.LittleEndian, lr.Prev_lsn)
	binary.Write(buf, binary.LittleEndian, lr.Log_record_type)
	return buf.Bytes()
}
