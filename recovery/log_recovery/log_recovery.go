// this code is from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

// Package log_recovery implements ARIES-style crash recovery over the
// write-ahead log: a redo pass that replays every logged table-page
// mutation whose LSN is newer than the page's own, followed by an undo
// pass that rolls back every transaction still open at crash time.
//
// It lives in its own package, separate from recovery, because it must
// import access to operate on table pages and access already imports
// recovery for log records; putting it alongside LogManager would be an
// import cycle.
package log_recovery

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/ashgrove/txcore/common"
	"github.com/ashgrove/txcore/recovery"
	"github.com/ashgrove/txcore/storage/access"
	"github.com/ashgrove/txcore/storage/buffer"
	"github.com/ashgrove/txcore/storage/disk"
	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/storage/tuple"
	"github.com/ashgrove/txcore/types"
)

// LogRecovery reads the log file from disk and drives the redo/undo
// passes against the buffer pool.
type LogRecovery struct {
	disk_manager        *disk.DiskManager
	buffer_pool_manager *buffer.BufferPoolManager
	log_manager         *recovery.LogManager

	// active_txn tracks, per transaction, the LSN of its most recent log
	// record seen during Redo; Undo walks each chain backward from here.
	active_txn map[types.TxnID]types.LSN
	// lsn_mapping maps a log sequence number to its byte offset in the
	// log file, so Undo can seek straight to any record by LSN.
	lsn_mapping map[types.LSN]int

	offset     int32
	log_buffer []byte
}

func NewLogRecovery(disk_manager *disk.DiskManager, buffer_pool_manager *buffer.BufferPoolManager, log_manager *recovery.LogManager) *LogRecovery {
	return &LogRecovery{
		disk_manager:        disk_manager,
		buffer_pool_manager: buffer_pool_manager,
		log_manager:         log_manager,
		active_txn:          make(map[types.TxnID]types.LSN),
		lsn_mapping:         make(map[types.LSN]int),
		offset:              0,
		log_buffer:          make([]byte, common.LogBufferSize),
	}
}

// DeserializeLogRecord reads one log record out of data, which holds
// readBytes worth of bytes starting at some file offset. It returns
// false when data doesn't even hold a full header, or the header it
// does hold has a size field of zero (the tail of the log file past
// the last record actually written).
func (log_recovery *LogRecovery) DeserializeLogRecord(data []byte, log_record *recovery.LogRecord) bool {
	if len(data) < int(recovery.HEADER_SIZE) {
		return false
	}

	header := bytes.NewBuffer(data[:recovery.HEADER_SIZE])
	binary.Read(header, binary.LittleEndian, &log_record.Size)
	binary.Read(header, binary.LittleEndian, &log_record.Lsn)
	binary.Read(header, binary.LittleEndian, &log_record.Txn_id)
	binary.Read(header, binary.LittleEndian, &log_record.Prev_lsn)
	binary.Read(header, binary.LittleEndian, &log_record.Log_record_type)

	if log_record.Size <= 0 {
		return false
	}

	pos := recovery.HEADER_SIZE
	switch log_record.Log_record_type {
	case recovery.INSERT:
		binary.Read(bytes.NewBuffer(data[pos:]), binary.LittleEndian, &log_record.Insert_rid)
		pos += uint32(unsafe.Sizeof(log_record.Insert_rid))
		log_record.Insert_tuple.DeserializeFrom(data[pos:])
	case recovery.APPLYDELETE, recovery.MARKDELETE, recovery.ROLLBACKDELETE:
		binary.Read(bytes.NewBuffer(data[pos:]), binary.LittleEndian, &log_record.Delete_rid)
		pos += uint32(unsafe.Sizeof(log_record.Delete_rid))
		log_record.Delete_tuple.DeserializeFrom(data[pos:])
	case recovery.UPDATE:
		binary.Read(bytes.NewBuffer(data[pos:]), binary.LittleEndian, &log_record.Update_rid)
		pos += uint32(unsafe.Sizeof(log_record.Update_rid))
		log_record.Old_tuple.DeserializeFrom(data[pos:])
		pos += log_record.Old_tuple.Size() + uint32(tuple.TupleSizeOffsetInLogrecord)
		log_record.New_tuple.DeserializeFrom(data[pos:])
	case recovery.NEWPAGE:
		binary.Read(bytes.NewBuffer(data[pos:]), binary.LittleEndian, &log_record.Prev_page_id)
	}

	return true
}

// Redo replays the whole log from the start against the buffer pool,
// applying every record whose LSN is newer than the LSN already
// stamped on the page it targets. Along the way it rebuilds active_txn
// (transactions that haven't committed or aborted yet) and lsn_mapping
// (for Undo's backward walk).
//
// NEWPAGE records are not LSN-checked: each one allocates a fresh page
// from the buffer pool and initialises it with the logged previous page
// id. The previous page's next-page link is not updated.
//
// It returns the greatest LSN seen, and whether any page was actually
// touched.
func (log_recovery *LogRecovery) Redo(txn *access.Transaction) (types.LSN, bool) {
	greatestLSN := types.LSN(0)
	log_recovery.log_buffer = make([]byte, common.LogBufferSize)
	var file_offset uint32 = 0
	isRedoOccured := false

	for {
		var readBytes uint32
		if !(*log_recovery.disk_manager).ReadLog(log_recovery.log_buffer, int32(file_offset), &readBytes) {
			break
		}

		var buffer_offset uint32 = 0
		var log_record recovery.LogRecord
		for log_recovery.DeserializeLogRecord(log_recovery.log_buffer[buffer_offset:readBytes], &log_record) {
			if log_record.Lsn > greatestLSN {
				greatestLSN = log_record.Lsn
			}
			log_recovery.active_txn[log_record.Txn_id] = log_record.Lsn
			log_recovery.lsn_mapping[log_record.Lsn] = int(file_offset + buffer_offset)

			switch log_record.Log_record_type {
			case recovery.INSERT:
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(log_record.Insert_rid.GetPageId()))
				if tpage.GetLSN() < log_record.GetLSN() {
					log_record.Insert_tuple.SetRID(&log_record.Insert_rid)
					tpage.InsertTuple(&log_record.Insert_tuple, log_recovery.log_manager, nil, txn)
					tpage.SetLSN(log_record.GetLSN())
					isRedoOccured = true
				}
				log_recovery.buffer_pool_manager.UnpinPage(log_record.Insert_rid.GetPageId(), true)
			case recovery.APPLYDELETE:
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(log_record.Delete_rid.GetPageId()))
				if tpage.GetLSN() < log_record.GetLSN() {
					tpage.ApplyDelete(&log_record.Delete_rid, txn, log_recovery.log_manager)
					tpage.SetLSN(log_record.GetLSN())
					isRedoOccured = true
				}
				log_recovery.buffer_pool_manager.UnpinPage(log_record.Delete_rid.GetPageId(), true)
			case recovery.MARKDELETE:
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(log_record.Delete_rid.GetPageId()))
				if tpage.GetLSN() < log_record.GetLSN() {
					tpage.MarkDelete(&log_record.Delete_rid, txn, nil, log_recovery.log_manager)
					tpage.SetLSN(log_record.GetLSN())
					isRedoOccured = true
				}
				log_recovery.buffer_pool_manager.UnpinPage(log_record.Delete_rid.GetPageId(), true)
			case recovery.ROLLBACKDELETE:
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(log_record.Delete_rid.GetPageId()))
				if tpage.GetLSN() < log_record.GetLSN() {
					tpage.RollbackDelete(&log_record.Delete_rid, txn, log_recovery.log_manager)
					tpage.SetLSN(log_record.GetLSN())
					isRedoOccured = true
				}
				log_recovery.buffer_pool_manager.UnpinPage(log_record.Delete_rid.GetPageId(), true)
			case recovery.UPDATE:
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(log_record.Update_rid.GetPageId()))
				if tpage.GetLSN() < log_record.GetLSN() {
					// UpdateTuple overwrites Old_tuple, but that's fine: Undo
					// re-reads this record from the log file from scratch.
					tpage.UpdateTuple(&log_record.New_tuple, &log_record.Old_tuple, &log_record.Update_rid, txn, nil, log_recovery.log_manager)
					tpage.SetLSN(log_record.GetLSN())
					isRedoOccured = true
				}
				log_recovery.buffer_pool_manager.UnpinPage(log_record.Update_rid.GetPageId(), true)
			case recovery.BEGIN:
				log_recovery.active_txn[log_record.Txn_id] = log_record.Lsn
			case recovery.COMMIT, recovery.ABORT:
				delete(log_recovery.active_txn, log_record.Txn_id)
			case recovery.NEWPAGE:
				new_page := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.NewPage())
				page_id := new_page.GetTablePageId()
				new_page.Init(page_id, log_record.Prev_page_id, log_recovery.log_manager, nil, txn)
				log_recovery.buffer_pool_manager.UnpinPage(page_id, true)
			}
			buffer_offset += log_record.Size
		}
		if buffer_offset == 0 {
			break
		}
		file_offset += buffer_offset
	}
	return greatestLSN, isRedoOccured
}

// Undo walks every transaction still in active_txn (meaning it reached
// neither COMMIT nor ABORT before the crash) backward through its
// Prev_lsn chain, undoing each record in turn. When an UPDATE's
// before-image no longer fits on its page, Undo deletes the tuple and
// re-inserts the before-image wherever it fits, recording the new rid in
// a RID translation table so records undone after it target the
// relocated copy rather than the original rid.
func (log_recovery *LogRecovery) Undo(txn *access.Transaction) bool {
	var log_record recovery.LogRecord
	isUndoOccured := false

	ridConv := make(map[page.RID]page.RID)
	convRID := func(rid *page.RID) *page.RID {
		if conved, ok := ridConv[*rid]; ok {
			return &conved
		}
		return rid
	}

	for _, lsn := range log_recovery.active_txn {
		for lsn != common.InvalidLSN {
			file_offset := log_recovery.lsn_mapping[lsn]
			var readBytes uint32
			(*log_recovery.disk_manager).ReadLog(log_recovery.log_buffer, int32(file_offset), &readBytes)
			log_recovery.DeserializeLogRecord(log_recovery.log_buffer[:readBytes], &log_record)

			switch log_record.Log_record_type {
			case recovery.INSERT:
				rid := convRID(&log_record.Insert_rid)
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(rid.GetPageId()))
				tpage.ApplyDelete(rid, txn, log_recovery.log_manager)
				log_recovery.buffer_pool_manager.UnpinPage(rid.GetPageId(), true)
				isUndoOccured = true
			case recovery.APPLYDELETE:
				rid := convRID(&log_record.Delete_rid)
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(rid.GetPageId()))
				log_record.Delete_tuple.SetRID(rid)
				tpage.InsertTuple(&log_record.Delete_tuple, log_recovery.log_manager, nil, txn)
				log_recovery.buffer_pool_manager.UnpinPage(rid.GetPageId(), true)
				isUndoOccured = true
			case recovery.MARKDELETE:
				rid := convRID(&log_record.Delete_rid)
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(rid.GetPageId()))
				tpage.RollbackDelete(rid, txn, log_recovery.log_manager)
				log_recovery.buffer_pool_manager.UnpinPage(rid.GetPageId(), true)
				isUndoOccured = true
			case recovery.ROLLBACKDELETE:
				rid := convRID(&log_record.Delete_rid)
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(rid.GetPageId()))
				tpage.MarkDelete(rid, txn, nil, log_recovery.log_manager)
				log_recovery.buffer_pool_manager.UnpinPage(rid.GetPageId(), true)
				isUndoOccured = true
			case recovery.UPDATE:
				orgRID := *convRID(&log_record.Update_rid)
				tpage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(orgRID.GetPageId()))
				old_tuple := new(tuple.Tuple)
				old_tuple.SetRID(new(page.RID))
				is_updated, err := tpage.UpdateTuple(&log_record.Old_tuple, old_tuple, &orgRID, txn, nil, log_recovery.log_manager)

				if !is_updated && err == access.ErrNotEnoughSpace {
					// The before-image no longer fits on this page, so undo
					// moves the tuple: delete it here and re-insert the old
					// image wherever it fits, tracking where it lands so
					// earlier (chronologically later-undone) records against
					// this rid still find it.
					tpage.ApplyDelete(&orgRID, txn, log_recovery.log_manager)

					var new_rid *page.RID
					for {
						var insErr error
						new_rid, insErr = tpage.InsertTuple(&log_record.Old_tuple, log_recovery.log_manager, nil, txn)
						if insErr == nil || insErr == access.ErrEmptyTuple {
							break
						}

						nextPageId := tpage.GetNextPageId()
						if nextPageId.IsValid() {
							nextPage := access.CastPageAsTablePage(log_recovery.buffer_pool_manager.FetchPage(nextPageId))
							log_recovery.buffer_pool_manager.UnpinPage(tpage.GetTablePageId(), true)
							tpage = nextPage
						} else {
							p := log_recovery.buffer_pool_manager.NewPage()
							newPage := access.CastPageAsTablePage(p)
							currentPageId := tpage.GetTablePageId()
							tpage.SetNextPageId(p.ID())
							newPage.Init(p.ID(), currentPageId, log_recovery.log_manager, nil, txn)
							log_recovery.buffer_pool_manager.UnpinPage(currentPageId, true)
							tpage = newPage
						}
					}

					if new_rid != nil {
						ridConv[orgRID] = *new_rid
					}
				}
				log_recovery.buffer_pool_manager.UnpinPage(tpage.GetTablePageId(), true)
				isUndoOccured = true
			}
			lsn = log_record.Prev_lsn
		}
	}
	return isUndoOccured
}
