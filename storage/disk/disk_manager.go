package disk

import (
	"github.com/ashgrove/txcore/types"
)

// DiskManager is responsible for reading and writing pages to the database
// file and log records to the log file. Buffer pool manager and log manager
// never touch the filesystem directly; they go through this interface so
// tests can swap in the in-memory implementation.
type DiskManager interface {
	ReadPage(types.PageID, []byte) error
	WritePage(types.PageID, []byte) error
	AllocatePage() types.PageID
	DeallocatePage(types.PageID)
	GetNumWrites() uint64
	ShutDown()
	Size() int64

	// WriteLog appends log_data to the log file and blocks until it is
	// durable; LogManager.Flush, which TransactionManager.Commit calls
	// before releasing locks, relies on that durability guarantee.
	WriteLog(log_data []byte)
	// ReadLog fills log_data from the log file starting at offset and
	// reports how many bytes were actually read through retReadBytes;
	// it returns false once offset is at or past the end of the log.
	ReadLog(log_data []byte, offset int32, retReadBytes *uint32) bool
}
