package disk

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ashgrove/txcore/common"
	"github.com/ashgrove/txcore/types"
	"github.com/dsnet/golib/memfile"
)

// VirtualDiskManagerImpl is an in-memory DiskManager, backed by memfile
// instead of real files, for fast test fixtures that still exercise the
// full read/write/log contract a real DiskManagerImpl offers.
type VirtualDiskManagerImpl struct {
	db              *memfile.File
	fileName        string
	log             *memfile.File
	fileName_log    string
	nextPageID      types.PageID
	numWrites       uint64
	size            int64
	flush_log       bool
	numFlushes      uint64
	dbFileMutex     *sync.Mutex
	logFileMutex    *sync.Mutex
	reusableSpceIDs []types.PageID
	spaceIDConvMap  map[types.PageID]types.PageID
	deallocedIDMap  map[types.PageID]bool
}

func NewVirtualDiskManagerImpl(dbFilename string) DiskManager {
	file := memfile.New(make([]byte, 0))

	period_idx := strings.LastIndex(dbFilename, ".")
	logfname_base := dbFilename[:period_idx]
	logfname := logfname_base + "." + "log"

	file_1 := memfile.New(make([]byte, 0))

	fileSize := int64(0)
	nextPageID := types.PageID(0)

	return &VirtualDiskManagerImpl{file, dbFilename, file_1, logfname, nextPageID, 0, fileSize, false, 0, new(sync.Mutex), new(sync.Mutex), make([]types.PageID, 0), make(map[types.PageID]types.PageID), make(map[types.PageID]bool)}
}

// ShutDown closes of the database file
func (d *VirtualDiskManagerImpl) ShutDown() {
	// do nothing
}

// convToSpaceID converts a page id to a space id, for reuse of file space
// that was allocated to a now-deallocated page.
func (d *VirtualDiskManagerImpl) convToSpaceID(pageID types.PageID) (spaceID types.PageID) {
	if convedID, exist := d.spaceIDConvMap[pageID]; exist {
		return convedID
	}
	return pageID
}

// WritePage writes a page to the database file
func (d *VirtualDiskManagerImpl) WritePage(pageId types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(d.convToSpaceID(pageId)) * int64(common.PageSize)
	d.db.WriteAt(pageData, offset)

	if offset >= d.size {
		d.size = offset + int64(len(pageData))
	}

	d.numWrites++
	return nil
}

// ReadPage reads a page from the database file
func (d *VirtualDiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	if _, exist := d.deallocedIDMap[pageID]; exist {
		return types.DeallocatedPageErr
	}

	offset := int64(d.convToSpaceID(pageID)) * int64(common.PageSize)

	if offset > d.size || offset+int64(len(pageData)) > d.size {
		return errors.New("I/O error past end of file")
	}

	_, err := d.db.ReadAt(pageData, offset)
	if err != nil {
		fmt.Println(err)
		panic("file read error!")
	}
	return err
}

// AllocatePage allocates a new page
func (d *VirtualDiskManagerImpl) AllocatePage() types.PageID {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	ret := d.nextPageID
	if len(d.reusableSpceIDs) > 0 {
		reuseID := d.reusableSpceIDs[0]
		if len(d.reusableSpceIDs) == 1 {
			d.reusableSpceIDs = make([]types.PageID, 0)
		} else {
			d.reusableSpceIDs = d.reusableSpceIDs[1:]
		}
		d.spaceIDConvMap[ret] = reuseID
	}
	d.nextPageID++

	return ret
}

// DeallocatePage deallocates a page, freeing its backing space for reuse by
// a later AllocatePage call.
func (d *VirtualDiskManagerImpl) DeallocatePage(pageID types.PageID) {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	d.deallocedIDMap[pageID] = true
	if convedID, exist := d.spaceIDConvMap[pageID]; exist {
		d.reusableSpceIDs = append(d.reusableSpceIDs, convedID)
		delete(d.spaceIDConvMap, pageID)
	} else {
		d.reusableSpceIDs = append(d.reusableSpceIDs, pageID)
	}
}

// GetNumWrites returns the number of disk writes
func (d *VirtualDiskManagerImpl) GetNumWrites() uint64 {
	return d.numWrites
}

// Size returns the size of the file in disk
func (d *VirtualDiskManagerImpl) Size() int64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.size
}

// RemoveDBFile is a no-op for the in-memory manager.
// ATTENTION: this method can be called after calling the Shutdown method
func (d *VirtualDiskManagerImpl) RemoveDBFile() {
	// do nothing
}

// RemoveLogFile is a no-op for the in-memory manager.
// ATTENTION: this method can be called after calling the Shutdown method
func (d *VirtualDiskManagerImpl) RemoveLogFile() {
	// do nothing
}

// GCLogFile erases needless data from the log file (used once db recovery
// finishes, or a snapshot finishes); the file content becomes empty.
func (d *VirtualDiskManagerImpl) GCLogFile() error {
	d.logFileMutex.Lock()
	defer d.logFileMutex.Unlock()

	d.log = memfile.New(make([]byte, 0))

	return nil
}

// WriteLog appends the contents of the log buffer to the in-memory log
// file. Only returns once the append completes, and only ever performs a
// sequential write.
func (d *VirtualDiskManagerImpl) WriteLog(log_data []byte) {
	if len(log_data) == 0 {
		return
	}

	d.logFileMutex.Lock()
	defer d.logFileMutex.Unlock()

	d.flush_log = true
	d.numFlushes++

	d.log.Write(log_data)

	d.flush_log = false
}

// ReadLog reads the contents of the log file into the given memory area,
// starting at offset. Returns false once offset is at or past the end of
// the log file.
func (d *VirtualDiskManagerImpl) ReadLog(log_data []byte, offset int32, retReadBytes *uint32) bool {
	if int64(offset) >= d.GetLogFileSize() {
		return false
	}

	d.logFileMutex.Lock()
	defer d.logFileMutex.Unlock()

	readLen, err := d.log.ReadAt(log_data, int64(offset))
	if retReadBytes != nil {
		*retReadBytes = uint32(readLen)
	}
	if err != nil && readLen == 0 {
		return false
	}

	return true
}

// GetLogFileSize is a private helper to get the log file's size.
func (d *VirtualDiskManagerImpl) GetLogFileSize() int64 {
	d.logFileMutex.Lock()
	defer d.logFileMutex.Unlock()

	return int64(len(d.log.Bytes()))
}
