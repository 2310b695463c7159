package types

import (
	"bytes"
	"encoding/binary"
)

// LSN is a monotonically increasing log sequence number assigned by the log
// manager to every record it appends. It orders log records both on disk
// and in the in-memory prev-lsn chains transactions use to walk their own
// write history during undo.
type LSN int64

const SizeOfLSN = 8

const InvalidLSN = LSN(-1)

func (lsn LSN) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, lsn)
	return buf.Bytes()
}

func NewLSNFromBytes(data []byte) (ret LSN) {
	binary.Read(bytes.NewBuffer(data), binary.LittleEndian, &ret)
	return ret
}
