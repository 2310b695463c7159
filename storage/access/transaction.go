package access

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ashgrove/txcore/common"
	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/storage/tuple"
	"github.com/ashgrove/txcore/types"
)

/**
 * Transaction states:
 *
 *     _________________________
 *    |                         v
 * GROWING -> SHRINKING -> COMMITTED   ABORTED
 *    |__________|________________________^
 *
 **/

type TransactionState int32

const (
	GROWING TransactionState = iota
	SHRINKING
	COMMITTED
	ABORTED
)

// WType is the kind of change a WriteRecord captures.
type WType int32

const (
	INSERT WType = iota
	DELETE
	UPDATE
)

// WriteRecord tracks one change a transaction made to a table, in the
// order it was made, so Abort can unwind the write set LIFO.
type WriteRecord struct {
	rid   page.RID
	wtype WType
	// OldTuple holds the before-image for UPDATE (to restore it). DELETE
	// and INSERT records carry an empty tuple: a DELETE is only marked
	// until commit, and Abort undoes it with RollbackDelete.
	OldTuple *tuple.Tuple
	table    *TableHeap
}

func NewWriteRecord(rid page.RID, wtype WType, oldTuple *tuple.Tuple, table *TableHeap) *WriteRecord {
	return &WriteRecord{rid: rid, wtype: wtype, OldTuple: oldTuple, table: table}
}

func (wr *WriteRecord) GetRID() page.RID    { return wr.rid }
func (wr *WriteRecord) GetWType() WType     { return wr.wtype }
func (wr *WriteRecord) GetTable() *TableHeap { return wr.table }

// Transaction tracks the state of one unit of work: its write set for
// rollback, its previous LSN for walking its own log chain, and the
// tuple-granularity locks it currently holds.
type Transaction struct {
	state   TransactionState
	txn_id  types.TxnID
	write_set []*WriteRecord
	prev_lsn  types.LSN

	shared_lock_set    mapset.Set[page.RID]
	exclusive_lock_set mapset.Set[page.RID]
	dbgInfo            string
}

func NewTransaction(txn_id types.TxnID) *Transaction {
	return &Transaction{
		state:              GROWING,
		txn_id:             txn_id,
		write_set:          make([]*WriteRecord, 0),
		prev_lsn:           common.InvalidLSN,
		shared_lock_set:    mapset.NewSet[page.RID](),
		exclusive_lock_set: mapset.NewSet[page.RID](),
	}
}

func (txn *Transaction) GetTransactionId() types.TxnID { return txn.txn_id }

func (txn *Transaction) GetWriteSet() []*WriteRecord { return txn.write_set }

func (txn *Transaction) SetWriteSet(write_set []*WriteRecord) { txn.write_set = write_set }

func (txn *Transaction) AddIntoWriteSet(write_record *WriteRecord) {
	txn.write_set = append(txn.write_set, write_record)
}

// GetSharedLockSet returns the set of rids this transaction holds under a shared lock.
func (txn *Transaction) GetSharedLockSet() mapset.Set[page.RID] { return txn.shared_lock_set }

// GetExclusiveLockSet returns the set of rids this transaction holds under an exclusive lock.
func (txn *Transaction) GetExclusiveLockSet() mapset.Set[page.RID] { return txn.exclusive_lock_set }

func (txn *Transaction) IsSharedLocked(rid *page.RID) bool {
	return txn.shared_lock_set.Contains(*rid)
}

func (txn *Transaction) IsExclusiveLocked(rid *page.RID) bool {
	return txn.exclusive_lock_set.Contains(*rid)
}

func (txn *Transaction) GetState() TransactionState { return txn.state }

func (txn *Transaction) SetState(state TransactionState) {
	if common.EnableDebug {
		if state == ABORTED {
			common.ShPrintf(common.RDB_OP_FUNC_CALL, "Transaction::SetState called. txn.txn_id:%d dbgInfo:%s state:ABORTED\n", txn.txn_id, txn.dbgInfo)
		}
	}
	txn.state = state
}

func (txn *Transaction) GetPrevLSN() types.LSN { return txn.prev_lsn }

func (txn *Transaction) SetPrevLSN(prev_lsn types.LSN) { txn.prev_lsn = prev_lsn }

func (txn *Transaction) GetDebugInfo() string { return txn.dbgInfo }

func (txn *Transaction) SetDebugInfo(dbgInfo string) { txn.dbgInfo = dbgInfo }
