package access

import (
	"testing"

	"github.com/ashgrove/txcore/recovery"
	"github.com/ashgrove/txcore/storage/buffer"
	"github.com/ashgrove/txcore/storage/disk"
	"github.com/ashgrove/txcore/storage/tuple"
)

func newTxnManagerFixture(t *testing.T) (*TransactionManager, *TableHeap, func()) {
	t.Helper()
	dm := disk.NewDiskManagerTest()
	bpm := buffer.NewBufferPoolManager(32, dm)
	lockMgr := NewLockManager(true)
	logMgr := recovery.NewLogManager(nil)

	tm := NewTransactionManager(lockMgr, logMgr)
	seedTxn := tm.Begin(nil)
	heap := NewTableHeap(bpm, logMgr, lockMgr, seedTxn)
	tm.Commit(seedTxn)

	return tm, heap, func() { dm.(*disk.DiskManagerTest).ShutDown() }
}

func TestTransactionManagerBeginAssignsIncreasingIds(t *testing.T) {
	tm, _, cleanup := newTxnManagerFixture(t)
	defer cleanup()

	t1 := tm.Begin(nil)
	t2 := tm.Begin(nil)
	if t2.GetTransactionId() <= t1.GetTransactionId() {
		t.Fatalf("expected increasing transaction ids, got %v then %v", t1.GetTransactionId(), t2.GetTransactionId())
	}
	if t1.GetState() != GROWING || t2.GetState() != GROWING {
		t.Fatalf("freshly begun transactions should start GROWING")
	}
}

func TestTransactionManagerCommitReleasesLocks(t *testing.T) {
	tm, heap, cleanup := newTxnManagerFixture(t)
	defer cleanup()

	txn := tm.Begin(nil)
	payload := []byte("committed-row")
	rid, err := heap.InsertTuple(tuple.NewTuple(nil, uint32(len(payload)), payload), txn)
	if err != nil || rid == nil {
		t.Fatalf("insert failed: %v", err)
	}
	// With logging off the heap takes no row locks, so take the exclusive
	// lock here to give Commit one to release.
	if !tm.lock_manager.LockExclusive(txn, *rid) {
		t.Fatalf("txn should acquire the exclusive lock on its own row")
	}

	tm.Commit(txn)

	if txn.GetState() != COMMITTED {
		t.Fatalf("expected COMMITTED after Commit, got %v", txn.GetState())
	}
	if txn.IsExclusiveLocked(rid) {
		t.Fatalf("commit should have released the row's exclusive lock")
	}

	readTxn := tm.Begin(nil)
	got := heap.GetTuple(rid, readTxn)
	if got == nil {
		t.Fatalf("expected committed tuple to still be readable")
	}
	tm.Commit(readTxn)
}

func TestTransactionManagerAbortRollsBackInsert(t *testing.T) {
	tm, heap, cleanup := newTxnManagerFixture(t)
	defer cleanup()

	txn := tm.Begin(nil)
	payload := []byte("aborted-row")
	rid, err := heap.InsertTuple(tuple.NewTuple(nil, uint32(len(payload)), payload), txn)
	if err != nil || rid == nil {
		t.Fatalf("insert failed: %v", err)
	}

	tm.Abort(txn)

	if txn.GetState() != ABORTED {
		t.Fatalf("expected ABORTED after Abort, got %v", txn.GetState())
	}

	readTxn := tm.Begin(nil)
	if got := heap.GetTuple(rid, readTxn); got != nil {
		t.Fatalf("expected aborted insert to be rolled back, but tuple is still visible")
	}
	tm.Commit(readTxn)
}

func TestTransactionManagerBlockAndResumeTransactions(t *testing.T) {
	tm, _, cleanup := newTxnManagerFixture(t)
	defer cleanup()

	tm.BlockAllTransactions()

	done := make(chan *Transaction, 1)
	go func() {
		done <- tm.Begin(nil)
	}()

	select {
	case <-done:
		t.Fatalf("Begin should block while transactions are blocked")
	default:
	}

	tm.ResumeTransactions()

	txn := <-done
	if txn == nil {
		t.Fatalf("expected Begin to eventually return a transaction once resumed")
	}
	tm.Commit(txn)
}
