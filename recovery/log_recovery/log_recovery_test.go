package log_recovery

import (
	"bytes"
	"testing"

	"github.com/ashgrove/txcore/common"
	"github.com/ashgrove/txcore/recovery"
	"github.com/ashgrove/txcore/storage/access"
	"github.com/ashgrove/txcore/storage/buffer"
	"github.com/ashgrove/txcore/storage/disk"
	"github.com/ashgrove/txcore/storage/tuple"
	"github.com/ashgrove/txcore/types"
)

// crashedHeap inserts a handful of tuples through a real TableHeap with
// logging enabled, flushes only the log (never the table page itself),
// then switches logging off with StopFlushThread so the caller can hand the same disk file
// to a fresh buffer pool and run recovery against it.
func crashedHeap(t *testing.T, dm disk.DiskManager) (firstPageId types.PageID, inserted [][]byte) {
	t.Helper()

	bpm := buffer.NewBufferPoolManager(32, dm)
	lm := recovery.NewLogManager(&dm)
	lockMgr := access.NewLockManager(true)
	txn := access.NewTransaction(types.TxnID(1))

	lm.RunFlushThread()

	heap := access.NewTableHeap(bpm, lm, lockMgr, txn)
	firstPageId = heap.GetFirstPageId()

	for _, payload := range [][]byte{[]byte("alpha"), []byte("bravo"), []byte("charlie")} {
		tup := tuple.NewTuple(nil, uint32(len(payload)), payload)
		rid, err := heap.InsertTuple(tup, txn)
		if err != nil || rid == nil {
			t.Fatalf("seed insert of %q failed: %v", payload, err)
		}
		inserted = append(inserted, payload)
	}

	lm.Flush()
	lm.StopFlushThread()

	// The table page that absorbed the inserts is still dirty in bpm's
	// pool and was never written back to dm, so the on-disk copy a fresh
	// buffer pool reads is stale relative to the log: exactly the state
	// Redo is meant to repair.
	return firstPageId, inserted
}

func newRecoveryFixture(t *testing.T, dm disk.DiskManager) (*LogRecovery, *buffer.BufferPoolManager) {
	t.Helper()
	bpm2 := buffer.NewBufferPoolManager(32, dm)
	lm2 := recovery.NewLogManager(&dm)
	return NewLogRecovery(&dm, bpm2, lm2), bpm2
}

func tuplesOnHeap(t *testing.T, bpm *buffer.BufferPoolManager, firstPageId types.PageID) [][]byte {
	t.Helper()
	heap := access.InitTableHeap(bpm, firstPageId, recovery.NewLogManager(nil), access.NewLockManager(true))
	txn := access.NewTransaction(types.TxnID(99))

	var got [][]byte
	it := heap.Iterator(txn)
	for tup := it.Current(); !it.End(); tup = it.Next() {
		if tup != nil {
			got = append(got, tup.Data())
		}
	}
	return got
}

func containsPayload(payloads [][]byte, want []byte) bool {
	for _, p := range payloads {
		if bytes.Equal(p, want) {
			return true
		}
	}
	return false
}

func TestRedoMakesUncommittedInsertVisible(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	defer dm.(*disk.DiskManagerTest).ShutDown()

	firstPageId, inserted := crashedHeap(t, dm)

	lr, bpm2 := newRecoveryFixture(t, dm)
	recTxn := access.NewTransaction(types.TxnID(2))

	greatestLSN, redoOccurred := lr.Redo(recTxn)
	if !redoOccurred {
		t.Fatalf("expected Redo to find work to do")
	}
	if greatestLSN == types.LSN(common.InvalidLSN) || greatestLSN == 0 {
		t.Fatalf("expected a positive greatest LSN, got %v", greatestLSN)
	}

	got := tuplesOnHeap(t, bpm2, firstPageId)
	for _, want := range inserted {
		if !containsPayload(got, want) {
			t.Fatalf("expected tuple %q to be visible after redo, got %v", want, got)
		}
	}
}

func TestUndoRollsBackUncommittedTransaction(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	defer dm.(*disk.DiskManagerTest).ShutDown()

	firstPageId, inserted := crashedHeap(t, dm)

	lr, bpm2 := newRecoveryFixture(t, dm)
	recTxn := access.NewTransaction(types.TxnID(2))

	if _, redoOccurred := lr.Redo(recTxn); !redoOccurred {
		t.Fatalf("expected Redo to find work to do")
	}

	// The inserting transaction never reached COMMIT or ABORT before the
	// simulated crash, so it must still be in Undo's active set.
	if !lr.Undo(recTxn) {
		t.Fatalf("expected Undo to find the still-open transaction's inserts")
	}

	got := tuplesOnHeap(t, bpm2, firstPageId)
	for _, unwanted := range inserted {
		if containsPayload(got, unwanted) {
			t.Fatalf("expected tuple %q to be rolled back by undo, still present", unwanted)
		}
	}
}
