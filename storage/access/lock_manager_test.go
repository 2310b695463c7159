package access

import (
	"testing"
	"time"

	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/types"
)

func testRID() page.RID {
	var rid page.RID
	rid.Set(0, 0)
	return rid
}

func TestLockManagerSharedLocksCoexist(t *testing.T) {
	lm := NewLockManager(true)
	rid := testRID()

	t1 := NewTransaction(types.TxnID(1))
	t2 := NewTransaction(types.TxnID(2))

	if !lm.LockShared(t1, rid) {
		t.Fatalf("t1 should acquire shared lock")
	}
	if !lm.LockShared(t2, rid) {
		t.Fatalf("t2 should be able to share the lock with t1")
	}
	if !t1.IsSharedLocked(&rid) || !t2.IsSharedLocked(&rid) {
		t.Fatalf("both transactions should record the shared lock in their lock sets")
	}
}

func TestLockManagerExclusiveExcludesOthers(t *testing.T) {
	lm := NewLockManager(true)
	rid := testRID()

	older := NewTransaction(types.TxnID(1))
	younger := NewTransaction(types.TxnID(2))

	if !lm.LockExclusive(older, rid) {
		t.Fatalf("older txn should acquire the exclusive lock uncontested")
	}

	// Wait-die: a younger transaction requesting a lock held by an older
	// one must abort rather than wait, since only older transactions are
	// allowed to wait on younger ones.
	if lm.LockShared(younger, rid) {
		t.Fatalf("younger txn should have died under wait-die, not been granted the lock")
	}
	if younger.GetState() != ABORTED {
		t.Fatalf("younger txn should be ABORTED after losing wait-die, got %v", younger.GetState())
	}
}

func TestLockManagerOlderWaitsAndIsGrantedOnUnlock(t *testing.T) {
	lm := NewLockManager(true)
	rid := testRID()

	younger := NewTransaction(types.TxnID(5))
	older := NewTransaction(types.TxnID(1))

	if !lm.LockExclusive(younger, rid) {
		t.Fatalf("younger txn should acquire the exclusive lock uncontested")
	}

	done := make(chan bool, 1)
	go func() {
		done <- lm.LockShared(older, rid)
	}()

	select {
	case <-done:
		t.Fatalf("older txn's lock request should block while younger holds the exclusive lock")
	case <-time.After(50 * time.Millisecond):
	}

	younger.SetState(COMMITTED)
	lm.Unlock(younger, rid)

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("older txn should have been granted the lock once younger released it")
		}
	case <-time.After(time.Second):
		t.Fatalf("older txn's lock request never unblocked after Unlock")
	}
}

func TestLockManagerUnlockRequiresTerminalStateUnderStrict2PL(t *testing.T) {
	lm := NewLockManager(true)
	rid := testRID()

	txn := NewTransaction(types.TxnID(1))
	lm.LockShared(txn, rid)

	if lm.Unlock(txn, rid) {
		t.Fatalf("strict 2PL must reject Unlock while the transaction is still GROWING")
	}
	if txn.GetState() != ABORTED {
		t.Fatalf("rejected Unlock should abort the transaction, got %v", txn.GetState())
	}
}

func TestLockManagerLockUpgrade(t *testing.T) {
	lm := NewLockManager(true)
	rid := testRID()

	txn := NewTransaction(types.TxnID(1))
	if !lm.LockShared(txn, rid) {
		t.Fatalf("initial shared lock should succeed")
	}
	if !lm.LockUpgrade(txn, rid) {
		t.Fatalf("sole shared holder should be able to upgrade to exclusive")
	}
	if !txn.IsExclusiveLocked(&rid) {
		t.Fatalf("txn should hold the exclusive lock after upgrading")
	}
	if txn.IsSharedLocked(&rid) {
		t.Fatalf("the shared lock should be replaced, not held alongside the exclusive one")
	}
}
