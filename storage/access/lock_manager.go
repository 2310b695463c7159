package access

import (
	"sync"

	"github.com/ashgrove/txcore/common"
	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/types"
	"github.com/sasha-s/go-deadlock"
)

// LockMode is the granularity at which LockManager tracks a tuple's
// access: SHARED readers may coexist, EXCLUSIVE writers may not coexist
// with anything, and UPGRADING reserves the right to become EXCLUSIVE
// once every other reader of the same tuple has let go.
type LockMode int32

const (
	SHARED LockMode = iota
	EXCLUSIVE
	UPGRADING
)

// lockRequest is one transaction's position in a rid's FIFO wait queue.
// grantCh is closed exactly once, by grant(), to wake whoever is blocked
// in wait().
type lockRequest struct {
	txnID   types.TxnID
	mode    LockMode
	granted bool
	grantCh chan struct{}
}

func newLockRequest(txnID types.TxnID, mode LockMode, granted bool) *lockRequest {
	return &lockRequest{txnID: txnID, mode: mode, granted: granted, grantCh: make(chan struct{})}
}

func (r *lockRequest) wait() { <-r.grantCh }

func (r *lockRequest) grant() {
	r.granted = true
	close(r.grantCh)
}

// lockRequestQueue is the FIFO queue of lock requests held against a
// single rid, plus the one-upgrader-at-a-time guard: at most one
// transaction may hold a pending UPGRADING request on a given rid.
type lockRequestQueue struct {
	mu           sync.Mutex
	requests     []*lockRequest
	hasUpgrading bool
}

func newLockRequestQueue() *lockRequestQueue {
	return &lockRequestQueue{}
}

// checkCanGrant reports whether mode can be granted immediately, given
// the queue's current tail. Must be called with mu held.
func (q *lockRequestQueue) checkCanGrant(mode LockMode) bool {
	if len(q.requests) == 0 {
		return true
	}
	last := q.requests[len(q.requests)-1]
	if mode == SHARED {
		return last.granted && last.mode == SHARED
	}
	return false
}

func (q *lockRequestQueue) indexOf(txnID types.TxnID) int {
	for i, r := range q.requests {
		if r.txnID == txnID {
			return i
		}
	}
	return -1
}

// insert appends a new request to the queue and, if it cannot be granted
// immediately, blocks the caller until some later Unlock call grants it.
// Must be called with mu held; releases mu before it returns.
func (q *lockRequestQueue) insert(txn *Transaction, rid page.RID, mode LockMode, granted bool) {
	upgradingMode := mode == UPGRADING
	insertMode := mode
	if upgradingMode && granted {
		// the only way an upgrade request is immediately grantable is that
		// the queue became empty once this transaction's own shared lock
		// was pulled out of it a moment ago
		insertMode = EXCLUSIVE
	}

	req := newLockRequest(txn.GetTransactionId(), insertMode, granted)
	q.requests = append(q.requests, req)

	if !granted {
		if upgradingMode {
			q.hasUpgrading = true
		}
		q.mu.Unlock()
		req.wait()
	} else {
		q.mu.Unlock()
	}

	if mode == SHARED {
		txn.GetSharedLockSet().Add(rid)
	} else {
		txn.GetExclusiveLockSet().Add(rid)
	}
}

// LockManager grants and releases tuple-granularity locks using wait-die
// deadlock avoidance: a transaction that would have to wait behind an
// older one aborts instead of blocking, so only older transactions wait
// on younger ones and the wait-for graph can never gain a cycle.
type LockManager struct {
	strict2PL bool
	mu        deadlock.Mutex
	lockTable map[page.RID]*lockRequestQueue
}

func NewLockManager(strict2PL bool) *LockManager {
	return &LockManager{strict2PL: strict2PL, lockTable: make(map[page.RID]*lockRequestQueue)}
}

func (lm *LockManager) LockShared(txn *Transaction, rid page.RID) bool {
	return lm.lockTemplate(txn, rid, SHARED)
}

func (lm *LockManager) LockExclusive(txn *Transaction, rid page.RID) bool {
	return lm.lockTemplate(txn, rid, EXCLUSIVE)
}

func (lm *LockManager) LockUpgrade(txn *Transaction, rid page.RID) bool {
	return lm.lockTemplate(txn, rid, UPGRADING)
}

// lockTemplate implements LockShared/LockExclusive/LockUpgrade. It
// returns false if the transaction was aborted (lock-stage violation,
// a second simultaneous upgrade, or wait-die losing to an older holder);
// it blocks until granted otherwise, and always returns true once it
// does. Trying to lock a rid the same transaction already holds is the
// caller's responsibility to avoid.
func (lm *LockManager) lockTemplate(txn *Transaction, rid page.RID, mode LockMode) bool {
	if txn.GetState() != GROWING {
		txn.SetState(ABORTED)
		return false
	}

	lm.mu.Lock()
	q, ok := lm.lockTable[rid]
	if !ok {
		q = newLockRequestQueue()
		lm.lockTable[rid] = q
	}
	q.mu.Lock()
	lm.mu.Unlock()

	if mode == UPGRADING {
		if q.hasUpgrading {
			q.mu.Unlock()
			txn.SetState(ABORTED)
			return false
		}
		idx := q.indexOf(txn.GetTransactionId())
		if idx < 0 || q.requests[idx].mode != SHARED || !q.requests[idx].granted {
			q.mu.Unlock()
			txn.SetState(ABORTED)
			return false
		}
		q.requests = append(q.requests[:idx], q.requests[idx+1:]...)
		txn.GetSharedLockSet().Remove(rid)
	}

	canGrant := q.checkCanGrant(mode)

	// wait-die: if this request must wait, it only gets to wait when the
	// last queued transaction is younger (larger txn id); if that one is
	// older, this request dies instead.
	if !canGrant && len(q.requests) > 0 && q.requests[len(q.requests)-1].txnID < txn.GetTransactionId() {
		q.mu.Unlock()
		txn.SetState(ABORTED)
		return false
	}

	q.insert(txn, rid, mode, canGrant)
	return true
}

// Unlock releases the lock txn holds on rid. Under strict two-phase
// locking the transaction must already be COMMITTED or ABORTED;
// otherwise releasing a lock while still GROWING moves it to SHRINKING.
func (lm *LockManager) Unlock(txn *Transaction, rid page.RID) bool {
	if lm.strict2PL {
		if txn.GetState() != COMMITTED && txn.GetState() != ABORTED {
			txn.SetState(ABORTED)
			return false
		}
	} else if txn.GetState() == GROWING {
		txn.SetState(SHRINKING)
	}

	lm.mu.Lock()
	q, ok := lm.lockTable[rid]
	if !ok {
		lm.mu.Unlock()
		return true
	}
	q.mu.Lock()

	idx := q.indexOf(txn.GetTransactionId())
	common.SH_Assert(idx >= 0, "LockManager::Unlock called for a rid this transaction does not hold")

	releasedMode := q.requests[idx].mode
	q.requests = append(q.requests[:idx], q.requests[idx+1:]...)

	if releasedMode == SHARED {
		txn.GetSharedLockSet().Remove(rid)
	} else {
		txn.GetExclusiveLockSet().Remove(rid)
	}

	if len(q.requests) == 0 {
		delete(lm.lockTable, rid)
		q.mu.Unlock()
		lm.mu.Unlock()
		return true
	}
	lm.mu.Unlock()

	for _, r := range q.requests {
		if r.granted {
			break
		}
		wasUpgrading := r.mode == UPGRADING
		r.grant()
		if r.mode == SHARED {
			continue
		}
		if wasUpgrading {
			q.hasUpgrading = false
			r.mode = EXCLUSIVE
		}
		break
	}
	q.mu.Unlock()

	return true
}
