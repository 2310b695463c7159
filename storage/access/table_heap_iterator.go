// this code is from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package access

import (
	"github.com/ashgrove/txcore/storage/tuple"
)

// TableHeapIterator is the access method for table heaps.
//
// It iterates through a table heap when Next is called. The tuple it is
// currently pointing to can be read with Current.
type TableHeapIterator struct {
	tableHeap    *TableHeap
	tuple        *tuple.Tuple
	lock_manager *LockManager
	txn          *Transaction
}

// NewTableHeapIterator creates a new table heap iterator for the given
// table heap, pointing at its first tuple.
func NewTableHeapIterator(tableHeap *TableHeap, lock_manager *LockManager, txn *Transaction) *TableHeapIterator {
	return &TableHeapIterator{tableHeap, tableHeap.GetFirstTuple(txn), lock_manager, txn}
}

// Current returns the tuple the iterator currently points to.
func (it *TableHeapIterator) Current() *tuple.Tuple {
	return it.tuple
}

// End reports whether the iterator has run off the end of the heap.
func (it *TableHeapIterator) End() bool {
	return it.Current() == nil
}

// Next advances the iterator, crossing into the next page's tuple chain
// when the current page has no more live tuples after the current one.
func (it *TableHeapIterator) Next() *tuple.Tuple {
	if it.tuple == nil {
		return nil
	}

	bpm := it.tableHeap.bpm
	currentPageID := it.tuple.GetRID().GetPageId()
	currentPage := CastPageAsTablePage(bpm.FetchPage(currentPageID))
	currentPage.RLatch()

	nextRID := currentPage.GetNextTupleRID(it.tuple.GetRID(), false)
	for nextRID == nil && currentPage.GetNextPageId().IsValid() {
		nextPageID := currentPage.GetNextPageId()
		nextPage := CastPageAsTablePage(bpm.FetchPage(nextPageID))
		currentPage.RUnlatch()
		bpm.UnpinPage(currentPageID, false)

		currentPage = nextPage
		currentPageID = nextPageID
		currentPage.RLatch()
		nextRID = currentPage.GetNextTupleRID(nil, true)
	}

	var nextTuple *tuple.Tuple
	if nextRID != nil {
		nextTuple = currentPage.GetTuple(nextRID, it.tableHeap.log_manager, it.lock_manager, it.txn)
	}

	currentPage.RUnlatch()
	bpm.UnpinPage(currentPageID, false)

	it.tuple = nextTuple
	return it.tuple
}
