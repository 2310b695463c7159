// this code is from https://github.com/pzhzqt/goostub
// there is license and copyright notice in licenses/goostub dir

package common

import (
	"sync"
)

// ReaderWriterLatch is the page/tree latch used throughout the storage
// core. Unlike sync.RWMutex, whose reader/writer starvation behavior is an
// implementation detail of the runtime, this latch is built to guarantee
// writer preference explicitly: once a writer is waiting, no new reader is
// let in ahead of it. Latch crabbing relies on this — otherwise a steady
// stream of readers on a hot root page could starve a structure-modifying
// writer indefinitely.
type ReaderWriterLatch interface {
	WLock()
	WUnlock()
	RLock()
	RUnlock()
}

// readerWriterLatch implements writer-preference reader/writer locking with
// a single mutex and two condition variables: readCond wakes waiting
// readers, writeCond wakes waiting writers. readerCount tracks active
// readers, writerActive/writersWaiting gate new readers from entering once a
// writer has announced intent.
type readerWriterLatch struct {
	mu            sync.Mutex
	readCond      *sync.Cond
	writeCond     *sync.Cond
	readerCount   int
	writerActive  bool
	writersWaiting int
}

func NewRWLatch() ReaderWriterLatch {
	l := &readerWriterLatch{}
	l.readCond = sync.NewCond(&l.mu)
	l.writeCond = sync.NewCond(&l.mu)
	return l
}

func (l *readerWriterLatch) RLock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	// a waiting or active writer blocks new readers: writer preference.
	for l.writerActive || l.writersWaiting > 0 {
		l.readCond.Wait()
	}
	l.readerCount++
}

func (l *readerWriterLatch) RUnlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readerCount--
	if l.readerCount == 0 {
		l.writeCond.Signal()
	}
}

func (l *readerWriterLatch) WLock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writersWaiting++
	for l.writerActive || l.readerCount > 0 {
		l.writeCond.Wait()
	}
	l.writersWaiting--
	l.writerActive = true
}

func (l *readerWriterLatch) WUnlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writerActive = false
	if l.writersWaiting > 0 {
		l.writeCond.Signal()
	} else {
		l.readCond.Broadcast()
	}
}

// readerWriterLatchDummy is kept for single-threaded debug runs where lock
// acquisition bugs (double-lock, unbalanced unlock) should panic loudly
// instead of deadlocking silently.
type readerWriterLatchDummy struct {
	readerCnt int32
	writerCnt int32
}

func NewRWLatchDummy() ReaderWriterLatch {
	return &readerWriterLatchDummy{0, 0}
}

func (l *readerWriterLatchDummy) WLock() {
	l.writerCnt++
	SH_Assert(l.writerCnt == 1, "double Write Lock!")
}

func (l *readerWriterLatchDummy) WUnlock() {
	l.writerCnt--
	SH_Assert(l.writerCnt == 0, "double Write Unlock!")
}

func (l *readerWriterLatchDummy) RLock() {
	l.readerCnt++
	SH_Assert(l.readerCnt >= 1, "reader lock underflow!")
}

func (l *readerWriterLatchDummy) RUnlock() {
	l.readerCnt--
	SH_Assert(l.readerCnt >= 0, "double Reader Unlock!")
}
