package index

import (
	"testing"

	"github.com/ashgrove/txcore/storage/buffer"
	"github.com/ashgrove/txcore/storage/disk"
	"github.com/ashgrove/txcore/storage/page"
	"github.com/ashgrove/txcore/types"
)

func newTestTree(t *testing.T, maxSize int32) (*BPlusTree[int32], func()) {
	t.Helper()
	dm := disk.NewDiskManagerTest()
	bpm := buffer.NewBufferPoolManager(64, dm)
	// reserve page 0 for the header page's own directory record.
	bpm.NewPage()
	tree := NewBPlusTree[int32]("test_index", bpm, IntComparator, IntKeyCodec, maxSize, maxSize)
	return tree, func() {
		dm.(*disk.DiskManagerTest).ShutDown()
	}
}

func TestBPlusTreeInsertAndLookupSingle(t *testing.T) {
	tree, cleanup := newTestTree(t, 4)
	defer cleanup()

	var rid page.RID
	rid.Set(7, 3)
	if !tree.Insert(42, rid) {
		t.Fatalf("expected insert of new key to succeed")
	}

	got, found := tree.GetValue(42)
	if !found {
		t.Fatalf("expected key 42 to be found")
	}
	if got.GetPageId() != 7 || got.GetSlotNum() != 3 {
		t.Fatalf("unexpected rid %+v", got)
	}

	if _, found := tree.GetValue(99); found {
		t.Fatalf("expected key 99 to be absent")
	}
}

func TestBPlusTreeRejectsDuplicateKey(t *testing.T) {
	tree, cleanup := newTestTree(t, 4)
	defer cleanup()

	var rid page.RID
	rid.Set(1, 0)
	tree.Insert(10, rid)
	if tree.Insert(10, rid) {
		t.Fatalf("expected duplicate insert to be rejected")
	}
}

func TestBPlusTreeSplitsAndStaysSorted(t *testing.T) {
	tree, cleanup := newTestTree(t, 4)
	defer cleanup()

	const n = 200
	for i := int32(0); i < n; i++ {
		var rid page.RID
		rid.Set(types.PageID(i%1000), uint32(i))
		if !tree.Insert(i, rid) {
			t.Fatalf("insert %d failed", i)
		}
	}

	for i := int32(0); i < n; i++ {
		rid, found := tree.GetValue(i)
		if !found {
			t.Fatalf("key %d missing after bulk insert", i)
		}
		if rid.GetSlotNum() != uint32(i) {
			t.Fatalf("key %d has wrong rid slot %d", i, rid.GetSlotNum())
		}
	}

	it := tree.Begin()
	defer it.Close()
	var prev int32 = -1
	count := 0
	for !it.End() {
		k, _ := it.Current()
		if k <= prev {
			t.Fatalf("iterator not sorted: prev=%d cur=%d", prev, k)
		}
		prev = k
		count++
		it.Next()
	}
	if count != n {
		t.Fatalf("expected %d entries from iterator, got %d", n, count)
	}
}

func TestBPlusTreeBeginAtMidpoint(t *testing.T) {
	tree, cleanup := newTestTree(t, 4)
	defer cleanup()

	for i := int32(0); i < 20; i += 2 {
		var rid page.RID
		rid.Set(types.PageID(i%1000), uint32(i))
		tree.Insert(i, rid)
	}

	it := tree.BeginAt(9)
	defer it.Close()
	if it.End() {
		t.Fatalf("expected at least one entry from key 9 onward")
	}
	k, _ := it.Current()
	if k != 10 {
		t.Fatalf("expected first key >= 9 to be 10, got %d", k)
	}
}

func TestBPlusTreeRemoveTriggersMergeAndRedistribute(t *testing.T) {
	tree, cleanup := newTestTree(t, 4)
	defer cleanup()

	const n = 100
	for i := int32(0); i < n; i++ {
		var rid page.RID
		rid.Set(types.PageID(i%1000), uint32(i))
		tree.Insert(i, rid)
	}

	for i := int32(0); i < n; i += 2 {
		tree.Remove(i)
	}

	for i := int32(0); i < n; i++ {
		_, found := tree.GetValue(i)
		if i%2 == 0 && found {
			t.Fatalf("key %d should have been removed", i)
		}
		if i%2 == 1 && !found {
			t.Fatalf("key %d should still be present", i)
		}
	}

	for i := int32(1); i < n; i += 2 {
		tree.Remove(i)
	}
	if !tree.IsEmpty() {
		t.Fatalf("expected tree to be empty after removing every key")
	}
}

func TestBPlusTreeRemoveAbsentKeyIsNoop(t *testing.T) {
	tree, cleanup := newTestTree(t, 4)
	defer cleanup()

	var rid page.RID
	rid.Set(1, 1)
	tree.Insert(5, rid)
	tree.Remove(123)

	if _, found := tree.GetValue(5); !found {
		t.Fatalf("unrelated remove must not disturb existing keys")
	}
}

