package queue

import "testing"

func TestPushAdvancesAvailIdx(t *testing.T) {
	q := New(256)
	before := q.Avail.Idx
	q.Push(0x1000, 64, 0)
	if q.Avail.Idx != before+1 {
		t.Fatalf("Avail.Idx = %d, want %d", q.Avail.Idx, before+1)
	}
}

func TestPopUsedEmptyQueue(t *testing.T) {
	q := New(256)
	if _, ok := q.PopUsed(); ok {
		t.Fatal("expected PopUsed to report nothing pending on a fresh queue")
	}
}

func TestPopUsedConsumesInOrderWithoutMutatingUsedIdx(t *testing.T) {
	q := New(256)
	q.Used.Ring[0] = VirtqUsedElem{ID: 0, Len: 64}
	q.Used.Ring[1] = VirtqUsedElem{ID: 1, Len: 128}
	q.Used.Idx = 2

	first, ok := q.PopUsed()
	if !ok || first.Len != 64 {
		t.Fatalf("first PopUsed = %+v, ok=%v", first, ok)
	}
	if q.Used.Idx != 2 {
		t.Fatalf("Used.Idx must never be mutated by PopUsed, got %d", q.Used.Idx)
	}

	second, ok := q.PopUsed()
	if !ok || second.Len != 128 {
		t.Fatalf("second PopUsed = %+v, ok=%v", second, ok)
	}

	if _, ok := q.PopUsed(); ok {
		t.Fatal("expected queue to be drained after two pops")
	}
}

func TestPendingReflectsUnconsumedEntries(t *testing.T) {
	q := New(256)
	q.Used.Idx = 3
	if got := q.Pending(); got != 3 {
		t.Fatalf("Pending() = %d, want 3", got)
	}
	q.PopUsed()
	if got := q.Pending(); got != 2 {
		t.Fatalf("Pending() after one pop = %d, want 2", got)
	}
}

func TestPushWrapsAroundRingSize(t *testing.T) {
	q := New(4)
	for i := 0; i < 5; i++ {
		q.Push(uint64(i), 1, 0)
	}
	if q.Avail.Idx != 5 {
		t.Fatalf("Avail.Idx = %d, want 5", q.Avail.Idx)
	}
	// The 5th push (index 4) wraps back to descriptor slot 0.
	if q.Desc[0].Addr != 4 {
		t.Fatalf("expected wraparound push to overwrite desc slot 0, got Addr=%d", q.Desc[0].Addr)
	}
}
