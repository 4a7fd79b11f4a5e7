package queue

import "testing"

func TestPushAssignsSequentialIDs(t *testing.T) {
	q := New(4)
	id, err := q.Push([]byte{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 1 {
		t.Errorf("expected first id 1, got %d", id)
	}
	if q.Len() != 1 || q.Head() != 1 {
		t.Errorf("expected len=1 head=1, got len=%d head=%d", q.Len(), q.Head())
	}
}

func TestAcknowledgeThroughAdvancesHead(t *testing.T) {
	q := New(4)
	id, _ := q.Push([]byte{1})
	if err := q.AcknowledgeThrough(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got len=%d", q.Len())
	}
	if q.Head() != 2 {
		t.Errorf("expected head=2, got %d", q.Head())
	}
	if err := q.AcknowledgeThrough(id); err != ErrInvalidAck {
		t.Errorf("expected ErrInvalidAck re-acking the same id, got %v", err)
	}
	// Idempotence: the failed re-ack must not corrupt head.
	if q.Head() != 2 {
		t.Errorf("expected head to remain 2 after failed re-ack, got %d", q.Head())
	}
}

// Window wrap scenario from spec.md section 8.4: B=2 (modulus 4), four
// pushes wrap ids 1, 2, 3, 0; a fifth push fails with QueueFull;
// AcknowledgeThrough(1) removes one entry and sets head=2; ListFrom(1)
// returns the remaining three in order 2, 3, 0.
func TestWindowWrap(t *testing.T) {
	q := New(2)
	wantIDs := []uint32{1, 2, 3, 0}
	for i, want := range wantIDs {
		id, err := q.Push([]byte{byte(i)})
		if err != nil {
			t.Fatalf("push %d: unexpected error: %v", i, err)
		}
		if id != want {
			t.Fatalf("push %d: expected id %d, got %d", i, want, id)
		}
	}

	if _, err := q.Push([]byte{0xff}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull on the fifth push, got %v", err)
	}

	if err := q.AcknowledgeThrough(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Head() != 2 {
		t.Errorf("expected head=2, got %d", q.Head())
	}
	if q.Len() != 3 {
		t.Errorf("expected len=3, got %d", q.Len())
	}

	entries, err := q.ListFrom(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotIDs := make([]uint32, len(entries))
	for i, e := range entries {
		gotIDs[i] = e.ID
	}
	wantRemaining := []uint32{2, 3, 0}
	if len(gotIDs) != len(wantRemaining) {
		t.Fatalf("expected %v, got %v", wantRemaining, gotIDs)
	}
	for i := range wantRemaining {
		if gotIDs[i] != wantRemaining[i] {
			t.Fatalf("expected %v, got %v", wantRemaining, gotIDs)
		}
	}
}

func TestListFromCursorAtLastDeliveredYieldsEmpty(t *testing.T) {
	q := New(4)
	id, _ := q.Push([]byte{1})
	entries, err := q.ListFrom(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty list, got %v", entries)
	}
}

func TestListFromCursorOutsideLiveRangeIsInvalid(t *testing.T) {
	q := New(4)
	q.Push([]byte{1})
	if _, err := q.ListFrom(99); err != ErrInvalidCursor {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestListFromBeforeHeadReturnsEverythingLive(t *testing.T) {
	q := New(4)
	q.Push([]byte{1})
	q.Push([]byte{2})
	// head is 1, so cursor 0 (head-1) means "nothing acked yet".
	entries, err := q.ListFrom(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestAcknowledgeThroughOutsideLiveRangeIsInvalid(t *testing.T) {
	q := New(4)
	q.Push([]byte{1})
	if err := q.AcknowledgeThrough(5); err != ErrInvalidAck {
		t.Errorf("expected ErrInvalidAck, got %v", err)
	}
}

func TestNewPanicsOnOutOfRangeBits(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for bits=33")
		}
	}()
	New(33)
}

// ListFrom followed by an implicit "ack all" must leave the queue
// identical to AcknowledgeThrough(last listed id).
func TestListThenAckAllMatchesDirectAck(t *testing.T) {
	q1 := New(8)
	q2 := New(8)
	var lastID uint32
	for i := 0; i < 5; i++ {
		id, _ := q1.Push([]byte{byte(i)})
		q2.Push([]byte{byte(i)})
		lastID = id
	}

	entries, err := q1.ListFrom(q1.Head() - 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if err := q1.AcknowledgeThrough(entries[len(entries)-1].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q2.AcknowledgeThrough(lastID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q1.Head() != q2.Head() || q1.Len() != q2.Len() {
		t.Fatalf("queues diverged: %+v vs %+v", q1, q2)
	}
}
