package pool

import (
	"net"
	"testing"
	"time"
)

func fakeDial() (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		// Drain so writes by the pool side never block in tests.
		buf := make([]byte, 1024)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()
	return client, nil
}

func TestGetOrCreateReturnsSameEntryForSamePubkey(t *testing.T) {
	p := New(8, time.Minute, time.Hour, 0)
	pubkey := []byte("peer-a")

	e1, err := p.GetOrCreate(pubkey, "peer-a", fakeDial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e2, err := p.GetOrCreate(pubkey, "peer-a", fakeDial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e1 != e2 {
		t.Error("expected GetOrCreate to return the same entry for the same pubkey")
	}
}

func TestGetOrCreateDistinctPubkeysDistinctEntries(t *testing.T) {
	p := New(8, time.Minute, time.Hour, 0)
	e1, _ := p.GetOrCreate([]byte("peer-a"), "a", fakeDial)
	e2, _ := p.GetOrCreate([]byte("peer-b"), "b", fakeDial)
	if e1 == e2 {
		t.Error("expected distinct pubkeys to yield distinct entries")
	}
}

// Hold/kill race, spec section 8 scenario 6: a held entry rejects kill;
// once released, kill succeeds and removes the entry.
func TestHoldKillRace(t *testing.T) {
	p := New(8, time.Minute, time.Hour, 0)
	pubkey := []byte("peer-a")
	p.GetOrCreate(pubkey, "a", fakeDial)

	handle, err := p.Hold(pubkey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := p.Kill(pubkey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected kill to fail while the entry is held")
	}
	if _, found := p.Lookup(pubkey); !found {
		t.Fatal("expected the pool to be unmutated by a failed kill")
	}

	handle.Release()

	ok, err = p.Kill(pubkey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected kill to succeed after release")
	}
	if _, found := p.Lookup(pubkey); found {
		t.Fatal("expected the entry to be gone after a successful kill")
	}
}

func TestHoldRejectsSecondHolder(t *testing.T) {
	p := New(8, time.Minute, time.Hour, 0)
	pubkey := []byte("peer-a")
	p.GetOrCreate(pubkey, "a", fakeDial)

	if _, err := p.Hold(pubkey); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Hold(pubkey); err != ErrInUse {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
}

func TestHoldAndKillMissingPubkeyIsNotFound(t *testing.T) {
	p := New(8, time.Minute, time.Hour, 0)
	if _, err := p.Hold([]byte("ghost")); err != ErrNotFound {
		t.Errorf("expected ErrNotFound from Hold, got %v", err)
	}
	if _, err := p.Kill([]byte("ghost")); err != ErrNotFound {
		t.Errorf("expected ErrNotFound from Kill, got %v", err)
	}
}

func TestLastActiveReflectsHeldState(t *testing.T) {
	p := New(8, time.Minute, time.Hour, 0)
	pubkey := []byte("peer-a")
	p.GetOrCreate(pubkey, "a", fakeDial)

	if _, inUse, ok := p.LastActive(pubkey); !ok || inUse {
		t.Fatalf("expected an idle, not-in-use entry right after creation")
	}

	handle, _ := p.Hold(pubkey)
	if _, inUse, ok := p.LastActive(pubkey); !ok || !inUse {
		t.Fatalf("expected in-use while held")
	}
	handle.Release()
	if idle, inUse, ok := p.LastActive(pubkey); !ok || inUse || idle < 0 {
		t.Fatalf("expected idle again after release, got idle=%v inUse=%v ok=%v", idle, inUse, ok)
	}
}

func TestQlenTracksTxQueue(t *testing.T) {
	p := New(8, time.Minute, time.Hour, 0)
	pubkey := []byte("peer-a")
	entry, _ := p.GetOrCreate(pubkey, "a", fakeDial)
	entry.TxMutex().Lock()
	entry.TxQueue.Push([]byte("chunk"))
	entry.TxMutex().Unlock()

	n, ok := p.Qlen(pubkey)
	if !ok || n != 1 {
		t.Fatalf("expected qlen=1, got n=%d ok=%v", n, ok)
	}
}

func TestCollectEvictsOnlyIdleExpiredEntries(t *testing.T) {
	p := New(8, time.Minute, time.Millisecond, 0)
	pubkey := []byte("peer-a")
	p.GetOrCreate(pubkey, "a", fakeDial)

	time.Sleep(5 * time.Millisecond)
	p.collectOnce()

	if _, found := p.Lookup(pubkey); found {
		t.Fatal("expected the idle-expired entry to be collected")
	}
}

func TestCollectNeverEvictsHeldEntry(t *testing.T) {
	p := New(8, time.Minute, time.Millisecond, 0)
	pubkey := []byte("peer-a")
	p.GetOrCreate(pubkey, "a", fakeDial)
	handle, _ := p.Hold(pubkey)
	defer handle.Release()

	time.Sleep(5 * time.Millisecond)
	p.collectOnce()

	if _, found := p.Lookup(pubkey); !found {
		t.Fatal("expected a held entry to survive collection regardless of idle age")
	}
}
