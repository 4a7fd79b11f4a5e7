package pipes

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"stablessh/internal/queue"
	"stablessh/internal/wire"
)

type countingFlusher struct {
	bytes.Buffer
	flushes int
}

func (c *countingFlusher) Flush() error {
	c.flushes++
	return nil
}

func TestReaderToQUICPushesAndEncodes(t *testing.T) {
	q := queue.New(8)
	var mu sync.Mutex
	r := bytes.NewReader([]byte("hello"))
	var quicSend bytes.Buffer

	if err := ReaderToQUIC(context.Background(), r, &quicSend, q, &mu); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var dec wire.DataDecoder
	dec.Feed(quicSend.Bytes())
	frame, ok := dec.Next()
	if !ok {
		t.Fatal("expected an encoded frame on quicSend")
	}
	if frame.ID != 1 || string(frame.Payload) != "hello" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if q.Len() != 1 {
		t.Errorf("expected the chunk to remain live in the queue, got len=%d", q.Len())
	}
}

func TestReaderToQUICPropagatesQueueFull(t *testing.T) {
	q := queue.New(1) // modulus 2: at most two live ids fit.
	var mu sync.Mutex
	r := bytes.NewReader(bytes.Repeat([]byte{'x'}, 10))
	// Force every Read to return 1 byte so a third push is attempted.
	oneAtATime := &stepReader{data: r}
	var quicSend bytes.Buffer

	err := ReaderToQUIC(context.Background(), oneAtATime, &quicSend, q, &mu)
	if err != queue.ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

type stepReader struct {
	data io.Reader
}

func (s *stepReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return s.data.Read(p)
}

func TestQUICToWriterOrdering(t *testing.T) {
	var quicRecv bytes.Buffer
	quicRecv.Write(wire.EncodeData(5, []byte("abc")))
	quicRecv.Write(wire.EncodeData(6, []byte("def")))

	var ackSend bytes.Buffer
	w := &countingFlusher{}
	var cursor Cursor

	if err := QUICToWriter(context.Background(), &quicRecv, &ackSend, w, &cursor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if w.String() != "abcdef" {
		t.Errorf("expected writer content 'abcdef', got %q", w.String())
	}
	if w.flushes != 2 {
		t.Errorf("expected 2 flushes, got %d", w.flushes)
	}

	var dec wire.AckDecoder
	dec.Feed(ackSend.Bytes())
	first, ok := dec.Next()
	if !ok || first != 5 {
		t.Fatalf("expected first ack 5, got %d ok=%v", first, ok)
	}
	second, ok := dec.Next()
	if !ok || second != 6 {
		t.Fatalf("expected second ack 6, got %d ok=%v", second, ok)
	}

	if cursor.Load() != 6 {
		t.Errorf("expected cursor 6, got %d", cursor.Load())
	}
}

func TestConsumeAckAcknowledgesQueue(t *testing.T) {
	q := queue.New(8)
	id1, _ := q.Push([]byte("a"))
	id2, _ := q.Push([]byte("b"))
	var mu sync.Mutex

	var quicRecv bytes.Buffer
	quicRecv.Write(wire.EncodeAck(id1))
	quicRecv.Write(wire.EncodeAck(id2))

	if err := ConsumeAck(context.Background(), &quicRecv, q, &mu); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after both acks, got len=%d", q.Len())
	}
}

func TestConsumeAckInvalidIsFatal(t *testing.T) {
	q := queue.New(8)
	var mu sync.Mutex
	var quicRecv bytes.Buffer
	quicRecv.Write(wire.EncodeAck(99))

	if err := ConsumeAck(context.Background(), &quicRecv, q, &mu); err != queue.ErrInvalidAck {
		t.Fatalf("expected ErrInvalidAck, got %v", err)
	}
}

func TestReplayWritesUnackedEntriesInOrder(t *testing.T) {
	q := queue.New(8)
	var mu sync.Mutex
	q.Push([]byte("a"))
	idB, _ := q.Push([]byte("b"))
	idC, _ := q.Push([]byte("c"))

	var quicSend bytes.Buffer
	if err := Replay(&quicSend, q, &mu, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var dec wire.DataDecoder
	dec.Feed(quicSend.Bytes())
	first, ok := dec.Next()
	if !ok || first.ID != idB || string(first.Payload) != "b" {
		t.Fatalf("unexpected first replayed frame: %+v ok=%v", first, ok)
	}
	second, ok := dec.Next()
	if !ok || second.ID != idC || string(second.Payload) != "c" {
		t.Fatalf("unexpected second replayed frame: %+v ok=%v", second, ok)
	}
}

func TestReaderToQUICHonorsCancellation(t *testing.T) {
	q := queue.New(8)
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr, pw := io.Pipe()
	defer pw.Close()
	var quicSend bytes.Buffer

	if err := ReaderToQUIC(ctx, pr, &quicSend, q, &mu); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
