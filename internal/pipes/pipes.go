// Package pipes implements the four copy loops that move bytes between
// a local reader/writer and a QUIC stream, enqueueing and acknowledging
// chunks as they cross (spec section 4.3): reader-to-QUIC, QUIC-to-writer,
// ack-consumer, and the resume replay helper used at handshake time.
package pipes

import (
	"context"
	"io"
	"sync/atomic"

	"stablessh/internal/queue"
	"stablessh/internal/wire"
)

// readChunkSize bounds a single local read; it matches the DATA frame's
// 16-bit length field so every chunk fits in one frame.
const readChunkSize = wire.MaxPayloadLen

// Locker is the minimal interface a caller's queue mutex must satisfy.
// *sync.Mutex implements it.
type Locker interface {
	Lock()
	Unlock()
}

// FlushWriter is a local sink that can be flushed after a write, so an
// ACK is never sent before its payload is durable against the sink's
// own buffering.
type FlushWriter interface {
	io.Writer
	Flush() error
}

// NopFlusher adapts a plain io.Writer (a net.Conn, os.Stdout, ...) that
// has no internal buffering of its own into a FlushWriter.
type NopFlusher struct {
	io.Writer
}

// Flush is a no-op: the wrapped writer is unbuffered.
func (NopFlusher) Flush() error { return nil }

// Cursor is the atomic "last delivered id" shared between the rx-pipe
// writer and the next handshake's resume read, replacing the reader-
// writer lock the design notes call out as optional.
type Cursor struct {
	v atomic.Uint32
}

// Store records id as the new last-delivered cursor.
func (c *Cursor) Store(id uint32) { c.v.Store(id) }

// Load returns the current cursor value.
func (c *Cursor) Load() uint32 { return c.v.Load() }

// ReaderToQUIC reads chunks from r, pushes each onto q (guarded by mu),
// and writes the resulting DATA frame to quicSend. It returns nil on a
// clean EOF from r, or the first push/read/write error otherwise.
// ctx is checked between iterations for cooperative cancellation.
func ReaderToQUIC(ctx context.Context, r io.Reader, quicSend io.Writer, q *queue.Queue, mu Locker) error {
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			mu.Lock()
			id, pushErr := q.Push(buf[:n])
			mu.Unlock()
			if pushErr != nil {
				return pushErr
			}
			if _, err := quicSend.Write(wire.EncodeData(id, buf[:n])); err != nil {
				return err
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

// QUICToWriter reads from quicRecv, decodes DATA frames, and for each
// one writes the payload to w, flushes w, sends an ACK for the frame's
// id on quicAckSend, and then stores the id into cursor — in that
// order, so the ordering guarantees of section 5 hold: the write and
// flush happen before the ack, and the cursor update happens after the
// ack is enqueued for send.
func QUICToWriter(ctx context.Context, quicRecv io.Reader, quicAckSend io.Writer, w FlushWriter, cursor *Cursor) error {
	buf := make([]byte, readChunkSize)
	var dec wire.DataDecoder
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := quicRecv.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				frame, ok := dec.Next()
				if !ok {
					break
				}
				if _, err := w.Write(frame.Payload); err != nil {
					return err
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if _, err := quicAckSend.Write(wire.EncodeAck(frame.ID)); err != nil {
					return err
				}
				cursor.Store(frame.ID)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

// ConsumeAck reads from quicRecv, decodes ACK frames, and acknowledges
// each id against q (guarded by mu). An InvalidAck is returned
// unwrapped so the caller can classify it as fatal.
func ConsumeAck(ctx context.Context, quicRecv io.Reader, q *queue.Queue, mu Locker) error {
	const ackReadSize = 4096
	buf := make([]byte, ackReadSize)
	var dec wire.AckDecoder
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := quicRecv.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				id, ok := dec.Next()
				if !ok {
					break
				}
				mu.Lock()
				ackErr := q.AcknowledgeThrough(id)
				mu.Unlock()
				if ackErr != nil {
					return ackErr
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

// Replay writes every entry q holds strictly after cursor, in order, to
// quicSend. It is the handshake-time counterpart of queue.list(cursor)
// in section 4.5: called once, before a stream's ReaderToQUIC loop
// starts, so the peer receives unacked chunks before new ones.
func Replay(quicSend io.Writer, q *queue.Queue, mu Locker, cursor uint32) error {
	mu.Lock()
	entries, err := q.ListFrom(cursor)
	mu.Unlock()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, werr := quicSend.Write(wire.EncodeData(e.ID, e.Payload)); werr != nil {
			return werr
		}
	}
	return nil
}
