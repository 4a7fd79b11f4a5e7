// Package session drives one QUIC connection's resumable handshake and
// streaming lifetime (spec section 4.5). Grounded on
// original_source/src/utils.rs's handle_connection_tx/_rx (the
// opener-accepts-its-own-stream structure) and the teacher's bidiPipe
// "first to finish cancels the rest" composition in
// bridge/salmon_shared.go.
package session

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/quic-go/quic-go"

	"stablessh/internal/errkind"
	"stablessh/internal/pipes"
	"stablessh/internal/queue"
)

// Endpoint is the local, role-independent state one side of a session
// brings to the protocol: the queue of chunks it is sending to the
// peer, and the cursor of the highest id it has delivered locally.
//
// The two sides of a session are structurally identical: each opens
// exactly one bidirectional stream and accepts exactly one (spec
// section 4.3, "an S_tx or S_rx may be opened in either order"). The
// side that opens a stream is the DATA RECEIVER on it (it announces its
// own resume cursor, then reads DATA and acks back); the side that
// accepts a stream is the DATA SENDER on it (it reads the peer's resume
// cursor, replays unacked entries, then keeps pushing and consuming
// acks). This holds for both the client and the server, so one Run
// implementation serves both.
type Endpoint struct {
	OutboundQueue *queue.Queue
	OutboundMu    pipes.Locker

	InboundCursor *pipes.Cursor

	LocalReader io.Reader
	LocalWriter pipes.FlushWriter
}

type streamResult struct {
	stream *quic.Stream
	err    error
}

func closeStream(s *quic.Stream) {
	if s == nil {
		return
	}
	s.CancelRead(0)
	s.CancelWrite(0)
}

func readCursor(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeCursor(w io.Writer, cursor uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], cursor)
	_, err := w.Write(buf[:])
	return err
}

// Run drives one QUIC session end to end: opens and accepts the
// session's two bidirectional streams, exchanges resume cursors, then
// runs the three per-session sub-tasks (tx-pipe, ack-consumer, rx-pipe)
// concurrently until the first one finishes, cancelling the other two
// at their next suspension point. It returns the classified reason the
// session ended and the underlying error (nil on a clean Ok).
func Run(ctx context.Context, conn *quic.Conn, ep Endpoint, sess *Session) (errkind.Kind, error) {
	sess.setState(Handshaking)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	openedCh := make(chan streamResult, 1)
	acceptedCh := make(chan streamResult, 1)

	go func() {
		s, err := conn.OpenStreamSync(sessCtx)
		if err == nil {
			// The peer's AcceptStream only returns once data arrives on
			// this stream, so our resume cursor goes out right away.
			err = writeCursor(s, ep.InboundCursor.Load())
		}
		openedCh <- streamResult{s, err}
	}()
	go func() {
		s, err := conn.AcceptStream(sessCtx)
		acceptedCh <- streamResult{s, err}
	}()

	opened := <-openedCh
	accepted := <-acceptedCh

	if opened.err != nil {
		closeStream(opened.stream)
		closeStream(accepted.stream)
		sess.setState(Closed)
		return errkind.Classify(opened.err), opened.err
	}
	if accepted.err != nil {
		closeStream(opened.stream)
		sess.setState(Closed)
		return errkind.Classify(accepted.err), accepted.err
	}

	sess.setState(Streaming)

	errs := make(chan error, 3)

	// Receiver role on the stream we opened (our cursor was announced
	// when it was opened): deliver DATA to the local sink and ack each
	// one back.
	go func() {
		errs <- pipes.QUICToWriter(sessCtx, opened.stream, opened.stream, ep.LocalWriter, ep.InboundCursor)
	}()

	// Sender role on the stream we accepted: read the peer's resume
	// cursor, replay anything unacked, then keep pushing local reads.
	go func() {
		cursor, err := readCursor(accepted.stream)
		if err != nil {
			errs <- err
			return
		}
		if err := pipes.Replay(accepted.stream, ep.OutboundQueue, ep.OutboundMu, cursor); err != nil {
			errs <- err
			return
		}
		errs <- pipes.ReaderToQUIC(sessCtx, ep.LocalReader, accepted.stream, ep.OutboundQueue, ep.OutboundMu)
	}()

	// Ack-consumer for the sender role above, on the same accepted
	// stream's reverse direction.
	go func() {
		errs <- pipes.ConsumeAck(sessCtx, accepted.stream, ep.OutboundQueue, ep.OutboundMu)
	}()

	first := <-errs
	cancel()
	closeStream(opened.stream)
	closeStream(accepted.stream)
	// Drain the other two sub-tasks so their goroutines never leak.
	<-errs
	<-errs

	sess.setState(Closed)
	return errkind.Classify(first), first
}
