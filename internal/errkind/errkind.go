// Package errkind classifies errors surfaced by a session's sub-tasks
// into the kinds the session driver and endpoint drivers act on.
package errkind

import (
	"errors"
	"net"

	"github.com/quic-go/quic-go"

	"stablessh/internal/queue"
)

// Kind is the classification of an error surfaced by a session.
type Kind int

const (
	// Ok is a clean, successful shutdown; not an error to the caller.
	Ok Kind = iota
	// Retry means the session ended from transient QUIC loss; the
	// client should reconnect, the server should wait for the next session.
	Retry
	// Fatal means the error is not retriable; the session or process
	// terminates.
	Fatal
	// Resolve is a DNS/address resolution failure at dial time.
	Resolve
	// Handshake is a TLS/ALPN failure.
	Handshake
	// LocalIO is a local stdin/stdout/TCP upstream failure.
	LocalIO
	// PoolInUse is the classification of ErrPoolInUse.
	PoolInUse
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Retry:
		return "retry"
	case Fatal:
		return "fatal"
	case Resolve:
		return "resolve"
	case Handshake:
		return "handshake"
	case LocalIO:
		return "local_io"
	case PoolInUse:
		return "pool_in_use"
	default:
		return "unknown"
	}
}

// ErrPoolInUse marks a kill rejected because the entry is currently
// held. Pool.Kill does not return it: it reports that case as
// (false, nil).
var ErrPoolInUse = errors.New("errkind: pool entry in use")

// Classify inspects err and returns the Kind that should drive the
// session state machine's next transition. nil classifies as Ok.
func Classify(err error) Kind {
	if err == nil {
		return Ok
	}

	var idleErr *quic.IdleTimeoutError
	if errors.As(err, &idleErr) {
		return Retry
	}

	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		if appErr.ErrorCode == 0 {
			return Ok
		}
		return Retry
	}

	var transportErr *quic.TransportError
	if errors.As(err, &transportErr) {
		return Retry
	}

	var statelessResetErr *quic.StatelessResetError
	if errors.As(err, &statelessResetErr) {
		return Retry
	}

	if errors.Is(err, queue.ErrQueueFull) {
		return Fatal
	}
	if errors.Is(err, queue.ErrInvalidAck) {
		return Fatal
	}
	if errors.Is(err, queue.ErrInvalidCursor) {
		return Fatal
	}
	if errors.Is(err, ErrPoolInUse) {
		return PoolInUse
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retry
	}

	return Fatal
}
