package session

import "sync/atomic"

// State is one of the five states a session passes through (spec
// section 4.5): Dialing -> QUICHandshake -> Handshaking -> Streaming -> Closed.
type State int32

const (
	Dialing State = iota
	QUICHandshake
	Handshaking
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Dialing:
		return "dialing"
	case QUICHandshake:
		return "quic_handshake"
	case Handshaking:
		return "handshaking"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session tracks one QUIC connection's lifetime state, readable
// concurrently by a status reporter while Run drives the transitions.
type Session struct {
	state atomic.Int32
}

// State returns the session's current state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }
