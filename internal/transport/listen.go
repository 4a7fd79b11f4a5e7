package transport

import (
	"context"
	"crypto/tls"

	"github.com/quic-go/quic-go"
)

// Listen binds a QUIC listener on addr (spec section 6's --listen),
// presenting tlsConfig and tuned by quicConfig.
func Listen(addr string, tlsConfig *tls.Config, quicConfig *quic.Config) (*quic.Listener, error) {
	return quic.ListenAddr(addr, tlsConfig, quicConfig)
}

// Accept blocks until the next incoming QUIC session completes its
// handshake, or ctx is cancelled.
func Accept(ctx context.Context, l *quic.Listener) (*quic.Conn, error) {
	return l.Accept(ctx)
}
