package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

// Config carries the QUIC tuning knobs exposed on the CLI (spec
// section 6): idle timeout and keepalive period, both in seconds (0
// disables the behaviour).
type Config struct {
	IdleSeconds      int
	KeepaliveSeconds int
}

// QUICConfig builds a *quic.Config from c. MTU discovery is left on
// (the quic-go default), mirroring the original client's explicit
// mtu_discovery_config tuning rather than silently omitting it.
func (c Config) QUICConfig() *quic.Config {
	cfg := &quic.Config{
		DisableMTUDiscovery: false,
	}
	if c.IdleSeconds > 0 {
		cfg.MaxIdleTimeout = time.Duration(c.IdleSeconds) * time.Second
	}
	if c.KeepaliveSeconds > 0 {
		cfg.KeepAlivePeriod = time.Duration(c.KeepaliveSeconds) * time.Second
	}
	return cfg
}

// dialTimeout bounds a single address's dial attempt within the outer
// retry loop.
const dialTimeout = 10 * time.Second

// DialFirstReachable tries each address in addrs, in order, returning
// the first successful QUIC connection. It is the client dial loop's
// inner step (spec section 4.6): "for each address: attempt to
// connect; if connect fails, try next."
func DialFirstReachable(ctx context.Context, addrs []string, tlsConfig *tls.Config, quicConfig *quic.Config) (*quic.Conn, error) {
	var lastErr error
	for _, addr := range addrs {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, err := quic.DialAddr(dialCtx, addr, tlsConfig, quicConfig)
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = fmt.Errorf("dial %s: %w", addr, err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses to dial")
	}
	return nil, lastErr
}
