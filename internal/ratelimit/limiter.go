// Package ratelimit wraps a pool entry's upstream TCP socket with an
// optional byte-rate cap and a live throughput estimate, so the
// control RPC can report activity alongside queue depth.
package ratelimit

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/juju/ratelimit"
)

// unbounded is used when no --rate-limit is configured; it is large
// enough that ratelimit.Bucket never meaningfully throttles.
const unbounded = 500 * 1024 * 1024 * 1024

// window is how long a throughput sample stays live before the next
// recorded byte starts a fresh one. ConnList's BytesPerSecond field is
// always the average over however much of the current window has
// elapsed, not a sum across a ring of fixed per-second slots.
const window = 5 * time.Second

// minElapsed floors the denominator right after a window opens, so a
// burst landing a few microseconds in doesn't get reported as an
// implausible spike.
const minElapsed = 50 * time.Millisecond

// Limiter caps a pool entry's socket throughput and estimates its
// live rate for ConnList's throughput field.
type Limiter struct {
	bucket  *ratelimit.Bucket
	maxRate int64

	meter meter
}

// meter tracks bytes moved since windowStart. Once window has
// elapsed, the next sample rolls it over to a fresh start rather than
// carrying a trailing ring of per-second totals forward: a connection
// that has gone quiet reports a falling rate on its very next sample
// instead of trailing off over several stale buckets.
type meter struct {
	windowStart int64 // atomic, unix nanos
	bytes       int64 // atomic
}

// New builds a Limiter capped at bytesPerSec; bytesPerSec <= 0 means
// effectively unbounded (throughput is still tracked for reporting).
func New(bytesPerSec int64) *Limiter {
	if bytesPerSec <= 0 {
		bytesPerSec = unbounded
	}
	return &Limiter{
		bucket:  ratelimit.NewBucketWithRate(float64(bytesPerSec), bytesPerSec),
		maxRate: bytesPerSec,
		meter:   meter{windowStart: time.Now().UnixNano()},
	}
}

func (m *meter) record(n int64) {
	now := time.Now().UnixNano()
	start := atomic.LoadInt64(&m.windowStart)
	if time.Duration(now-start) > window {
		if atomic.CompareAndSwapInt64(&m.windowStart, start, now) {
			atomic.StoreInt64(&m.bytes, 0)
		}
	}
	atomic.AddInt64(&m.bytes, n)
}

func (m *meter) bytesPerSecond() int64 {
	start := atomic.LoadInt64(&m.windowStart)
	elapsed := time.Duration(time.Now().UnixNano() - start)
	if elapsed < minElapsed {
		elapsed = minElapsed
	}
	bytes := atomic.LoadInt64(&m.bytes)
	return int64(float64(bytes) / elapsed.Seconds())
}

// WrapConn wraps c so reads and writes are rate-limited and counted.
func (l *Limiter) WrapConn(c net.Conn) net.Conn {
	return &throttledConn{Conn: c, limiter: l}
}

// BytesPerSecond returns the current window's average throughput.
func (l *Limiter) BytesPerSecond() int64 {
	return l.meter.bytesPerSecond()
}

type throttledConn struct {
	net.Conn
	limiter *Limiter
}

func (t *throttledConn) Read(p []byte) (int, error) {
	n, err := t.Conn.Read(p)
	if n > 0 {
		t.limiter.bucket.Wait(int64(n))
		t.limiter.meter.record(int64(n))
	}
	return n, err
}

func (t *throttledConn) Write(p []byte) (int, error) {
	t.limiter.bucket.Wait(int64(len(p)))
	n, err := t.Conn.Write(p)
	if err == nil {
		t.limiter.meter.record(int64(n))
	}
	return n, err
}
