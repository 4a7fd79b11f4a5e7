// Package pool implements the server-side connection pool (spec
// section 4.4): a map from client public key to the shared upstream
// TCP socket, tx queue, and rx cursor that survive across QUIC
// sessions. Grounded on the byte-keyed map of original_source's
// pool.rs and the ticker-driven GC idiom of the teacher's
// status/connection_monitor.go.
package pool

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"stablessh/internal/pipes"
	"stablessh/internal/queue"
	"stablessh/internal/ratelimit"
)

// ErrNotFound is returned by operations addressing a pubkey the pool
// has no entry for.
var ErrNotFound = errors.New("pool: not found")

// ErrInUse is returned by Hold when the entry's socket is currently
// held by an active session. Kill reports that case as (false, nil).
var ErrInUse = errors.New("pool: in use")

// Entry is one pool entry: the shared state a client's pubkey maps to
// across QUIC sessions.
type Entry struct {
	Pubkey      []byte
	DisplayName string
	Limiter     *ratelimit.Limiter

	socketMu sync.Mutex // guards exclusive hold of socket; TryLock enforces "at most one session"
	socket   net.Conn

	txMu    sync.Mutex
	TxQueue *queue.Queue

	RxCursor pipes.Cursor // client->server last-ack cursor; atomic per design notes

	stateMu    sync.Mutex
	held       bool
	lastActive time.Time
}

// Socket returns the entry's shared upstream TCP socket. Only the
// session holding the entry (see Pool.Hold) may use it.
func (e *Entry) Socket() net.Conn { return e.socket }

// TxMutex returns the mutex guarding TxQueue, for pipes callers that
// need to serialize push/check/list against it (spec section 5: "each
// sliding-window queue is guarded by one mutex").
func (e *Entry) TxMutex() *sync.Mutex { return &e.txMu }

// Handle is the scoped hold returned by Pool.Hold; its Release method
// stands in for the destructor the design notes describe (section 9),
// since Go has no implicit drop.
type Handle struct {
	entry *Entry
}

// Release re-installs now() as the entry's last-active timestamp and
// frees the socket for the next session's Hold or Kill.
func (h *Handle) Release() {
	h.entry.stateMu.Lock()
	h.entry.held = false
	h.entry.lastActive = time.Now()
	h.entry.stateMu.Unlock()
	h.entry.socketMu.Unlock()
}

// Pool is the server-side map from pubkey to Entry.
type Pool struct {
	windowBits   int
	rateLimitBps int64

	mu      sync.Mutex
	entries map[string]*Entry
	group   singleflight.Group

	collectInterval time.Duration
	holdTimeout     time.Duration
}

// New creates an empty pool. windowBits sizes each entry's tx queue
// (--bufsize); collectInterval and holdTimeout drive Collect's GC.
// rateLimitBps caps each entry's upstream socket throughput; <= 0 means
// unbounded (throughput is still tracked for ConnList's reporting).
func New(windowBits int, collectInterval, holdTimeout time.Duration, rateLimitBps int64) *Pool {
	return &Pool{
		windowBits:      windowBits,
		rateLimitBps:    rateLimitBps,
		entries:         make(map[string]*Entry),
		collectInterval: collectInterval,
		holdTimeout:     holdTimeout,
	}
}

// GetOrCreate returns the existing entry for pubkey, or creates one via
// dial (which performs the TCP dial to the forward target) if none
// exists. Concurrent calls for the same pubkey collapse onto one dial
// via singleflight, the Go-idiomatic replacement for the per-key async
// mutex the original implies.
func (p *Pool) GetOrCreate(pubkey []byte, displayName string, dial func() (net.Conn, error)) (*Entry, error) {
	key := string(pubkey)

	p.mu.Lock()
	if e, ok := p.entries[key]; ok {
		p.mu.Unlock()
		return e, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		p.mu.Lock()
		if e, ok := p.entries[key]; ok {
			p.mu.Unlock()
			return e, nil
		}
		p.mu.Unlock()

		conn, dialErr := dial()
		if dialErr != nil {
			return nil, dialErr
		}
		limiter := ratelimit.New(p.rateLimitBps)
		e := &Entry{
			Pubkey:      append([]byte(nil), pubkey...),
			DisplayName: displayName,
			Limiter:     limiter,
			socket:      limiter.WrapConn(conn),
			TxQueue:     queue.New(p.windowBits),
			lastActive:  time.Now(),
		}

		p.mu.Lock()
		p.entries[key] = e
		p.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Hold acquires exclusive use of pubkey's entry for the lifetime of one
// session, clearing its idle timestamp. ErrInUse if another session
// already holds it; ErrNotFound if pubkey has no entry.
func (p *Pool) Hold(pubkey []byte) (*Handle, error) {
	p.mu.Lock()
	e, ok := p.entries[string(pubkey)]
	p.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !e.socketMu.TryLock() {
		return nil, ErrInUse
	}
	e.stateMu.Lock()
	e.held = true
	e.stateMu.Unlock()
	return &Handle{entry: e}, nil
}

// List returns every pubkey currently in the pool.
func (p *Pool) List() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.Pubkey)
	}
	return out
}

// Lookup returns the entry for pubkey, if any, without holding it.
func (p *Pool) Lookup(pubkey []byte) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[string(pubkey)]
	return e, ok
}

// LastActive reports how long pubkey's entry has been idle. inUse is
// true while a session holds it (idleSeconds is meaningless then). ok
// is false if pubkey has no entry.
func (p *Pool) LastActive(pubkey []byte) (idleSeconds float64, inUse bool, ok bool) {
	e, found := p.Lookup(pubkey)
	if !found {
		return 0, false, false
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.held {
		return 0, true, true
	}
	return time.Since(e.lastActive).Seconds(), false, true
}

// Qlen reports the live length of pubkey's tx queue.
func (p *Pool) Qlen(pubkey []byte) (int, bool) {
	e, found := p.Lookup(pubkey)
	if !found {
		return 0, false
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	return e.TxQueue.Len(), true
}

// Kill attempts a non-blocking acquire of pubkey's socket: if it fails
// (a session holds it), returns (false, nil). Otherwise it removes the
// entry and closes the socket, returning (true, nil). ErrNotFound if
// pubkey has no entry.
func (p *Pool) Kill(pubkey []byte) (bool, error) {
	key := string(pubkey)
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return false, ErrNotFound
	}
	if !e.socketMu.TryLock() {
		return false, nil
	}
	defer e.socketMu.Unlock()

	delete(p.entries, key)
	e.socket.Close()
	return true, nil
}

// Collect runs the idle-entry garbage collector until ctx is done: every
// collectInterval it removes entries whose idle age exceeds holdTimeout.
func (p *Pool) Collect(ctx context.Context) {
	if p.collectInterval <= 0 {
		return
	}
	ticker := time.NewTicker(p.collectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *Pool) collectOnce() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.entries {
		e.stateMu.Lock()
		idle := !e.held && now.Sub(e.lastActive) > p.holdTimeout
		e.stateMu.Unlock()
		if !idle {
			continue
		}
		if !e.socketMu.TryLock() {
			continue
		}
		e.socket.Close()
		e.socketMu.Unlock()
		delete(p.entries, key)
	}
}
