package ctl

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"stablessh/internal/pool"
	"stablessh/internal/transport"
)

// Server exposes the control plane's two read-mostly operations over
// HTTP/JSON; it never touches the data path directly, only the pool.
type Server struct {
	pool       *pool.Pool
	listenAddr string
	log        *zap.SugaredLogger

	httpSrv *http.Server
}

// NewServer builds a control-plane server bound to listenAddr
// (--ctl-listen), backed by p.
func NewServer(p *pool.Pool, listenAddr string, log *zap.SugaredLogger) *Server {
	return &Server{pool: p, listenAddr: listenAddr, log: log}
}

// Start begins listening and serving; it returns once the listener is
// bound, serving in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/conn/list", s.handleList)
	mux.HandleFunc("/api/v1/conn/kill", s.handleKill)

	h := &http.Server{Addr: s.listenAddr, Handler: mux}
	s.httpSrv = h

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}

	go func() {
		if err := h.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("ctl server stopped", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the control server down within 5 seconds.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// resolve finds the pubkey whose short id matches id; the pool itself
// is keyed by raw pubkey bytes, so the control plane rebuilds the
// mapping from ShortID on every lookup rather than keeping a second
// index that could drift from the pool.
func (s *Server) resolve(id string) ([]byte, bool) {
	for _, pk := range s.pool.List() {
		if transport.ShortID(pk) == id {
			return pk, true
		}
	}
	return nil, false
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	out := make([]ConnInfo, 0, len(s.pool.List()))
	for _, pk := range s.pool.List() {
		entry, found := s.pool.Lookup(pk)
		if !found {
			continue
		}
		idle, inUse, ok := s.pool.LastActive(pk)
		if !ok {
			continue
		}
		qlen, _ := s.pool.Qlen(pk)

		info := ConnInfo{
			ID:             transport.ShortID(pk),
			Name:           entry.DisplayName,
			InUse:          inUse,
			PktBufLen:      qlen,
			BytesPerSecond: entry.Limiter.BytesPerSecond(),
		}
		if !inUse {
			idleCopy := idle
			info.LastActiveSeconds = &idleCopy
		}
		out = append(out, info)
	}

	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Errorw("encode conn list", "error", err)
	}
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	pk, found := s.resolve(id)
	if !found {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(killResponse{Status: "not_found"})
		return
	}

	ok, err := s.pool.Kill(pk)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(killResponse{Status: "not_found"})
		return
	}
	if !ok {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(killResponse{Status: "in_use"})
		return
	}
	json.NewEncoder(w).Encode(killResponse{Status: "ok"})
}
