// Package ctl implements the control-plane RPC (spec section 4.7): a
// read-mostly connection list and a best-effort kill, served over plain
// HTTP/JSON. Grounded on the teacher's api/http_server.go, which already
// exposes a ServeMux + graceful-shutdown HTTP API at the same shape the
// original's ctl-target default implies, rather than the gRPC
// (tonic/proto) transport of the Rust original source, which has no
// pack equivalent.
package ctl

// ConnInfo is one pool entry as exposed by ConnList.
type ConnInfo struct {
	ID                string   `json:"id"`
	Name              string   `json:"name,omitempty"`
	LastActiveSeconds *float64 `json:"last_active_seconds,omitempty"`
	InUse             bool     `json:"in_use"`
	PktBufLen         int      `json:"pkt_buf_len"`
	BytesPerSecond    int64    `json:"bytes_per_sec"`
}

type killResponse struct {
	Status string `json:"status"` // "ok", "not_found", "in_use"
}
