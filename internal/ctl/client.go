package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"
)

// Client talks to a running Server's HTTP/JSON control plane
// (--ctl-target).
type Client struct {
	target string
	http   *http.Client
}

// NewClient builds a client targeting base (e.g. "http://localhost:50051").
func NewClient(base string) *Client {
	return &Client{
		target: strings.TrimSuffix(base, "/"),
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// ConnList lists every pool entry on the server.
func (c *Client) ConnList(ctx context.Context) ([]ConnInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.target+"/api/v1/conn/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []ConnInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ctl: decode conn list: %w", err)
	}
	return out, nil
}

// ConnKill attempts to kill the pool entry with the given short id,
// returning the server's status: "ok", "not_found", or "in_use".
func (c *Client) ConnKill(ctx context.Context, id string) (string, error) {
	u := c.target + "/api/v1/conn/kill?id=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var kr killResponse
	if err := json.NewDecoder(resp.Body).Decode(&kr); err != nil {
		return "", fmt.Errorf("ctl: decode kill response: %w", err)
	}
	return kr.Status, nil
}

// FormatTable renders conns as an aligned table (id, name, last_active,
// pkt_buf, rate), the control CLI's rendering of the original's
// prettytable output plus a throughput column (spec section 12
// supplement); no pack example pulls in a
// third-party table-formatting library, so this uses the standard
// library's text/tabwriter.
func FormatTable(conns []ConnInfo) string {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLAST_ACTIVE\tPKT_BUF\tRATE")
	for _, c := range conns {
		lastActive := "in_use"
		if c.LastActiveSeconds != nil {
			lastActive = fmt.Sprintf("%.0fs", *c.LastActiveSeconds)
		}
		name := c.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d B/s\n", c.ID, name, lastActive, c.PktBufLen, c.BytesPerSecond)
	}
	tw.Flush()
	return sb.String()
}
