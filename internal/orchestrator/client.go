// Package orchestrator talks to the external work-execution service that
// runs claimed bounties through its pipeline.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// UpstreamError reports a non-2xx answer from the orchestrator.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("orchestrator: upstream status %d: %s", e.Status, e.Body)
}

// StartRequest kicks off a run for a bounty.
type StartRequest struct {
	BountyID  string   `json:"bounty_id"`
	Title     string   `json:"title"`
	SourceURL string   `json:"source_url,omitempty"`
	Repo      string   `json:"repo,omitempty"`
	Labels    []string `json:"labels,omitempty"`
}

// RunStatus is the orchestrator's view of a run.
type RunStatus struct {
	RunID     string          `json:"run_id"`
	BountyID  string          `json:"bounty_id"`
	Status    string          `json:"status"`
	Stage     string          `json:"stage,omitempty"`
	PRURL     string          `json:"pr_url,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

func (c *Client) Start(ctx context.Context, req StartRequest) (RunStatus, error) {
	var out RunStatus
	err := c.postJSON(ctx, "/api/bounty/start", req, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context, bountyID string) (RunStatus, error) {
	var out RunStatus
	err := c.do(ctx, http.MethodGet, "/api/bounty/"+bountyID+"/status", nil, &out)
	return out, err
}

func (c *Client) Approve(ctx context.Context, bountyID string) (RunStatus, error) {
	var out RunStatus
	err := c.postJSON(ctx, "/api/bounty/"+bountyID+"/approve", map[string]any{}, &out)
	return out, err
}

func (c *Client) Reject(ctx context.Context, bountyID, reason string) (RunStatus, error) {
	var out RunStatus
	err := c.postJSON(ctx, "/api/bounty/"+bountyID+"/reject", map[string]any{"reason": reason}, &out)
	return out, err
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal orchestrator request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := string(raw)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return &UpstreamError{Status: resp.StatusCode, Body: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
