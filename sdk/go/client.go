package bountyboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Bountyboard HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Bounty represents the API bounty model (partial).
type Bounty struct {
	ID         string   `json:"id"`
	TenantID   string   `json:"tenant_id"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Value      *float64 `json:"value,omitempty"`
	Currency   string   `json:"currency"`
	Source     string   `json:"source,omitempty"`
	SourceURL  string   `json:"source_url,omitempty"`
	Repo       string   `json:"repo,omitempty"`
	AssigneeID *string  `json:"assignee_id,omitempty"`
	PRURL      *string  `json:"pr_url,omitempty"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// Proof represents a submission proof entry.
type Proof struct {
	ID          string         `json:"id"`
	BountyID    string         `json:"bounty_id"`
	Recordings  []string       `json:"recordings,omitempty"`
	Screenshots []string       `json:"screenshots,omitempty"`
	Diff        map[string]any `json:"diff,omitempty"`
	Vetting     []VettingStage `json:"vetting,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   string         `json:"created_at"`
}

// VettingStage is one stage of automated vetting.
type VettingStage struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
}

// LedgerEntry represents a payout ledger row.
type LedgerEntry struct {
	ID            string  `json:"id"`
	BountyID      string  `json:"bounty_id"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method"`
	Reference     string  `json:"reference,omitempty"`
	SettledAt     *string `json:"settled_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	UserID     string         `json:"user_id"`
	Payload    map[string]any `json:"payload"`
}

// RunStatus mirrors the orchestrator run report.
type RunStatus struct {
	RunID     string `json:"run_id"`
	BountyID  string `json:"bounty_id"`
	Status    string `json:"status"`
	Stage     string `json:"stage,omitempty"`
	PRURL     string `json:"pr_url,omitempty"`
	Detail    string `json:"detail,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ImportResult reports the outcome of a CSV import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedBounties wraps list responses with cursors.
type PaginatedBounties struct {
	Items      []Bounty `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

// CreateBounty creates a bounty in the given tenant.
func (c *Client) CreateBounty(ctx context.Context, tenantID, title string, value *float64) (Bounty, error) {
	body := map[string]any{
		"tenant_id": tenantID,
		"title":     title,
	}
	if value != nil {
		body["value"] = *value
	}
	var resp Bounty
	err := c.do(ctx, http.MethodPost, "v0/bounties", body, &resp)
	return resp, err
}

// GetBounty fetches a bounty by id.
func (c *Client) GetBounty(ctx context.Context, id string) (Bounty, error) {
	var resp Bounty
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/bounties/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// SetStatus moves a bounty through its lifecycle.
func (c *Client) SetStatus(ctx context.Context, id, status string) (Bounty, error) {
	body := map[string]any{"status": status}
	var resp Bounty
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("v0/bounties/%s", url.PathEscape(id)), body, &resp)
	return resp, err
}

// Bounties returns a paginated bounty listing.
func (c *Client) Bounties(ctx context.Context, tenantID, status string, limit int, cursor string) (PaginatedBounties, error) {
	q := url.Values{}
	if tenantID != "" {
		q.Set("tenant_id", tenantID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/bounties"
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp PaginatedBounties
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Import uploads CSV content for field-mapped import.
func (c *Client) Import(ctx context.Context, tenantID, filename, content string) (ImportResult, error) {
	body := map[string]any{
		"tenant_id": tenantID,
		"filename":  filename,
		"content":   content,
	}
	var resp ImportResult
	err := c.do(ctx, http.MethodPost, "v0/import", body, &resp)
	return resp, err
}

// AttachProof records a submission proof for a bounty.
func (c *Client) AttachProof(ctx context.Context, bountyID string, vetting []VettingStage, summary string) (Proof, error) {
	body := map[string]any{
		"vetting": vetting,
		"summary": summary,
	}
	var resp Proof
	endpoint := fmt.Sprintf("v0/bounties/%s/proofs", url.PathEscape(bountyID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListProofs returns the proofs attached to a bounty.
func (c *Client) ListProofs(ctx context.Context, bountyID string) ([]Proof, error) {
	var resp []Proof
	endpoint := fmt.Sprintf("v0/bounties/%s/proofs", url.PathEscape(bountyID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateLedgerEntry records a pending payout, fee, or refund.
func (c *Client) CreateLedgerEntry(ctx context.Context, bountyID, entryType string, amount float64, method string) (LedgerEntry, error) {
	body := map[string]any{
		"bounty_id":      bountyID,
		"type":           entryType,
		"amount":         amount,
		"payment_method": method,
	}
	var resp LedgerEntry
	err := c.do(ctx, http.MethodPost, "v0/ledger", body, &resp)
	return resp, err
}

// SettleLedgerEntry marks a pending entry as settled.
func (c *Client) SettleLedgerEntry(ctx context.Context, id, reference string) (LedgerEntry, error) {
	body := map[string]any{"reference": reference}
	var resp LedgerEntry
	endpoint := fmt.Sprintf("v0/ledger/%s/settle", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// StartRun asks the orchestrator to start working a bounty.
func (c *Client) StartRun(ctx context.Context, bountyID string) (RunStatus, error) {
	var resp RunStatus
	endpoint := fmt.Sprintf("v0/bounties/%s/start", url.PathEscape(bountyID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// Run fetches the orchestrator run status for a bounty.
func (c *Client) Run(ctx context.Context, bountyID string) (RunStatus, error) {
	var resp RunStatus
	endpoint := fmt.Sprintf("v0/bounties/%s/run", url.PathEscape(bountyID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
