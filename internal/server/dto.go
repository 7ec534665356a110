package server

import (
	"encoding/json"

	"bountyboard/internal/domain"
)

// Request payloads

type CreateBountyRequest struct {
	TenantID     string   `json:"tenant_id"`
	Title        string   `json:"title"`
	Description  *string  `json:"description,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	Source       string   `json:"source,omitempty"`
	SourceURL    string   `json:"source_url,omitempty"`
	Repo         string   `json:"repo,omitempty"`
	Org          string   `json:"org,omitempty"`
	IssueNumber  *int     `json:"issue_number,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Status       string   `json:"status,omitempty"`
}

type UpdateBountyRequest struct {
	Status       *string  `json:"status,omitempty" enum:"open,claimed,in_progress,submitted,vetting,completed,paid,cancelled,revision"`
	Title        *string  `json:"title,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	AssigneeID   *string  `json:"assignee_id,omitempty"`
	PRURL        *string  `json:"pr_url,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Force        bool     `json:"force,omitempty"`
}

type ImportRequest struct {
	TenantID string `json:"tenant_id"`
	Filename string `json:"filename,omitempty"`
	Content  string `json:"content"`
}

type CreateProofRequest struct {
	Recordings  []string              `json:"recordings,omitempty"`
	Screenshots []string              `json:"screenshots,omitempty"`
	Diff        *domain.DiffStats     `json:"diff,omitempty"`
	Vetting     []domain.VettingStage `json:"vetting,omitempty"`
	Summary     string                `json:"summary,omitempty"`
}

type CreateTenantRequest struct {
	Host         string `json:"host"`
	Name         string `json:"name"`
	PrimaryColor string `json:"primary_color,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
	Tagline      string `json:"tagline,omitempty"`
}

type CreateLedgerEntryRequest struct {
	BountyID      string  `json:"bounty_id"`
	Type          string  `json:"type" enum:"payout,fee,refund,adjustment"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
	PaymentMethod string  `json:"payment_method" enum:"stripe,wise,crypto,manual"`
	Reference     string  `json:"reference,omitempty"`
}

type SettleLedgerEntryRequest struct {
	Reference string `json:"reference,omitempty"`
}

type FailLedgerEntryRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CreateNotificationRequest struct {
	UserID   string  `json:"user_id"`
	Kind     string  `json:"kind,omitempty"`
	Title    string  `json:"title"`
	Body     string  `json:"body,omitempty"`
	BountyID *string `json:"bounty_id,omitempty"`
}

type UpdatePrefsRequest struct {
	BountyUpdates   bool `json:"bounty_updates"`
	PayoutAlerts    bool `json:"payout_alerts"`
	DiscoveryDigest bool `json:"discovery_digest"`
	SlackDMs        bool `json:"slack_dms"`
}

type RejectRunRequest struct {
	Reason string `json:"reason,omitempty"`
}

type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type DevLoginRequest struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

// Response payloads

type BountyResponse struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenant_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	Currency     string   `json:"currency"`
	Status       string   `json:"status" enum:"open,claimed,in_progress,submitted,vetting,completed,paid,cancelled,revision"`
	Source       string   `json:"source,omitempty"`
	SourceURL    string   `json:"source_url,omitempty"`
	Repo         string   `json:"repo,omitempty"`
	Org          string   `json:"org,omitempty"`
	IssueNumber  *int     `json:"issue_number,omitempty"`
	PRURL        string   `json:"pr_url,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Score        *float64 `json:"score,omitempty"`
	AssigneeID   *string  `json:"assignee_id,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`
	CompletedAt  *string  `json:"completed_at,omitempty" format:"date-time"`
}

type BountyListResponse struct {
	Items      []BountyResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type ProofResponse struct {
	ID          string                `json:"id"`
	BountyID    string                `json:"bounty_id"`
	Recordings  []string              `json:"recordings,omitempty"`
	Screenshots []string              `json:"screenshots,omitempty"`
	Diff        *domain.DiffStats     `json:"diff,omitempty"`
	Vetting     []domain.VettingStage `json:"vetting,omitempty"`
	Summary     string                `json:"summary,omitempty"`
	CreatedBy   string                `json:"created_by"`
	CreatedAt   string                `json:"created_at" format:"date-time"`
}

type TenantResponse struct {
	ID           string  `json:"id"`
	Host         string  `json:"host"`
	Name         string  `json:"name"`
	PrimaryColor string  `json:"primary_color,omitempty"`
	LogoURL      string  `json:"logo_url,omitempty"`
	Tagline      string  `json:"tagline,omitempty"`
	BountyCount  int     `json:"bounty_count"`
	OpenCount    int     `json:"open_count"`
	TotalPaid    float64 `json:"total_paid"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type TenantStatsResponse struct {
	TenantID     string         `json:"tenant_id"`
	BountyCount  int            `json:"bounty_count"`
	OpenCount    int            `json:"open_count"`
	TotalPaid    float64        `json:"total_paid"`
	StatusCounts map[string]int `json:"status_counts"`
}

type WhoAmIResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
	Source string   `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type EventListResponse struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func bountyResponse(b domain.Bounty) BountyResponse {
	return BountyResponse{
		ID:           b.ID,
		TenantID:     b.TenantID,
		Title:        b.Title,
		Description:  b.Description,
		Value:        b.Value,
		Currency:     b.Currency,
		Status:       b.Status,
		Source:       b.Source,
		SourceURL:    b.SourceURL,
		Repo:         b.Repo,
		Org:          b.Org,
		IssueNumber:  b.IssueNumber,
		PRURL:        b.PRURL,
		Labels:       decodeStringSlice(b.LabelsJSON),
		Technologies: decodeStringSlice(b.TechJSON),
		Score:        b.Score,
		AssigneeID:   b.AssigneeID,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
		CompletedAt:  b.CompletedAt,
	}
}

func mapBounties(items []domain.Bounty) []BountyResponse {
	res := make([]BountyResponse, 0, len(items))
	for _, b := range items {
		res = append(res, bountyResponse(b))
	}
	return res
}

func proofResponse(p domain.Proof) ProofResponse {
	resp := ProofResponse{
		ID:          p.ID,
		BountyID:    p.BountyID,
		Recordings:  decodeStringSlice(p.RecordingsJSON),
		Screenshots: decodeStringSlice(p.ScreenshotsJSON),
		Summary:     p.Summary,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
	}
	if p.DiffJSON != nil {
		var d domain.DiffStats
		if err := json.Unmarshal([]byte(*p.DiffJSON), &d); err == nil {
			resp.Diff = &d
		}
	}
	if p.VettingJSON != nil {
		var v []domain.VettingStage
		if err := json.Unmarshal([]byte(*p.VettingJSON), &v); err == nil {
			resp.Vetting = v
		}
	}
	return resp
}

func tenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:           t.ID,
		Host:         t.Host,
		Name:         t.Name,
		PrimaryColor: t.PrimaryColor,
		LogoURL:      t.LogoURL,
		Tagline:      t.Tagline,
		BountyCount:  t.BountyCount,
		OpenCount:    t.OpenCount,
		TotalPaid:    t.TotalPaid,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		UserID:     e.UserID,
	}
	if e.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.Payload), &payload); err == nil {
			resp.Payload = payload
		}
	}
	return resp
}

func decodeStringSlice(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return nil
	}
	return out
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
