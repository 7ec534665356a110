// Package engine implements the bounty lifecycle: creation, status
// transitions, CSV import, proofs, the payout ledger, and the notification
// fan-out. Every mutation runs in one transaction with an event appended.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bountyboard/internal/csvimport"
	"bountyboard/internal/domain"
	"bountyboard/internal/events"
	"bountyboard/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) *Engine {
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

// ErrInvalidTransition is returned when a requested status change is not
// allowed by the lifecycle. Handlers map it to 422.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrValidation covers bad caller input other than transitions.
var ErrValidation = errors.New("validation failed")

// ErrBadRequest covers requests rejected before any domain processing,
// such as an import upload that is not a CSV file at all.
var ErrBadRequest = errors.New("bad request")

func (e *Engine) now() string {
	return e.Now().UTC().Format(time.RFC3339)
}

type CreateBountyParams struct {
	TenantID     string
	Title        string
	Description  string
	Value        *float64
	Currency     string
	Source       string
	SourceURL    string
	Repo         string
	Org          string
	IssueNumber  *int
	Labels       []string
	Technologies []string
	Status       string
	ActorID      string
}

func (e *Engine) CreateBounty(ctx context.Context, p CreateBountyParams) (domain.Bounty, error) {
	if strings.TrimSpace(p.Title) == "" {
		return domain.Bounty{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	status := p.Status
	if status == "" {
		status = domain.StatusOpen
	}
	if !domain.KnownStatus(status) {
		return domain.Bounty{}, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	if p.Value != nil && *p.Value < 0 {
		return domain.Bounty{}, fmt.Errorf("%w: value must not be negative", ErrValidation)
	}
	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}
	now := e.now()
	b := domain.Bounty{
		ID:          uuid.NewString(),
		TenantID:    p.TenantID,
		Title:       strings.TrimSpace(p.Title),
		Description: p.Description,
		Value:       p.Value,
		Currency:    currency,
		Status:      status,
		Source:      p.Source,
		SourceURL:   p.SourceURL,
		Repo:        p.Repo,
		Org:         p.Org,
		IssueNumber: p.IssueNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(p.Labels) > 0 {
		b.LabelsJSON = marshalList(p.Labels)
	}
	if len(p.Technologies) > 0 {
		b.TechJSON = marshalList(p.Technologies)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bounty{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetTenantTx(ctx, tx, p.TenantID); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.Repo.InsertBounty(ctx, tx, b); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.Events.Append(ctx, tx, "bounty.created", "bounty", b.ID, p.ActorID, events.EventPayload{
		"title": b.Title, "status": b.Status,
	}); err != nil {
		return domain.Bounty{}, err
	}
	if _, err := e.Repo.RefreshTenantStats(ctx, tx, p.TenantID, now); err != nil {
		return domain.Bounty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bounty{}, err
	}
	return b, nil
}

type UpdateBountyParams struct {
	Status       *string
	Title        *string
	Description  *string
	Value        *float64
	AssigneeID   *string
	PRURL        *string
	Labels       []string
	Technologies []string
	// Force skips transition validation. Admin repair only.
	Force   bool
	ActorID string
}

func (e *Engine) UpdateBounty(ctx context.Context, id string, p UpdateBountyParams) (domain.Bounty, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bounty{}, err
	}
	defer tx.Rollback()

	b, err := e.Repo.GetBountyTx(ctx, tx, id)
	if err != nil {
		return domain.Bounty{}, err
	}
	prevStatus := b.Status
	now := e.now()

	if p.Status != nil {
		next := *p.Status
		if !domain.KnownStatus(next) {
			return domain.Bounty{}, fmt.Errorf("%w: unknown status %q", ErrValidation, next)
		}
		if !p.Force && !domain.ValidTransition(b.Status, next) {
			return domain.Bounty{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, next)
		}
		b.Status = next
		if next == domain.StatusCompleted && b.CompletedAt == nil {
			b.CompletedAt = &now
		}
	}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return domain.Bounty{}, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		b.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Value != nil {
		if *p.Value < 0 {
			return domain.Bounty{}, fmt.Errorf("%w: value must not be negative", ErrValidation)
		}
		b.Value = p.Value
	}
	if p.AssigneeID != nil {
		b.AssigneeID = p.AssigneeID
	}
	if p.PRURL != nil {
		b.PRURL = *p.PRURL
	}
	if p.Labels != nil {
		b.LabelsJSON = marshalList(p.Labels)
	}
	if p.Technologies != nil {
		b.TechJSON = marshalList(p.Technologies)
	}
	b.UpdatedAt = now

	if err := e.Repo.UpdateBounty(ctx, tx, b); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.Events.Append(ctx, tx, "bounty.updated", "bounty", b.ID, p.ActorID, events.EventPayload{
		"from": prevStatus, "to": b.Status,
	}); err != nil {
		return domain.Bounty{}, err
	}
	if prevStatus != b.Status {
		if err := e.notifyBountyUpdate(ctx, tx, b, prevStatus); err != nil {
			return domain.Bounty{}, err
		}
	}
	if _, err := e.Repo.RefreshTenantStats(ctx, tx, b.TenantID, now); err != nil {
		return domain.Bounty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bounty{}, err
	}
	return b, nil
}

// notifyBountyUpdate writes a status-change notification for the assignee,
// honoring their bounty_updates preference.
func (e *Engine) notifyBountyUpdate(ctx context.Context, tx *sql.Tx, b domain.Bounty, prev string) error {
	if b.AssigneeID == nil || *b.AssigneeID == "" {
		return nil
	}
	prefs, err := e.Repo.GetNotificationPrefsTx(ctx, tx, *b.AssigneeID)
	if err != nil {
		return err
	}
	if !prefs.BountyUpdates {
		return nil
	}
	return e.Repo.InsertNotification(ctx, tx, domain.Notification{
		ID:        uuid.NewString(),
		UserID:    *b.AssigneeID,
		Kind:      "bounty_update",
		Title:     fmt.Sprintf("%s moved to %s", b.Title, b.Status),
		Body:      fmt.Sprintf("Status changed from %s to %s.", prev, b.Status),
		BountyID:  &b.ID,
		CreatedAt: e.now(),
	})
}

// ImportResult reports one CSV import run.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// ImportBounties parses CSV text and persists accepted rows for the tenant
// in one transaction. Row-level problems are reported, not fatal; a file
// with zero usable rows is a validation error.
func (e *Engine) ImportBounties(ctx context.Context, tenantID, filename, text, actorID string) (ImportResult, error) {
	if filename != "" && !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return ImportResult{}, fmt.Errorf("%w: only .csv files are accepted", ErrBadRequest)
	}
	if strings.TrimSpace(text) == "" {
		return ImportResult{}, fmt.Errorf("%w: file is empty", ErrBadRequest)
	}
	parsed := csvimport.Parse(text)
	res := ImportResult{Errors: parsed.Errors}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	res.Skipped = len(parsed.Errors)
	if len(parsed.Records) == 0 {
		if len(parsed.Errors) == 0 {
			// A lone header row carries no data at all.
			return res, fmt.Errorf("%w: file is empty", ErrBadRequest)
		}
		return res, fmt.Errorf("%w: no importable rows", ErrValidation)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetTenantTx(ctx, tx, tenantID); err != nil {
		return res, err
	}
	now := e.now()
	for _, rec := range parsed.Records {
		status := rec.Status
		if !domain.KnownStatus(status) {
			// Unrecognized statuses from foreign exports land as open.
			status = domain.StatusOpen
		}
		createdAt := now
		if rec.CreatedAt != "" {
			if t, err := parseLooseDate(rec.CreatedAt); err == nil {
				createdAt = t.UTC().Format(time.RFC3339)
			}
		}
		b := domain.Bounty{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Title:     rec.Title,
			Value:     rec.Value,
			Currency:  "USD",
			Status:    status,
			Source:    rec.Source,
			SourceURL: rec.SourceURL,
			Repo:      rec.Repo,
			Org:       rec.Org,
			CreatedAt: createdAt,
			UpdatedAt: now,
		}
		if len(rec.Labels) > 0 {
			b.LabelsJSON = marshalList(rec.Labels)
		}
		if len(rec.Technologies) > 0 {
			b.TechJSON = marshalList(rec.Technologies)
		}
		if err := e.Repo.InsertBounty(ctx, tx, b); err != nil {
			return res, err
		}
		res.Imported++
	}
	if err := e.Events.Append(ctx, tx, "import.completed", "tenant", tenantID, actorID, events.EventPayload{
		"imported": res.Imported, "skipped": res.Skipped,
	}); err != nil {
		return res, err
	}
	if _, err := e.Repo.RefreshTenantStats(ctx, tx, tenantID, now); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

type AttachProofParams struct {
	Recordings  []string
	Screenshots []string
	Diff        *domain.DiffStats
	Vetting     []domain.VettingStage
	Summary     string
	ActorID     string
}

// AttachProof records submission evidence against a bounty. Vetting stages
// must come from the known pipeline.
func (e *Engine) AttachProof(ctx context.Context, bountyID string, p AttachProofParams) (domain.Proof, error) {
	for _, st := range p.Vetting {
		if !domain.KnownVettingStage(st.Stage) {
			return domain.Proof{}, fmt.Errorf("%w: unknown vetting stage %q", ErrValidation, st.Stage)
		}
		if st.Status != "pass" && st.Status != "fail" {
			return domain.Proof{}, fmt.Errorf("%w: vetting status must be pass or fail", ErrValidation)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proof{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetBountyTx(ctx, tx, bountyID); err != nil {
		return domain.Proof{}, err
	}
	proof := domain.Proof{
		ID:        uuid.NewString(),
		BountyID:  bountyID,
		Summary:   p.Summary,
		CreatedBy: p.ActorID,
		CreatedAt: e.now(),
	}
	if len(p.Recordings) > 0 {
		proof.RecordingsJSON = marshalList(p.Recordings)
	}
	if len(p.Screenshots) > 0 {
		proof.ScreenshotsJSON = marshalList(p.Screenshots)
	}
	if p.Diff != nil {
		proof.DiffJSON = marshalJSON(p.Diff)
	}
	if len(p.Vetting) > 0 {
		proof.VettingJSON = marshalJSON(p.Vetting)
	}
	if err := e.Repo.InsertProof(ctx, tx, proof); err != nil {
		return domain.Proof{}, err
	}
	if err := e.Events.Append(ctx, tx, "proof.attached", "bounty", bountyID, p.ActorID, events.EventPayload{
		"proof_id": proof.ID,
	}); err != nil {
		return domain.Proof{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proof{}, err
	}
	return proof, nil
}

type CreateLedgerEntryParams struct {
	BountyID      string
	Type          string
	Amount        float64
	Currency      string
	PaymentMethod string
	Reference     string
	ActorID       string
}

var ledgerTypes = map[string]bool{"payout": true, "fee": true, "refund": true, "adjustment": true}
var paymentMethods = map[string]bool{"stripe": true, "wise": true, "crypto": true, "manual": true}

func (e *Engine) CreateLedgerEntry(ctx context.Context, p CreateLedgerEntryParams) (domain.LedgerEntry, error) {
	if !ledgerTypes[p.Type] {
		return domain.LedgerEntry{}, fmt.Errorf("%w: unknown ledger type %q", ErrValidation, p.Type)
	}
	if !paymentMethods[p.PaymentMethod] {
		return domain.LedgerEntry{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, p.PaymentMethod)
	}
	if p.Amount <= 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	defer tx.Rollback()
	b, err := e.Repo.GetBountyTx(ctx, tx, p.BountyID)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	entry := domain.LedgerEntry{
		ID:            uuid.NewString(),
		BountyID:      b.ID,
		TenantID:      b.TenantID,
		Type:          p.Type,
		Status:        "pending",
		Amount:        p.Amount,
		Currency:      currency,
		PaymentMethod: p.PaymentMethod,
		Reference:     p.Reference,
		CreatedAt:     e.now(),
	}
	if err := e.Repo.InsertLedgerEntry(ctx, tx, entry); err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "ledger.created", "ledger", entry.ID, p.ActorID, events.EventPayload{
		"bounty_id": b.ID, "type": entry.Type, "amount": entry.Amount,
	}); err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// SettleLedgerEntry marks a pending entry settled, stamps the bounty paid
// when the entry is a payout, and notifies the assignee.
func (e *Engine) SettleLedgerEntry(ctx context.Context, id, reference, actorID string) (domain.LedgerEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	defer tx.Rollback()
	entry, err := e.Repo.GetLedgerEntryTx(ctx, tx, id)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if entry.Status != "pending" {
		return domain.LedgerEntry{}, fmt.Errorf("%w: entry is %s, not pending", ErrValidation, entry.Status)
	}
	now := e.now()
	entry.Status = "settled"
	entry.SettledAt = &now
	if reference != "" {
		entry.Reference = reference
	}
	if err := e.Repo.UpdateLedgerEntry(ctx, tx, entry); err != nil {
		return domain.LedgerEntry{}, err
	}
	if entry.Type == "payout" {
		b, err := e.Repo.GetBountyTx(ctx, tx, entry.BountyID)
		if err != nil {
			return domain.LedgerEntry{}, err
		}
		if domain.ValidTransition(b.Status, domain.StatusPaid) {
			b.Status = domain.StatusPaid
			b.UpdatedAt = now
			if err := e.Repo.UpdateBounty(ctx, tx, b); err != nil {
				return domain.LedgerEntry{}, err
			}
		}
		if err := e.notifyPayout(ctx, tx, b, entry); err != nil {
			return domain.LedgerEntry{}, err
		}
		if _, err := e.Repo.RefreshTenantStats(ctx, tx, b.TenantID, now); err != nil {
			return domain.LedgerEntry{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "payout.settled", "ledger", entry.ID, actorID, events.EventPayload{
		"bounty_id": entry.BountyID, "amount": entry.Amount,
	}); err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// FailLedgerEntry marks a pending entry failed. The bounty keeps its
// status so a replacement payout can be recorded.
func (e *Engine) FailLedgerEntry(ctx context.Context, id, reason, actorID string) (domain.LedgerEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	defer tx.Rollback()
	entry, err := e.Repo.GetLedgerEntryTx(ctx, tx, id)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if entry.Status != "pending" {
		return domain.LedgerEntry{}, fmt.Errorf("%w: entry is %s, not pending", ErrValidation, entry.Status)
	}
	entry.Status = "failed"
	if reason != "" {
		entry.Reference = reason
	}
	if err := e.Repo.UpdateLedgerEntry(ctx, tx, entry); err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "payout.failed", "ledger", entry.ID, actorID, events.EventPayload{
		"bounty_id": entry.BountyID, "amount": entry.Amount, "reason": reason,
	}); err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

func (e *Engine) notifyPayout(ctx context.Context, tx *sql.Tx, b domain.Bounty, entry domain.LedgerEntry) error {
	if b.AssigneeID == nil || *b.AssigneeID == "" {
		return nil
	}
	prefs, err := e.Repo.GetNotificationPrefsTx(ctx, tx, *b.AssigneeID)
	if err != nil {
		return err
	}
	if !prefs.PayoutAlerts {
		return nil
	}
	return e.Repo.InsertNotification(ctx, tx, domain.Notification{
		ID:        uuid.NewString(),
		UserID:    *b.AssigneeID,
		Kind:      "payout",
		Title:     fmt.Sprintf("Payout settled: %.2f %s", entry.Amount, entry.Currency),
		Body:      fmt.Sprintf("Payment for %q went out via %s.", b.Title, entry.PaymentMethod),
		BountyID:  &b.ID,
		CreatedAt: e.now(),
	})
}

type CreateTenantParams struct {
	Host         string
	Name         string
	PrimaryColor string
	LogoURL      string
	Tagline      string
	ActorID      string
}

func (e *Engine) CreateTenant(ctx context.Context, p CreateTenantParams) (domain.Tenant, error) {
	if strings.TrimSpace(p.Host) == "" || strings.TrimSpace(p.Name) == "" {
		return domain.Tenant{}, fmt.Errorf("%w: host and name are required", ErrValidation)
	}
	now := e.now()
	t := domain.Tenant{
		ID:           uuid.NewString(),
		Host:         strings.ToLower(strings.TrimSpace(p.Host)),
		Name:         strings.TrimSpace(p.Name),
		PrimaryColor: p.PrimaryColor,
		LogoURL:      p.LogoURL,
		Tagline:      p.Tagline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTenant(ctx, tx, t); err != nil {
		return domain.Tenant{}, err
	}
	if err := e.Events.Append(ctx, tx, "tenant.created", "tenant", t.ID, p.ActorID, events.EventPayload{
		"host": t.Host,
	}); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

type CreateNotificationParams struct {
	UserID   string
	Kind     string
	Title    string
	Body     string
	BountyID *string
	ActorID  string
}

// CreateNotification posts a notification directly. Used by operators and
// integration tests; lifecycle notifications come from the engine itself.
func (e *Engine) CreateNotification(ctx context.Context, p CreateNotificationParams) (domain.Notification, error) {
	if strings.TrimSpace(p.UserID) == "" || strings.TrimSpace(p.Title) == "" {
		return domain.Notification{}, fmt.Errorf("%w: user_id and title are required", ErrValidation)
	}
	kind := p.Kind
	if kind == "" {
		kind = "note"
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Kind:      kind,
		Title:     p.Title,
		Body:      p.Body,
		BountyID:  p.BountyID,
		CreatedAt: e.now(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Notification{}, err
	}
	defer tx.Rollback()
	if p.BountyID != nil {
		if _, err := e.Repo.GetBountyTx(ctx, tx, *p.BountyID); err != nil {
			return domain.Notification{}, err
		}
	}
	if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
		return domain.Notification{}, err
	}
	if err := e.Events.Append(ctx, tx, "notification.created", "notification", n.ID, p.ActorID, events.EventPayload{
		"user_id": n.UserID, "kind": n.Kind,
	}); err != nil {
		return domain.Notification{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

func (e *Engine) SaveNotificationPrefs(ctx context.Context, p domain.NotificationPrefs) (domain.NotificationPrefs, error) {
	p.UpdatedAt = e.now()
	if err := e.Repo.UpsertNotificationPrefs(ctx, p); err != nil {
		return domain.NotificationPrefs{}, err
	}
	return p, nil
}

func marshalList(list []string) *string {
	data, _ := json.Marshal(list)
	s := string(data)
	return &s
}

func marshalJSON(v any) *string {
	data, _ := json.Marshal(v)
	s := string(data)
	return &s
}

var looseDateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseLooseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range looseDateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
