package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bountyboard/internal/db"
	"bountyboard/internal/domain"
	"bountyboard/internal/migrate"
	"bountyboard/internal/repo"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := New(conn)
	e.Now = func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) }
	e.Events.Now = e.Now
	return e
}

func seedTenant(t *testing.T, e *Engine) domain.Tenant {
	t.Helper()
	tenant, err := e.CreateTenant(context.Background(), CreateTenantParams{
		Host: "bounties.acme.dev", Name: "Acme Bounties", ActorID: "admin",
	})
	require.NoError(t, err)
	return tenant
}

func TestCreateBounty(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	v := 250.0
	b, err := e.CreateBounty(ctx, CreateBountyParams{
		TenantID: tenant.ID,
		Title:    "  Fix race in session store  ",
		Value:    &v,
		Labels:   []string{"bug", "concurrency"},
		ActorID:  "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "Fix race in session store", b.Title)
	assert.Equal(t, domain.StatusOpen, b.Status)
	assert.Equal(t, "USD", b.Currency)
	require.NotNil(t, b.LabelsJSON)
	assert.JSONEq(t, `["bug","concurrency"]`, *b.LabelsJSON)

	got, err := e.Repo.GetBounty(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Title, got.Title)

	// Tenant counters were refreshed in the same transaction.
	tn, err := e.Repo.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tn.BountyCount)
	assert.Equal(t, 1, tn.OpenCount)
}

func TestCreateBountyValidation(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	_, err := e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	neg := -5.0
	_, err = e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "X", Value: &neg})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "X", Status: "weird"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.CreateBounty(ctx, CreateBountyParams{TenantID: "missing", Title: "X"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUpdateBountyTransitions(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	b, err := e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "Task", ActorID: "admin"})
	require.NoError(t, err)

	// open -> in_progress skips claimed and must be rejected.
	in := domain.StatusInProgress
	_, err = e.UpdateBounty(ctx, b.ID, UpdateBountyParams{Status: &in})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	claimed := domain.StatusClaimed
	got, err := e.UpdateBounty(ctx, b.ID, UpdateBountyParams{Status: &claimed})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClaimed, got.Status)

	// Force bypasses validation for admin repair.
	completed := domain.StatusCompleted
	got, err = e.UpdateBounty(ctx, b.ID, UpdateBountyParams{Status: &completed, Force: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, "2026-02-01T12:00:00Z", *got.CompletedAt)
}

func TestUpdateBountyNotifiesAssignee(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	assignee := "hunter"
	b, err := e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "Task"})
	require.NoError(t, err)
	claimed := domain.StatusClaimed
	_, err = e.UpdateBounty(ctx, b.ID, UpdateBountyParams{Status: &claimed, AssigneeID: &assignee})
	require.NoError(t, err)

	ns, err := e.Repo.ListNotifications(ctx, assignee, false, 0)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "bounty_update", ns[0].Kind)
	assert.False(t, ns[0].Read)

	// Opting out silences further updates.
	_, err = e.SaveNotificationPrefs(ctx, domain.NotificationPrefs{UserID: assignee})
	require.NoError(t, err)
	inProgress := domain.StatusInProgress
	_, err = e.UpdateBounty(ctx, b.ID, UpdateBountyParams{Status: &inProgress})
	require.NoError(t, err)
	ns, err = e.Repo.ListNotifications(ctx, assignee, false, 0)
	require.NoError(t, err)
	assert.Len(t, ns, 1)
}

func TestImportBounties(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	csv := "title,reward,labels,status\n" +
		"Fix bug,$100,bug,open\n" +
		",$50,,open\n" +
		"Odd status,$75,misc,archived\n"
	res, err := e.ImportBounties(ctx, tenant.ID, "bounties.csv", csv, "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "line 3")

	bounties, err := e.Repo.ListBounties(ctx, repo.BountyFilters{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Len(t, bounties, 2)
	// Unknown statuses normalize to open.
	for _, b := range bounties {
		assert.Equal(t, domain.StatusOpen, b.Status)
	}
}

func TestImportRejectsBadInput(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	// Pre-parse rejections are bad requests, not validation failures.
	_, err := e.ImportBounties(ctx, tenant.ID, "data.xlsx", "title\nX\n", "admin")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Contains(t, err.Error(), "only .csv files are accepted")

	_, err = e.ImportBounties(ctx, tenant.ID, "empty.csv", "   ", "admin")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Contains(t, err.Error(), "file is empty")

	// A lone header row is still an empty file.
	_, err = e.ImportBounties(ctx, tenant.ID, "header.csv", "title,reward\n", "admin")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Contains(t, err.Error(), "file is empty")

	// Rows that all fail mapping are a validation problem, not a bad upload.
	_, err = e.ImportBounties(ctx, tenant.ID, "none.csv", "title,reward\n,$5\n", "admin")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "no importable rows")
}

func TestAttachProof(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	b, err := e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "Task"})
	require.NoError(t, err)

	proof, err := e.AttachProof(ctx, b.ID, AttachProofParams{
		Screenshots: []string{"https://cdn.example/shot1.png"},
		Diff:        &domain.DiffStats{Additions: 10, Deletions: 2, FilesChanged: 3},
		Vetting: []domain.VettingStage{
			{Stage: "clone", Status: "pass", DurationMS: 1200},
			{Stage: "test", Status: "fail", DurationMS: 30000},
		},
		Summary: "Initial submission",
		ActorID: "hunter",
	})
	require.NoError(t, err)
	require.NotNil(t, proof.VettingJSON)

	proofs, err := e.Repo.ListProofsForBounty(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	assert.Equal(t, "hunter", proofs[0].CreatedBy)

	_, err = e.AttachProof(ctx, b.ID, AttachProofParams{
		Vetting: []domain.VettingStage{{Stage: "deploy", Status: "pass"}},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLedgerSettlement(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	assignee := "hunter"
	b, err := e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "Task", ActorID: "admin"})
	require.NoError(t, err)
	for _, s := range []string{domain.StatusClaimed, domain.StatusInProgress, domain.StatusSubmitted, domain.StatusVetting, domain.StatusCompleted} {
		st := s
		_, err = e.UpdateBounty(ctx, b.ID, UpdateBountyParams{Status: &st, AssigneeID: &assignee})
		require.NoError(t, err)
	}

	entry, err := e.CreateLedgerEntry(ctx, CreateLedgerEntryParams{
		BountyID: b.ID, Type: "payout", Amount: 250, PaymentMethod: "stripe", ActorID: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", entry.Status)
	assert.Equal(t, tenant.ID, entry.TenantID)

	settled, err := e.SettleLedgerEntry(ctx, entry.ID, "po_123", "admin")
	require.NoError(t, err)
	assert.Equal(t, "settled", settled.Status)
	require.NotNil(t, settled.SettledAt)
	assert.Equal(t, "po_123", settled.Reference)

	got, err := e.Repo.GetBounty(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)

	tn, err := e.Repo.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 250.0, tn.TotalPaid)

	// Payout notification reached the assignee.
	ns, err := e.Repo.ListNotifications(ctx, assignee, true, 0)
	require.NoError(t, err)
	var kinds []string
	for _, n := range ns {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, "payout")

	// Double settlement is rejected.
	_, err = e.SettleLedgerEntry(ctx, entry.ID, "", "admin")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLedgerFailure(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	b, err := e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "Task", ActorID: "admin"})
	require.NoError(t, err)
	entry, err := e.CreateLedgerEntry(ctx, CreateLedgerEntryParams{
		BountyID: b.ID, Type: "payout", Amount: 50, PaymentMethod: "wise", ActorID: "admin",
	})
	require.NoError(t, err)

	failed, err := e.FailLedgerEntry(ctx, entry.ID, "account closed", "admin")
	require.NoError(t, err)
	assert.Equal(t, "failed", failed.Status)
	assert.Equal(t, "account closed", failed.Reference)
	assert.Nil(t, failed.SettledAt)

	// The bounty is untouched so a replacement payout can follow.
	got, err := e.Repo.GetBounty(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)

	_, err = e.FailLedgerEntry(ctx, entry.ID, "", "admin")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.SettleLedgerEntry(ctx, entry.ID, "", "admin")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateNotification(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	b, err := e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "Task", ActorID: "admin"})
	require.NoError(t, err)

	n, err := e.CreateNotification(ctx, CreateNotificationParams{
		UserID: "hunter", Title: "Heads up", Body: "New work available", BountyID: &b.ID, ActorID: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "note", n.Kind)
	assert.False(t, n.Read)

	items, err := e.Repo.ListNotifications(ctx, "hunter", true, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Heads up", items[0].Title)

	_, err = e.CreateNotification(ctx, CreateNotificationParams{UserID: "", Title: "x"})
	assert.ErrorIs(t, err, ErrValidation)
	missing := "missing"
	_, err = e.CreateNotification(ctx, CreateNotificationParams{UserID: "hunter", Title: "x", BountyID: &missing})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCreateLedgerEntryValidation(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()
	b, err := e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "Task"})
	require.NoError(t, err)

	_, err = e.CreateLedgerEntry(ctx, CreateLedgerEntryParams{BountyID: b.ID, Type: "bribe", Amount: 10, PaymentMethod: "stripe"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.CreateLedgerEntry(ctx, CreateLedgerEntryParams{BountyID: b.ID, Type: "payout", Amount: 0, PaymentMethod: "stripe"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.CreateLedgerEntry(ctx, CreateLedgerEntryParams{BountyID: b.ID, Type: "payout", Amount: 10, PaymentMethod: "cash"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.CreateLedgerEntry(ctx, CreateLedgerEntryParams{BountyID: "missing", Type: "payout", Amount: 10, PaymentMethod: "stripe"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestEventsRecorded(t *testing.T) {
	e := newTestEngine(t)
	tenant := seedTenant(t, e)
	ctx := context.Background()

	b, err := e.CreateBounty(ctx, CreateBountyParams{TenantID: tenant.ID, Title: "Task", ActorID: "admin"})
	require.NoError(t, err)
	claimed := domain.StatusClaimed
	_, err = e.UpdateBounty(ctx, b.ID, UpdateBountyParams{Status: &claimed, ActorID: "hunter"})
	require.NoError(t, err)

	evts, err := e.Repo.LatestEvents(ctx, 10, "", "bounty", b.ID)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	// Newest first.
	assert.Equal(t, "bounty.updated", evts[0].Type)
	assert.Equal(t, "bounty.created", evts[1].Type)
	assert.Equal(t, "hunter", evts[0].UserID)
}
