package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bountyboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const bountyColumns = `id,tenant_id,title,description,value,currency,status,source,source_url,repo,org,issue_number,pr_url,labels_json,technologies_json,score,assignee_id,created_at,updated_at,completed_at`

func scanBounty(scan func(dest ...any) error) (domain.Bounty, error) {
	var b domain.Bounty
	var description, source, sourceURL, repo, org, prURL, labels, tech, assignee, completedAt sql.NullString
	var value, score sql.NullFloat64
	var issueNumber sql.NullInt64
	err := scan(&b.ID, &b.TenantID, &b.Title, &description, &value, &b.Currency, &b.Status,
		&source, &sourceURL, &repo, &org, &issueNumber, &prURL, &labels, &tech, &score,
		&assignee, &b.CreatedAt, &b.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.Description = description.String
	b.Source = source.String
	b.SourceURL = sourceURL.String
	b.Repo = repo.String
	b.Org = org.String
	b.PRURL = prURL.String
	if value.Valid {
		v := value.Float64
		b.Value = &v
	}
	if score.Valid {
		s := score.Float64
		b.Score = &s
	}
	if issueNumber.Valid {
		n := int(issueNumber.Int64)
		b.IssueNumber = &n
	}
	if labels.Valid {
		b.LabelsJSON = &labels.String
	}
	if tech.Valid {
		b.TechJSON = &tech.String
	}
	if assignee.Valid {
		b.AssigneeID = &assignee.String
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.String
	}
	return b, nil
}

func (r Repo) InsertBounty(ctx context.Context, tx *sql.Tx, b domain.Bounty) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bounties(`+bountyColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.TenantID, b.Title, nullable(b.Description), nullableFloatPtr(b.Value), b.Currency, b.Status,
		nullable(b.Source), nullable(b.SourceURL), nullable(b.Repo), nullable(b.Org), nullableIntPtr(b.IssueNumber),
		nullable(b.PRURL), nullableStringPtr(b.LabelsJSON), nullableStringPtr(b.TechJSON), nullableFloatPtr(b.Score),
		nullableStringPtr(b.AssigneeID), b.CreatedAt, b.UpdatedAt, nullableStringPtr(b.CompletedAt))
	return err
}

func (r Repo) UpdateBounty(ctx context.Context, tx *sql.Tx, b domain.Bounty) error {
	_, err := tx.ExecContext(ctx, `UPDATE bounties SET title=?, description=?, value=?, currency=?, status=?, source=?, source_url=?, repo=?, org=?, issue_number=?, pr_url=?, labels_json=?, technologies_json=?, score=?, assignee_id=?, updated_at=?, completed_at=? WHERE id=?`,
		b.Title, nullable(b.Description), nullableFloatPtr(b.Value), b.Currency, b.Status,
		nullable(b.Source), nullable(b.SourceURL), nullable(b.Repo), nullable(b.Org), nullableIntPtr(b.IssueNumber),
		nullable(b.PRURL), nullableStringPtr(b.LabelsJSON), nullableStringPtr(b.TechJSON), nullableFloatPtr(b.Score),
		nullableStringPtr(b.AssigneeID), b.UpdatedAt, nullableStringPtr(b.CompletedAt), b.ID)
	return err
}

func (r Repo) GetBounty(ctx context.Context, id string) (domain.Bounty, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bountyColumns+` FROM bounties WHERE id=?`, id)
	return scanBounty(row.Scan)
}

func (r Repo) GetBountyTx(ctx context.Context, tx *sql.Tx, id string) (domain.Bounty, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bountyColumns+` FROM bounties WHERE id=?`, id)
	return scanBounty(row.Scan)
}

func (r Repo) DeleteBounty(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM bounties WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type BountyFilters struct {
	TenantID        string
	Status          string
	Source          string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListBounties(ctx context.Context, f BountyFilters) ([]domain.Bounty, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, f.TenantID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Source != "" {
		clauses = append(clauses, "source=?")
		args = append(args, f.Source)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT ` + bountyColumns + ` FROM bounties ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Bounty
	for rows.Next() {
		b, err := scanBounty(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) CountBountiesByStatus(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM bounties WHERE tenant_id=? GROUP BY status`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Tenants

func (r Repo) InsertTenant(ctx context.Context, tx *sql.Tx, t domain.Tenant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tenants(id,host,name,primary_color,logo_url,tagline,bounty_count,open_count,total_paid,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Host, t.Name, nullable(t.PrimaryColor), nullable(t.LogoURL), nullable(t.Tagline),
		t.BountyCount, t.OpenCount, t.TotalPaid, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpsertTenant(ctx context.Context, t domain.Tenant) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tenants(id,host,name,primary_color,logo_url,tagline,bounty_count,open_count,total_paid,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET host=excluded.host, name=excluded.name, primary_color=excluded.primary_color, logo_url=excluded.logo_url, tagline=excluded.tagline, updated_at=excluded.updated_at`,
		t.ID, t.Host, t.Name, nullable(t.PrimaryColor), nullable(t.LogoURL), nullable(t.Tagline),
		t.BountyCount, t.OpenCount, t.TotalPaid, t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTenant(scan func(dest ...any) error) (domain.Tenant, error) {
	var t domain.Tenant
	var color, logo, tagline sql.NullString
	err := scan(&t.ID, &t.Host, &t.Name, &color, &logo, &tagline, &t.BountyCount, &t.OpenCount, &t.TotalPaid, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.PrimaryColor = color.String
	t.LogoURL = logo.String
	t.Tagline = tagline.String
	return t, nil
}

func (r Repo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,host,name,primary_color,logo_url,tagline,bounty_count,open_count,total_paid,created_at,updated_at FROM tenants WHERE id=?`, id)
	return scanTenant(row.Scan)
}

func (r Repo) GetTenantTx(ctx context.Context, tx *sql.Tx, id string) (domain.Tenant, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,host,name,primary_color,logo_url,tagline,bounty_count,open_count,total_paid,created_at,updated_at FROM tenants WHERE id=?`, id)
	return scanTenant(row.Scan)
}

func (r Repo) GetTenantByHost(ctx context.Context, host string) (domain.Tenant, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,host,name,primary_color,logo_url,tagline,bounty_count,open_count,total_paid,created_at,updated_at FROM tenants WHERE host=?`, host)
	return scanTenant(row.Scan)
}

func (r Repo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,host,name,primary_color,logo_url,tagline,bounty_count,open_count,total_paid,created_at,updated_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// RefreshTenantStats recomputes the denormalized counters from bounties and
// settled payouts.
func (r Repo) RefreshTenantStats(ctx context.Context, tx *sql.Tx, tenantID, now string) (domain.Tenant, error) {
	exec := tx.ExecContext
	if _, err := exec(ctx, `UPDATE tenants SET
bounty_count=(SELECT COUNT(*) FROM bounties WHERE tenant_id=?),
open_count=(SELECT COUNT(*) FROM bounties WHERE tenant_id=? AND status=?),
total_paid=(SELECT COALESCE(SUM(amount),0) FROM ledger WHERE tenant_id=? AND type='payout' AND status='settled'),
updated_at=?
WHERE id=?`, tenantID, tenantID, domain.StatusOpen, tenantID, now, tenantID); err != nil {
		return domain.Tenant{}, err
	}
	row := tx.QueryRowContext(ctx, `SELECT id,host,name,primary_color,logo_url,tagline,bounty_count,open_count,total_paid,created_at,updated_at FROM tenants WHERE id=?`, tenantID)
	return scanTenant(row.Scan)
}

// Events

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),user_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),user_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`
	return r.queryEvents(ctx, query, cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.UserID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// nullable helpers

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
