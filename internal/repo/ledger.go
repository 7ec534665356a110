package repo

import (
	"context"
	"database/sql"
	"strings"

	"bountyboard/internal/domain"
)

func (r Repo) InsertLedgerEntry(ctx context.Context, tx *sql.Tx, e domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ledger(id,bounty_id,tenant_id,type,status,amount,currency,payment_method,reference,created_at,settled_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.BountyID, nullable(e.TenantID), e.Type, e.Status, e.Amount, e.Currency,
		e.PaymentMethod, nullable(e.Reference), e.CreatedAt, nullableStringPtr(e.SettledAt))
	return err
}

func (r Repo) UpdateLedgerEntry(ctx context.Context, tx *sql.Tx, e domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `UPDATE ledger SET status=?, reference=?, settled_at=? WHERE id=?`,
		e.Status, nullable(e.Reference), nullableStringPtr(e.SettledAt), e.ID)
	return err
}

func scanLedgerEntry(scan func(dest ...any) error) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var tenantID, reference, settledAt sql.NullString
	err := scan(&e.ID, &e.BountyID, &tenantID, &e.Type, &e.Status, &e.Amount, &e.Currency, &e.PaymentMethod, &reference, &e.CreatedAt, &settledAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.TenantID = tenantID.String
	e.Reference = reference.String
	if settledAt.Valid {
		e.SettledAt = &settledAt.String
	}
	return e, nil
}

func (r Repo) GetLedgerEntry(ctx context.Context, id string) (domain.LedgerEntry, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,bounty_id,tenant_id,type,status,amount,currency,payment_method,reference,created_at,settled_at FROM ledger WHERE id=?`, id)
	return scanLedgerEntry(row.Scan)
}

func (r Repo) GetLedgerEntryTx(ctx context.Context, tx *sql.Tx, id string) (domain.LedgerEntry, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,bounty_id,tenant_id,type,status,amount,currency,payment_method,reference,created_at,settled_at FROM ledger WHERE id=?`, id)
	return scanLedgerEntry(row.Scan)
}

type LedgerFilters struct {
	BountyID string
	TenantID string
	Type     string
	Status   string
	Limit    int
}

func (r Repo) ListLedgerEntries(ctx context.Context, f LedgerFilters) ([]domain.LedgerEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.BountyID != "" {
		clauses = append(clauses, "bounty_id=?")
		args = append(args, f.BountyID)
	}
	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, f.TenantID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,bounty_id,tenant_id,type,status,amount,currency,payment_method,reference,created_at,settled_at FROM ledger ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
