package repo

import (
	"context"
	"database/sql"

	"bountyboard/internal/domain"
)

func (r Repo) InsertProof(ctx context.Context, tx *sql.Tx, p domain.Proof) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proofs(id,bounty_id,recordings_json,screenshots_json,diff_json,vetting_json,summary,created_by,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.BountyID, nullableStringPtr(p.RecordingsJSON), nullableStringPtr(p.ScreenshotsJSON),
		nullableStringPtr(p.DiffJSON), nullableStringPtr(p.VettingJSON), nullable(p.Summary),
		p.CreatedBy, p.CreatedAt)
	return err
}

func scanProof(scan func(dest ...any) error) (domain.Proof, error) {
	var p domain.Proof
	var recordings, screenshots, diff, vetting, summary sql.NullString
	err := scan(&p.ID, &p.BountyID, &recordings, &screenshots, &diff, &vetting, &summary, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if recordings.Valid {
		p.RecordingsJSON = &recordings.String
	}
	if screenshots.Valid {
		p.ScreenshotsJSON = &screenshots.String
	}
	if diff.Valid {
		p.DiffJSON = &diff.String
	}
	if vetting.Valid {
		p.VettingJSON = &vetting.String
	}
	p.Summary = summary.String
	return p, nil
}

func (r Repo) GetProof(ctx context.Context, id string) (domain.Proof, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,bounty_id,recordings_json,screenshots_json,diff_json,vetting_json,summary,created_by,created_at FROM proofs WHERE id=?`, id)
	return scanProof(row.Scan)
}

func (r Repo) ListProofsForBounty(ctx context.Context, bountyID string) ([]domain.Proof, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,bounty_id,recordings_json,screenshots_json,diff_json,vetting_json,summary,created_by,created_at FROM proofs WHERE bounty_id=? ORDER BY created_at DESC, id DESC`, bountyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Proof
	for rows.Next() {
		p, err := scanProof(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
