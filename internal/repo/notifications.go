package repo

import (
	"context"
	"database/sql"

	"bountyboard/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,user_id,kind,title,body,bounty_id,read,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Kind, n.Title, nullable(n.Body), nullableStringPtr(n.BountyID), boolInt(n.Read), n.CreatedAt)
	return err
}

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var body, bountyID sql.NullString
	var read int
	err := scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &body, &bountyID, &read, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.Body = body.String
	if bountyID.Valid {
		n.BountyID = &bountyID.String
	}
	n.Read = read != 0
	return n, nil
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,user_id,kind,title,body,bounty_id,read,created_at FROM notifications WHERE id=?`, id)
	return scanNotification(row.Scan)
}

func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id,user_id,kind,title,body,bounty_id,read,created_at FROM notifications WHERE user_id=?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE user_id=? AND read=0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetNotificationPrefs returns defaults when the user has never saved any:
// updates and payout alerts on, digest and Slack DMs off.
func (r Repo) GetNotificationPrefs(ctx context.Context, userID string) (domain.NotificationPrefs, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT user_id,bounty_updates,payout_alerts,discovery_digest,slack_dms,updated_at FROM notification_prefs WHERE user_id=?`, userID)
	return scanPrefs(row, userID)
}

func (r Repo) GetNotificationPrefsTx(ctx context.Context, tx *sql.Tx, userID string) (domain.NotificationPrefs, error) {
	row := tx.QueryRowContext(ctx, `SELECT user_id,bounty_updates,payout_alerts,discovery_digest,slack_dms,updated_at FROM notification_prefs WHERE user_id=?`, userID)
	return scanPrefs(row, userID)
}

func scanPrefs(row *sql.Row, userID string) (domain.NotificationPrefs, error) {
	var p domain.NotificationPrefs
	var updates, payouts, digest, slack int
	err := row.Scan(&p.UserID, &updates, &payouts, &digest, &slack, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.NotificationPrefs{UserID: userID, BountyUpdates: true, PayoutAlerts: true}, nil
	}
	if err != nil {
		return p, err
	}
	p.BountyUpdates = updates != 0
	p.PayoutAlerts = payouts != 0
	p.DiscoveryDigest = digest != 0
	p.SlackDMs = slack != 0
	return p, nil
}

func (r Repo) UpsertNotificationPrefs(ctx context.Context, p domain.NotificationPrefs) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notification_prefs(user_id,bounty_updates,payout_alerts,discovery_digest,slack_dms,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET bounty_updates=excluded.bounty_updates, payout_alerts=excluded.payout_alerts, discovery_digest=excluded.discovery_digest, slack_dms=excluded.slack_dms, updated_at=excluded.updated_at`,
		p.UserID, boolInt(p.BountyUpdates), boolInt(p.PayoutAlerts), boolInt(p.DiscoveryDigest), boolInt(p.SlackDMs), p.UpdatedAt)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
