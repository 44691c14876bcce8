package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/patrickwarner/nest/internal/models"
)

const notificationColumns = `id, recipient, type, title, message, related_model, related_id,
    priority, read, sent_via, created_at, expires_at`

func scanNotification(s rowScanner) (*models.Notification, error) {
	var n models.Notification
	var expires sql.NullTime
	if err := s.Scan(&n.ID, &n.Recipient, &n.Type, &n.Title, &n.Message, &n.RelatedTo.Model, &n.RelatedTo.ID,
		&n.Priority, &n.Read, pq.Array(&n.SentVia), &n.CreatedAt, &expires); err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		n.ExpiresAt = &t
	}
	return &n, nil
}

// CreateNotifications inserts the records in one transaction.
func (p *Postgres) CreateNotifications(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notifications tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO notifications (
            id, recipient, type, title, message, related_model, related_id,
            priority, read, sent_via, created_at, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`)
	if err != nil {
		return fmt.Errorf("prepare notification insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, n := range ns {
		var expires sql.NullTime
		if n.ExpiresAt != nil {
			expires = sql.NullTime{Time: *n.ExpiresAt, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, n.ID, n.Recipient, n.Type, n.Title, n.Message,
			n.RelatedTo.Model, n.RelatedTo.ID, n.Priority, n.Read, pq.Array(n.SentVia), n.CreatedAt, expires); err != nil {
			return fmt.Errorf("insert notification for %s: %w", n.Recipient, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notifications: %w", err)
	}
	return nil
}

// ListNotifications returns a page of the recipient's notifications, newest first.
func (p *Postgres) ListNotifications(ctx context.Context, f models.NotificationFilter, pg models.Page) ([]*models.Notification, int, int, error) {
	pg = pg.Normalize()

	var total, unread int
	if err := p.DB.QueryRowContext(ctx, `SELECT
            COUNT(*) FILTER (WHERE NOT $2 OR NOT read),
            COUNT(*) FILTER (WHERE NOT read)
        FROM notifications WHERE recipient=$1`, f.Recipient, f.UnreadOnly).Scan(&total, &unread); err != nil {
		return nil, 0, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := p.DB.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications
        WHERE recipient=$1 AND (NOT $2 OR NOT read)
        ORDER BY created_at DESC, id DESC
        LIMIT $3 OFFSET $4`, f.Recipient, f.UnreadOnly, pg.Limit, pg.Offset())
	if err != nil {
		return nil, 0, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("rows error: %w", err)
	}
	return out, total, unread, nil
}

// MarkRead flags a single notification of the recipient as read.
func (p *Postgres) MarkRead(ctx context.Context, id, recipient string) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id=$1 AND recipient=$2`, id, recipient)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the recipient as read.
func (p *Postgres) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	res, err := p.DB.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE recipient=$1 AND NOT read`, recipient)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *Postgres) DeleteNotification(ctx context.Context, id, recipient string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM notifications WHERE id=$1 AND recipient=$2`, id, recipient)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteExpiredNotifications removes records whose expiry has passed.
func (p *Postgres) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int, error) {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
