package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/patrickwarner/nest/internal/models"
)

const userColumns = `id, name, email, role, pref_app, pref_email, pref_push, pref_sms,
    fcm_token, is_online, last_seen, created_at`

func scanUser(s rowScanner) (*models.User, error) {
	var u models.User
	var lastSeen sql.NullTime
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &u.Role,
		&u.Preferences.App, &u.Preferences.Email, &u.Preferences.Push, &u.Preferences.SMS,
		&u.FCMToken, &u.IsOnline, &lastSeen, &u.CreatedAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		u.LastSeen = &t
	}
	return &u, nil
}

// UpsertUser inserts the user mirror or refreshes its profile fields.
func (p *Postgres) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	role := u.Role
	if role == "" {
		role = models.RoleResident
	}
	row := p.DB.QueryRowContext(ctx, `INSERT INTO users (id, name, email, role, pref_app, pref_email, pref_push, pref_sms, fcm_token)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (id) DO UPDATE SET
            name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
            email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
            fcm_token = COALESCE(NULLIF(EXCLUDED.fcm_token, ''), users.fcm_token)
        RETURNING `+userColumns,
		u.ID, u.Name, u.Email, role,
		u.Preferences.App, u.Preferences.Email, u.Preferences.Push, u.Preferences.SMS, u.FCMToken)
	out, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return out, nil
}

// GetUser loads a user by id.
func (p *Postgres) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(p.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (p *Postgres) queryUsers(ctx context.Context, q string, args ...any) ([]*models.User, error) {
	rows, err := p.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// GetUsers loads the users with the given ids, keyed by id. Missing ids are
// simply absent from the result.
func (p *Postgres) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := p.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// UsersByRole lists users holding one of roles.
func (p *Postgres) UsersByRole(ctx context.Context, roles []models.Role, appEnabledOnly bool) ([]*models.User, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return p.queryUsers(ctx, `SELECT `+userColumns+` FROM users
        WHERE role = ANY($1) AND (pref_app OR NOT $2)
        ORDER BY id`, pq.Array(names), appEnabledOnly)
}

// SetPresence records the user's online flag, stamping last_seen when they go offline.
func (p *Postgres) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE users
        SET is_online = $2, last_seen = CASE WHEN $2 THEN last_seen ELSE $3 END
        WHERE id=$1`, id, online, at)
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}
