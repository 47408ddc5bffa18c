// Package users keeps the persistent user-activity log: one row per Telegram
// user, upserted on every inbound message.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// User is one activity record.
type User struct {
	UserID     int64     `json:"userId"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	LastActive time.Time `json:"lastActive"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// Service provides user-activity persistence.
type Service struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		logger: log.With(slog.String("service", "users")),
		pool:   pool,
	}
}

// EnsureSchema creates the users table when absent. The schema is a single
// table, so startup DDL stands in for a migration tool.
func (s *Service) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
    user_id     BIGINT PRIMARY KEY,
    first_name  TEXT NOT NULL DEFAULT '',
    last_name   TEXT NOT NULL DEFAULT '',
    last_active TIMESTAMPTZ NOT NULL DEFAULT now(),
    joined_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

// Touch upserts the user's record and stamps last_active. joined_at is set
// once on first contact and never changes afterwards.
func (s *Service) Touch(ctx context.Context, userID int64, firstName, lastName string) error {
	const query = `
INSERT INTO users (user_id, first_name, last_name, last_active)
VALUES ($1, $2, $3, now())
ON CONFLICT (user_id) DO UPDATE
SET first_name = EXCLUDED.first_name,
    last_name  = EXCLUDED.last_name,
    last_active = now()`
	if _, err := s.pool.Exec(ctx, query, userID, firstName, lastName); err != nil {
		return fmt.Errorf("touch user %d: %w", userID, err)
	}
	return nil
}

// List returns all users, newest joiners first.
func (s *Service) List(ctx context.Context) ([]User, error) {
	const query = `
SELECT user_id, first_name, last_name, last_active, joined_at
FROM users
ORDER BY joined_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.FirstName, &u.LastName, &u.LastActive, &u.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return result, nil
}
