package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/notification"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateNotifications(ctx context.Context, ns []*notification.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO notifications (member_id, type, title, message, link, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`

	for _, n := range ns {
		err := dbTx.QueryRowContext(ctx, query,
			n.MemberID,
			n.Type,
			n.Title,
			n.Message,
			n.Link,
		).Scan(&n.ID, &n.CreatedAt)
		if err != nil {
			return fmt.Errorf("creating notification: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) ListNotifications(ctx context.Context, memberID uuid.UUID, unreadOnly bool) ([]*notification.Notification, error) {
	query := `
		SELECT id, member_id, type, title, message, link, read, created_at
		FROM notifications
		WHERE member_id = $1`
	if unreadOnly {
		query += ` AND NOT read`
	}

	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := s.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var ns []*notification.Notification

	for rows.Next() {
		var (
			n   notification.Notification
			typ string
		)

		if err := rows.Scan(&n.ID, &n.MemberID, &typ, &n.Title, &n.Message, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}

		n.Type = notification.Type(typ)
		ns = append(ns, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}

	return ns, nil
}

func (s *Store) MarkRead(ctx context.Context, id, memberID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND member_id = $2`, id, memberID)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}

	if n == 0 {
		return notification.ErrNotFound
	}

	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, memberID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE member_id = $1 AND NOT read`, memberID)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}

	return res.RowsAffected()
}
