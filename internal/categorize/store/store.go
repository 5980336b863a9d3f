package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/categorize"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectRuleColumns = `id, raw_pattern, preferred_description, category, created_at`

func (s *Store) FindMatch(ctx context.Context, rawDescription string) (*categorize.Rule, error) {
	query := `
		SELECT ` + selectRuleColumns + `
		FROM category_rules
		WHERE $1 ILIKE '%' || raw_pattern || '%'
		ORDER BY LENGTH(raw_pattern) DESC, created_at DESC
		LIMIT 1
	`

	var r categorize.Rule

	err := s.db.QueryRowContext(ctx, query, rawDescription).
		Scan(&r.ID, &r.RawPattern, &r.PreferredDescription, &r.Category, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("finding match: %w", err)
	}

	return &r, nil
}

func (s *Store) CreateRule(ctx context.Context, r *categorize.Rule) error {
	query := `
		INSERT INTO category_rules (raw_pattern, preferred_description, category, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query, r.RawPattern, r.PreferredDescription, r.Category).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating rule: %w", err)
	}

	return nil
}

func (s *Store) ListRules(ctx context.Context) ([]*categorize.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectRuleColumns+` FROM category_rules ORDER BY raw_pattern`)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var rules []*categorize.Rule

	for rows.Next() {
		var r categorize.Rule
		if err := rows.Scan(&r.ID, &r.RawPattern, &r.PreferredDescription, &r.Category, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}

		rules = append(rules, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}

	return rules, nil
}

func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}

	if n == 0 {
		return categorize.ErrNotFound
	}

	return nil
}
