package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/tripwatch/internal/apperr"
	"github.com/starford/tripwatch/internal/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlWriter struct {
	q   queryer
	now func() time.Time
}

func (w sqlWriter) Insert(ctx context.Context, link, displayText string) error {
	now := w.now()
	_, err := w.q.ExecContext(ctx,
		`INSERT INTO known_trips (link, display_text, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		link, displayText, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("store: insert %s: %w", link, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("store: insert %s: %w", link, err)
	}
	return nil
}

func (w sqlWriter) Update(ctx context.Context, link, displayText string) error {
	res, err := w.q.ExecContext(ctx,
		`UPDATE known_trips SET display_text = ?, updated_at = ? WHERE link = ?`,
		displayText, w.now(), link)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", link, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update %s: rows affected: %w", link, err)
	}
	if n == 0 {
		return fmt.Errorf("store: update %s: %w", link, apperr.ErrNotFound)
	}
	return nil
}

func (s *SQL) writer(q queryer) sqlWriter {
	return sqlWriter{q: q, now: func() time.Time { return time.Now().UTC() }}
}

// Lookup returns the stored entry for link, if any.
func (s *SQL) Lookup(ctx context.Context, link string) (models.KnownTrip, bool, error) {
	var kt models.KnownTrip
	err := s.conn.QueryRowContext(ctx,
		`SELECT link, display_text, created_at, updated_at FROM known_trips WHERE link = ?`, link,
	).Scan(&kt.Link, &kt.DisplayText, &kt.CreatedAt, &kt.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.KnownTrip{}, false, nil
	}
	if err != nil {
		return models.KnownTrip{}, false, fmt.Errorf("store: lookup %s: %w", link, err)
	}
	return kt, true, nil
}

// Insert creates a known trip outside of any transaction.
func (s *SQL) Insert(ctx context.Context, link, displayText string) error {
	return s.writer(s.conn).Insert(ctx, link, displayText)
}

// Update overwrites a known trip outside of any transaction.
func (s *SQL) Update(ctx context.Context, link, displayText string) error {
	return s.writer(s.conn).Update(ctx, link, displayText)
}

// WithTx runs fn in a single transaction. Any error from fn rolls back every
// write fn made.
func (s *SQL) WithTx(ctx context.Context, fn func(Writer) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(s.writer(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// List returns known trips, most recently changed first, and the total count.
func (s *SQL) List(ctx context.Context, limit, offset int) ([]models.KnownTrip, int, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM known_trips`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT link, display_text, created_at, updated_at
		FROM known_trips
		ORDER BY updated_at DESC, link
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []models.KnownTrip
	for rows.Next() {
		var kt models.KnownTrip
		if err := rows.Scan(&kt.Link, &kt.DisplayText, &kt.CreatedAt, &kt.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, kt)
	}
	return out, total, rows.Err()
}
