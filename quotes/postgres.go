package quotes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps quotes in the quotes table created by the db migrations.
type PostgresStore struct {
	DB *sql.DB
}

// NewPostgresStore returns a store using db.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

// Close is a no-op; the connection pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Add inserts q and sets its id.
func (s *PostgresStore) Add(ctx context.Context, q *Quote) error {
	row := s.DB.QueryRowContext(ctx,
		`INSERT INTO quotes (text, author, quoted_on, created_by, created_at) VALUES ($1,$2,$3,$4,NOW()) RETURNING id, created_at`,
		q.Text, q.Author, q.Date, q.CreatedBy)
	if err := row.Scan(&q.ID, &q.CreatedAt); err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

// Count returns the number of stored quotes.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quotes: %w", err)
	}
	return n, nil
}

// Random returns a uniformly chosen quote or ErrNoQuotes.
func (s *PostgresStore) Random(ctx context.Context) (Quote, error) {
	var q Quote
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, text, author, quoted_on, created_by, created_at FROM quotes ORDER BY random() LIMIT 1`).
		Scan(&q.ID, &q.Text, &q.Author, &q.Date, &q.CreatedBy, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Quote{}, ErrNoQuotes
	}
	if err != nil {
		return Quote{}, fmt.Errorf("random quote: %w", err)
	}
	return q, nil
}

// List returns every quote in id order.
func (s *PostgresStore) List(ctx context.Context) ([]Quote, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, text, author, quoted_on, created_by, created_at FROM quotes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()
	var out []Quote
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.ID, &q.Text, &q.Author, &q.Date, &q.CreatedBy, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
