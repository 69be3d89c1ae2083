package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type capacityDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps entries in the daily_capacity table.
type PostgresStore struct {
	db capacityDB
}

// NewPostgresStore creates a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("capacity: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

// NewPostgresStoreWithDB allows injecting a mock database for testing.
func NewPostgresStoreWithDB(db capacityDB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (int, error) {
	var capacity int
	err := s.db.QueryRow(ctx, `SELECT capacity FROM daily_capacity WHERE day_key = $1`, key).Scan(&capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("capacity: select %s: %w", key, err)
	}
	return capacity, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, capacity int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO daily_capacity (day_key, capacity, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (day_key) DO UPDATE SET capacity = EXCLUDED.capacity, updated_at = now()
	`, key, capacity)
	if err != nil {
		return fmt.Errorf("capacity: upsert %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM daily_capacity WHERE day_key = $1`, key)
	if err != nil {
		return fmt.Errorf("capacity: delete %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT day_key, capacity FROM daily_capacity`)
	if err != nil {
		return nil, fmt.Errorf("capacity: list: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Capacity); err != nil {
			return nil, fmt.Errorf("capacity: scan: %w", err)
		}
		e.Kind = kindOf(e.Key)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("capacity: list rows: %w", err)
	}
	return out, nil
}
