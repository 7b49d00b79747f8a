package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-resources/pkg/resources"
)

// Schema creates the aggregate table. One row holds the whole tree.
const Schema = `
CREATE TABLE IF NOT EXISTS resource_tree (
	id         BIGSERIAL PRIMARY KEY,
	root       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// DBTX is an interface that allows us to use either a connection pool or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements resources.TreeRepository using PostgreSQL
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// EnsureSchema creates the aggregate table if it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) LoadTree(ctx context.Context) (*resources.Node, error) {
	query := `SELECT root FROM resource_tree ORDER BY id DESC LIMIT 1`

	var raw []byte
	err := r.db.QueryRow(ctx, query).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resources.ErrNotFound
	}
	if err != nil {
		return nil, r.handlePostgresError("load tree", err)
	}

	var root resources.Node
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("failed to decode resource tree: %w", err)
	}
	return &root, nil
}

// ReplaceTree deletes the previous aggregate and inserts root in one transaction
func (r *Repository) ReplaceTree(ctx context.Context, root *resources.Node) error {
	raw, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to encode resource tree: %w", err)
	}

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM resource_tree`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO resource_tree (root, updated_at) VALUES ($1, now())`, raw)
		return err
	})
	if err != nil {
		return r.handlePostgresError("replace tree", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if r.pool != nil {
		return r.pool.Ping(ctx)
	}
	var one int
	return r.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}
