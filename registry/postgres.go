package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/klejdi94/quill/core"
)

// PostgresStore keeps flows as JSONB documents in PostgreSQL.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore creates a store. table defaults to "flows". If createTable is true, the table is created.
func NewPostgresStore(ctx context.Context, db *sql.DB, table string, createTable bool) (*PostgresStore, error) {
	if table == "" {
		table = "flows"
	}
	s := &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
	if createTable {
		if err := s.createTable(ctx); err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
	}
	return s, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		name VARCHAR(255) PRIMARY KEY,
		category VARCHAR(64),
		document JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, q)
	return err
}

// Put inserts or replaces a flow.
func (s *PostgresStore) Put(ctx context.Context, flow *core.Flow) error {
	if flow == nil {
		return fmt.Errorf("postgres store: flow is nil")
	}
	if err := flow.Check(); err != nil {
		return fmt.Errorf("postgres store: %w: %w", ErrInvalidFlow, err)
	}
	doc, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("postgres store encode: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO ` + s.table + ` (name, category, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name) DO UPDATE SET
			category = EXCLUDED.category, document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`
	_, err = s.db.ExecContext(ctx, q, flow.Name, flow.Category, string(doc), now)
	return err
}

// Delete removes a flow.
func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE name = $1`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &core.UnknownFlowError{Name: name}
	}
	return nil
}

// Load returns all flows sorted by name.
func (s *PostgresStore) Load(ctx context.Context) ([]*core.Flow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, document FROM `+s.table+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*core.Flow
	for rows.Next() {
		var name string
		var doc []byte
		if err := rows.Scan(&name, &doc); err != nil {
			return nil, err
		}
		var f core.Flow
		if err := json.Unmarshal(doc, &f); err != nil {
			return nil, fmt.Errorf("postgres store decode %s: %w", name, err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
