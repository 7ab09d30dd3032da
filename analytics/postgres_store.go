package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const defaultTableName = "flow_runs"

// groupColumns maps Query.GroupBy to the SQL expression producing the key.
var groupColumns = map[string]string{
	"flow":  "flow",
	"model": "model",
	"stage": "stage",
	"error": "COALESCE(NULLIF(error_kind, ''), 'none')",
	"day":   "to_char(at AT TIME ZONE 'UTC', 'YYYY-MM-DD')",
	"hour":  "to_char(at AT TIME ZONE 'UTC', 'YYYY-MM-DD\"T\"HH24')",
}

// PostgresStore keeps run records in a PostgreSQL table and aggregates in SQL.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore opens a store on db (driver "postgres") and creates the
// table and its indexes when missing.
func NewPostgresStore(ctx context.Context, db *sql.DB, table string) (*PostgresStore, error) {
	if table == "" {
		table = defaultTableName
	}
	s := &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
	if err := s.migrate(ctx, table); err != nil {
		return nil, fmt.Errorf("analytics migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context, raw string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id            BIGSERIAL PRIMARY KEY,
			request_id    TEXT        NOT NULL,
			flow          TEXT        NOT NULL,
			model         TEXT        NOT NULL DEFAULT '',
			stage         TEXT        NOT NULL,
			error_kind    TEXT        NOT NULL DEFAULT '',
			latency_ms    BIGINT      NOT NULL DEFAULT 0,
			input_tokens  INT         NOT NULL DEFAULT 0,
			output_tokens INT         NOT NULL DEFAULT 0,
			success       BOOLEAN     NOT NULL DEFAULT false,
			at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(raw+"_flow_at") + ` ON ` + s.table + ` (flow, at)`,
		`CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(raw+"_at") + ` ON ` + s.table + ` (at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record implements Store.
func (s *PostgresStore) Record(ctx context.Context, r RunRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+`
			(request_id, flow, model, stage, error_kind, latency_ms, input_tokens, output_tokens, success, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.RequestID, r.Flow, r.Model, r.Stage, r.ErrorKind, r.LatencyMs, r.InputTokens, r.OutputTokens, r.Success, r.At.UTC())
	if err != nil {
		return fmt.Errorf("analytics record: %w", err)
	}
	return nil
}

// where accumulates SQL conditions with positional arguments.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(w.conds, " AND ")
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Aggregate, error) {
	var w where
	if q.Flow != "" {
		w.add("flow = $%d", q.Flow)
	}
	if q.Model != "" {
		w.add("model = $%d", q.Model)
	}
	if !q.From.IsZero() {
		w.add("at >= $%d", q.From.UTC())
	}
	if !q.To.IsZero() {
		w.add("at <= $%d", q.To.UTC())
	}
	key, ok := groupColumns[q.GroupBy]
	if !ok {
		key = "'all'"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args := append(w.args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+key+` AS key,
			COUNT(*)::bigint,
			COUNT(*) FILTER (WHERE success)::bigint,
			COALESCE(AVG(latency_ms) FILTER (WHERE success), 0)::float8,
			COALESCE(SUM(input_tokens), 0)::bigint,
			COALESCE(SUM(output_tokens), 0)::bigint
		FROM `+s.table+`
		WHERE `+w.String()+`
		GROUP BY 1
		ORDER BY 2 DESC, 1
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("analytics query: %w", err)
	}
	defer rows.Close()
	var out []Aggregate
	for rows.Next() {
		var a Aggregate
		var k sql.NullString
		if err := rows.Scan(&k, &a.Runs, &a.SuccessCount, &a.AvgLatencyMs, &a.TotalInputTokens, &a.TotalOutputTokens); err != nil {
			return nil, err
		}
		a.Key = k.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes records older than before and returns how many were removed.
func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("analytics prune: %w", err)
	}
	return res.RowsAffected()
}
