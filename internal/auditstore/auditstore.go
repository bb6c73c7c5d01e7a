// Package auditstore is an optional durable sink for parser-registry and
// circuit-breaker state transitions, adapted from this codebase's Supabase
// CRUD client down to raw database/sql + lib/pq: same generic insert/query
// shape (InsertRow/QueryRows), applied to two fixed tables instead of the
// teacher's open table-name parameter.
package auditstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ParserEvent records a parser registration, replacement, or enable/disable
// toggle, or (as cmd/ingestd writes it) one record dispatched by a parser.
type ParserEvent struct {
	ParserID  string
	Action    string // registered, replaced, enabled, disabled, dispatched
	Detail    string
	Timestamp time.Time
}

// BreakerEvent records a circuit breaker state transition.
type BreakerEvent struct {
	BreakerName string
	FromState   string
	ToState     string
	Timestamp   time.Time
}

// Store is a thin wrapper over *sql.DB scoped to the two audit tables this
// core writes to. A nil Store is valid and every method becomes a no-op,
// so callers can wire it unconditionally and let config.Postgres.Enabled
// decide whether it actually does anything.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and ensures the audit tables exist.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditstore: ping: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS parser_audit_log (
			id BIGSERIAL PRIMARY KEY,
			parser_id TEXT NOT NULL,
			action TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS breaker_audit_log (
			id BIGSERIAL PRIMARY KEY,
			breaker_name TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("auditstore: migrate: %w", err)
		}
	}
	return nil
}

// RecordParserEvent inserts a parser-registry audit row.
func (s *Store) RecordParserEvent(ctx context.Context, ev ParserEvent) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parser_audit_log (parser_id, action, detail) VALUES ($1, $2, $3)`,
		ev.ParserID, ev.Action, ev.Detail)
	if err != nil {
		return fmt.Errorf("auditstore: record parser event: %w", err)
	}
	return nil
}

// RecordBreakerEvent inserts a circuit-breaker audit row.
func (s *Store) RecordBreakerEvent(ctx context.Context, ev BreakerEvent) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO breaker_audit_log (breaker_name, from_state, to_state) VALUES ($1, $2, $3)`,
		ev.BreakerName, ev.FromState, ev.ToState)
	if err != nil {
		return fmt.Errorf("auditstore: record breaker event: %w", err)
	}
	return nil
}

// RecentParserEvents returns the most recent parser audit rows, newest first.
func (s *Store) RecentParserEvents(ctx context.Context, limit int) ([]ParserEvent, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT parser_id, action, detail, created_at FROM parser_audit_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("auditstore: query parser events: %w", err)
	}
	defer rows.Close()

	var out []ParserEvent
	for rows.Next() {
		var ev ParserEvent
		var detail sql.NullString
		if err := rows.Scan(&ev.ParserID, &ev.Action, &detail, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("auditstore: scan parser event: %w", err)
		}
		ev.Detail = detail.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecentBreakerEvents returns the most recent breaker audit rows, newest first.
func (s *Store) RecentBreakerEvents(ctx context.Context, limit int) ([]BreakerEvent, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT breaker_name, from_state, to_state, created_at FROM breaker_audit_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("auditstore: query breaker events: %w", err)
	}
	defer rows.Close()

	var out []BreakerEvent
	for rows.Next() {
		var ev BreakerEvent
		if err := rows.Scan(&ev.BreakerName, &ev.FromState, &ev.ToState, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("auditstore: scan breaker event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
