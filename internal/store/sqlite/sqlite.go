// Package sqlite is the embedded single-node backend. It has no vector
// index, so memory search runs on the trigram tier; embeddings are still
// persisted as float32 blobs so a later move to Postgres keeps them.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	sqlite3 "modernc.org/sqlite"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/store"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Provider struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-process database, which the tests use.
func Open(ctx context.Context, path string) (*Provider, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// from evaporating between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	p := &Provider{db: db}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func storesFor(db querier) domain.Stores {
	return domain.Stores{
		Memories:      &MemoryStore{db: db},
		Beliefs:       &BeliefStore{db: db},
		Conflicts:     &ConflictStore{db: db},
		Relationships: &RelationshipStore{db: db},
	}
}

func (p *Provider) Stores() domain.Stores {
	return storesFor(p.db)
}

func (p *Provider) InTx(ctx context.Context, fn func(domain.Stores) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(storesFor(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Capabilities reports the trigram tier: keyword prefiltering works through
// the content index, native vector search does not exist here.
func (p *Provider) Capabilities(ctx context.Context) (domain.Capabilities, error) {
	return domain.Capabilities{Trigram: true}, nil
}

func (p *Provider) Close() error {
	return p.db.Close()
}

func (p *Provider) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id              TEXT PRIMARY KEY,
			agent_id        TEXT NOT NULL,
			content         TEXT NOT NULL,
			category        TEXT NOT NULL DEFAULT '{}',
			metadata        TEXT NOT NULL DEFAULT '{}',
			embedding       BLOB,
			created_at      INTEGER NOT NULL,
			last_accessed   INTEGER NOT NULL,
			relevance_score REAL NOT NULL DEFAULT 0.5,
			version         INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_agent_created
			ON memories (agent_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS beliefs (
			id                   TEXT PRIMARY KEY,
			agent_id             TEXT NOT NULL,
			statement            TEXT NOT NULL,
			normalized_statement TEXT NOT NULL,
			confidence           REAL NOT NULL,
			category             TEXT NOT NULL DEFAULT '',
			tags                 TEXT,
			evidence_memory_ids  TEXT,
			reinforcement_count  INTEGER NOT NULL DEFAULT 0,
			active               INTEGER NOT NULL DEFAULT 1,
			created_at           INTEGER NOT NULL,
			last_updated         INTEGER NOT NULL,
			version              INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_beliefs_agent
			ON beliefs (agent_id, active)`,
		`CREATE INDEX IF NOT EXISTS idx_beliefs_normalized
			ON beliefs (agent_id, normalized_statement)`,

		`CREATE TABLE IF NOT EXISTS belief_conflicts (
			id                     TEXT PRIMARY KEY,
			agent_id               TEXT NOT NULL,
			belief_ids             TEXT NOT NULL,
			new_evidence_memory_id TEXT NOT NULL DEFAULT '',
			description            TEXT NOT NULL DEFAULT '',
			conflict_type          TEXT NOT NULL,
			severity               TEXT NOT NULL,
			detected_at            INTEGER NOT NULL,
			resolved               INTEGER NOT NULL DEFAULT 0,
			resolved_at            INTEGER,
			resolution_strategy    TEXT NOT NULL DEFAULT '',
			auto_resolvable        INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conflicts_agent
			ON belief_conflicts (agent_id, resolved)`,

		`CREATE TABLE IF NOT EXISTS belief_relationships (
			id                 TEXT PRIMARY KEY,
			agent_id           TEXT NOT NULL,
			source_belief_id   TEXT NOT NULL,
			target_belief_id   TEXT NOT NULL,
			type               TEXT NOT NULL,
			strength           REAL NOT NULL,
			priority           INTEGER NOT NULL DEFAULT 0,
			effective_from     INTEGER,
			effective_until    INTEGER,
			deprecation_reason TEXT NOT NULL DEFAULT '',
			metadata           TEXT NOT NULL DEFAULT '{}',
			active             INTEGER NOT NULL DEFAULT 1,
			created_at         INTEGER NOT NULL,
			last_updated       INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_active_unique
			ON belief_relationships (agent_id, source_belief_id, target_belief_id, type)
			WHERE active = 1`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_source
			ON belief_relationships (source_belief_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_target
			ON belief_relationships (target_belief_id)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// sqliteUniqueConstraint is SQLITE_CONSTRAINT_UNIQUE; primary-key violations
// report a different extended code, so this only fires for the active-edge
// index.
const sqliteUniqueConstraint = 2067

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var se *sqlite3.Error
	if errors.As(err, &se) && se.Code() == sqliteUniqueConstraint {
		return store.ErrDuplicateActiveEdge
	}
	return err
}

// Timestamps are stored as UTC unix nanoseconds so ordering is a plain
// integer comparison.

func encodeTime(t time.Time) int64 { return t.UnixNano() }

func decodeTime(n int64) time.Time { return time.Unix(0, n).UTC() }

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func decodeTimePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := decodeTime(n.Int64)
	return &t
}

// Embeddings are little-endian float32 blobs, 4 bytes per component.

func encodeVector(v []float32) any {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if buf == nil {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func encodeJSON(v any) (string, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(buf), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
