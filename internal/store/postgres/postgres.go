// Package postgres is the pgx-backed storage backend. With the pgvector
// extension installed it serves native vector search; with pg_trgm it serves
// the trigram tier; bare Postgres still works on the lexical fallback.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/store"
)

// querier is the subset of pgx shared by a pool and a transaction, so every
// store runs unchanged inside InTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Provider struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Provider, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Provider{pool: pool}, nil
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
	return storesFor(p.pool)
}

// InTx runs fn in one database transaction, retrying serialization failures.
func (p *Provider) InTx(ctx context.Context, fn func(domain.Stores) error) error {
	return withRetry(ctx, func() error {
		return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			return fn(storesFor(tx))
		})
	})
}

// Capabilities probes the installed extensions once per call; the strategy
// selector caches the verdict.
func (p *Provider) Capabilities(ctx context.Context) (domain.Capabilities, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT extname FROM pg_extension WHERE extname IN ('vector', 'pg_trgm')`)
	if err != nil {
		return domain.Capabilities{}, err
	}
	defer rows.Close()

	var caps domain.Capabilities
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return domain.Capabilities{}, err
		}
		switch name {
		case "vector":
			caps.Vector = true
		case "pg_trgm":
			caps.Trigram = true
		}
	}
	return caps, rows.Err()
}

func (p *Provider) Close() error {
	p.pool.Close()
	return nil
}

// Migrate creates the schema. The vector and trigram extensions are attempted
// but optional; embeddings live in a plain float4[] column and are cast to
// vector at query time, so the schema is identical either way.
func (p *Provider) Migrate(ctx context.Context) error {
	// Extension creation needs privileges the role may not have.
	_, _ = p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	_, _ = p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id              TEXT PRIMARY KEY,
			agent_id        TEXT NOT NULL,
			content         TEXT NOT NULL,
			category        JSONB NOT NULL DEFAULT '{}',
			metadata        JSONB NOT NULL DEFAULT '{}',
			embedding       FLOAT4[],
			created_at      TIMESTAMPTZ NOT NULL,
			last_accessed   TIMESTAMPTZ NOT NULL,
			relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			version         BIGINT NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_agent_created
			ON memories (agent_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_category
			ON memories ((category->>'primary'))`,

		`CREATE TABLE IF NOT EXISTS beliefs (
			id                   TEXT PRIMARY KEY,
			agent_id             TEXT NOT NULL,
			statement            TEXT NOT NULL,
			normalized_statement TEXT NOT NULL,
			confidence           DOUBLE PRECISION NOT NULL,
			category             TEXT NOT NULL DEFAULT '',
			tags                 TEXT[],
			evidence_memory_ids  TEXT[],
			reinforcement_count  INTEGER NOT NULL DEFAULT 0,
			active               BOOLEAN NOT NULL DEFAULT TRUE,
			created_at           TIMESTAMPTZ NOT NULL,
			last_updated         TIMESTAMPTZ NOT NULL,
			version              BIGINT NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_beliefs_agent_active
			ON beliefs (agent_id) WHERE active`,
		`CREATE INDEX IF NOT EXISTS idx_beliefs_normalized
			ON beliefs (agent_id, normalized_statement)`,

		`CREATE TABLE IF NOT EXISTS belief_conflicts (
			id                     TEXT PRIMARY KEY,
			agent_id               TEXT NOT NULL,
			belief_ids             TEXT[] NOT NULL,
			new_evidence_memory_id TEXT NOT NULL DEFAULT '',
			description            TEXT NOT NULL DEFAULT '',
			conflict_type          TEXT NOT NULL,
			severity               TEXT NOT NULL,
			detected_at            TIMESTAMPTZ NOT NULL,
			resolved               BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at            TIMESTAMPTZ,
			resolution_strategy    TEXT NOT NULL DEFAULT '',
			auto_resolvable        BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conflicts_agent
			ON belief_conflicts (agent_id, resolved)`,

		`CREATE TABLE IF NOT EXISTS belief_relationships (
			id                 TEXT PRIMARY KEY,
			agent_id           TEXT NOT NULL,
			source_belief_id   TEXT NOT NULL,
			target_belief_id   TEXT NOT NULL,
			type               TEXT NOT NULL,
			strength           DOUBLE PRECISION NOT NULL,
			priority           INTEGER NOT NULL DEFAULT 0,
			effective_from     TIMESTAMPTZ,
			effective_until    TIMESTAMPTZ,
			deprecation_reason TEXT NOT NULL DEFAULT '',
			metadata           JSONB NOT NULL DEFAULT '{}',
			active             BOOLEAN NOT NULL DEFAULT TRUE,
			created_at         TIMESTAMPTZ NOT NULL,
			last_updated       TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_active_unique
			ON belief_relationships (agent_id, source_belief_id, target_belief_id, type)
			WHERE active`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_source
			ON belief_relationships (source_belief_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_target
			ON belief_relationships (target_belief_id)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	caps, err := p.Capabilities(ctx)
	if err != nil {
		return err
	}
	if caps.Trigram {
		if _, err := p.pool.Exec(ctx,
			`CREATE INDEX IF NOT EXISTS idx_memories_content_trgm
				ON memories USING gin (content gin_trgm_ops)`); err != nil {
			return fmt.Errorf("migrate trigram index: %w", err)
		}
	}
	return nil
}

// mapError translates driver errors into the store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" &&
		pgErr.ConstraintName == "idx_relationships_active_unique" {
		return store.ErrDuplicateActiveEdge
	}
	return err
}
