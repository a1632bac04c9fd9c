package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/doxa-ai/doxa/internal/domain"
	"github.com/doxa-ai/doxa/internal/store"
)

const memoryColumns = `id, agent_id, content, category, metadata, embedding,
	created_at, last_accessed, relevance_score, version`

type MemoryStore struct {
	db querier
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMemory(row scannable) (*domain.MemoryRecord, error) {
	var (
		rec      domain.MemoryRecord
		category []byte
		metadata []byte
	)
	err := row.Scan(&rec.ID, &rec.AgentID, &rec.Content, &category, &metadata,
		&rec.Embedding, &rec.CreatedAt, &rec.LastAccessed, &rec.RelevanceScore, &rec.Version)
	if err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal(category, &rec.Category); err != nil {
		return nil, fmt.Errorf("decode category: %w", err)
	}
	if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &rec, nil
}

func memoryArgs(rec *domain.MemoryRecord) ([]any, error) {
	category, err := json.Marshal(rec.Category)
	if err != nil {
		return nil, fmt.Errorf("encode category: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return []any{rec.ID, rec.AgentID, rec.Content, category, metadata, rec.Embedding,
		rec.CreatedAt, rec.LastAccessed, rec.RelevanceScore, rec.Version}, nil
}

func (s *MemoryStore) Store(ctx context.Context, rec *domain.MemoryRecord) error {
	return s.StoreMany(ctx, []*domain.MemoryRecord{rec})
}

// StoreMany writes the chunk as a single multi-row upsert, so the chunk is
// atomic even outside an explicit transaction.
func (s *MemoryStore) StoreMany(ctx context.Context, recs []*domain.MemoryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	args := make([]any, 0, len(recs)*10)
	tuples := make([]string, 0, len(recs))
	for _, rec := range recs {
		vals, err := memoryArgs(rec)
		if err != nil {
			return err
		}
		base := len(args)
		tuples = append(tuples, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))
		args = append(args, vals...)
	}
	query := fmt.Sprintf(`
		INSERT INTO memories (%s)
		VALUES %s
		ON CONFLICT (id) DO UPDATE SET
			agent_id = EXCLUDED.agent_id,
			content = EXCLUDED.content,
			category = EXCLUDED.category,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at,
			last_accessed = EXCLUDED.last_accessed,
			relevance_score = EXCLUDED.relevance_score,
			version = EXCLUDED.version`,
		memoryColumns, strings.Join(tuples, ", "))
	_, err := s.db.Exec(ctx, query, args...)
	return mapError(err)
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.MemoryRecord, error) {
	row := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM memories WHERE id = $1`, memoryColumns), id)
	return scanMemory(row)
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []string) (map[string]domain.MemoryRecord, error) {
	if len(ids) == 0 {
		return map[string]domain.MemoryRecord{}, nil
	}
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM memories WHERE id = ANY($1)`, memoryColumns), ids)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[string]domain.MemoryRecord, len(ids))
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out[rec.ID] = *rec
	}
	return out, rows.Err()
}

// Update is a compare-and-swap on version. The caller's record carries the
// version it read; on success the store bumps both sides.
func (s *MemoryStore) Update(ctx context.Context, rec *domain.MemoryRecord) error {
	category, err := json.Marshal(rec.Category)
	if err != nil {
		return fmt.Errorf("encode category: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE memories SET
			agent_id = $1, content = $2, category = $3, metadata = $4,
			embedding = $5, created_at = $6, last_accessed = $7,
			relevance_score = $8, version = version + 1
		WHERE id = $9 AND version = $10`,
		rec.AgentID, rec.Content, category, metadata, rec.Embedding,
		rec.CreatedAt, rec.LastAccessed, rec.RelevanceScore, rec.ID, rec.Version)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM memories WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
			return mapError(err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	rec.Version++
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *MemoryStore) RemoveMany(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`DELETE FROM memories WHERE id = ANY($1) RETURNING id`, ids)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	removed := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		removed = append(removed, id)
	}
	return removed, rows.Err()
}

func (s *MemoryStore) ForAgent(ctx context.Context, agentID string, limit int) ([]domain.MemoryRecord, error) {
	return s.query(ctx, []string{"agent_id = $1"}, []any{agentID}, limit)
}

func (s *MemoryStore) InCategory(ctx context.Context, category, agentID string, limit int) ([]domain.MemoryRecord, error) {
	conditions := []string{`(category->>'primary' = $1 OR category->>'secondary' = $1)`}
	args := []any{category}
	if agentID != "" {
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", len(args)+1))
		args = append(args, agentID)
	}
	return s.query(ctx, conditions, args, limit)
}

func (s *MemoryStore) OlderThan(ctx context.Context, cutoff time.Time, agentID string, limit int) ([]domain.MemoryRecord, error) {
	conditions := []string{"created_at <= $1"}
	args := []any{cutoff}
	if agentID != "" {
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", len(args)+1))
		args = append(args, agentID)
	}
	return s.query(ctx, conditions, args, limit)
}

func (s *MemoryStore) RecordAccess(ctx context.Context, id string, at time.Time, relevance float64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE memories SET
			last_accessed = $2,
			relevance_score = $3,
			metadata = jsonb_set(metadata, '{access_count}',
				to_jsonb(COALESCE((metadata->>'access_count')::bigint, 0) + 1))
		WHERE id = $1`, id, at, relevance)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SearchByVector runs native cosine k-NN through pgvector. The float4[]
// column is cast to vector at query time; rows whose embedding dimension does
// not match the query are skipped rather than erroring the whole scan.
func (s *MemoryStore) SearchByVector(ctx context.Context, q domain.VectorQuery) ([]domain.MemoryMatch, error) {
	if len(q.Vector) == 0 {
		return nil, domain.ErrUnsupported
	}
	vec := pgvector.NewVector(q.Vector)
	conditions := []string{
		"agent_id = $1",
		"embedding IS NOT NULL",
		fmt.Sprintf("cardinality(embedding) = %d", len(q.Vector)),
	}
	args := []any{q.AgentID, vec}
	if q.Threshold > 0 {
		conditions = append(conditions,
			fmt.Sprintf("1 - (embedding::vector <=> $2::vector) >= $%d", len(args)+1))
		args = append(args, q.Threshold)
	}
	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding::vector <=> $2::vector) AS score
		FROM memories
		WHERE %s
		ORDER BY embedding::vector <=> $2::vector, id`,
		memoryColumns, strings.Join(conditions, " AND "))
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	matches := make([]domain.MemoryMatch, 0)
	for rows.Next() {
		var (
			rec      domain.MemoryRecord
			category []byte
			metadata []byte
			score    float64
		)
		err := rows.Scan(&rec.ID, &rec.AgentID, &rec.Content, &category, &metadata,
			&rec.Embedding, &rec.CreatedAt, &rec.LastAccessed, &rec.RelevanceScore,
			&rec.Version, &score)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(category, &rec.Category); err != nil {
			return nil, fmt.Errorf("decode category: %w", err)
		}
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		matches = append(matches, domain.MemoryMatch{Memory: rec, Score: score})
	}
	return matches, rows.Err()
}

func (s *MemoryStore) KeywordCandidates(ctx context.Context, agentID string, keywords []string, limit int) ([]domain.MemoryRecord, error) {
	if len(keywords) == 0 {
		return []domain.MemoryRecord{}, nil
	}
	patterns := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		patterns = append(patterns, "%"+kw+"%")
	}
	conditions := []string{"content ILIKE ANY($1)"}
	args := []any{patterns}
	if agentID != "" {
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", len(args)+1))
		args = append(args, agentID)
	}
	return s.query(ctx, conditions, args, limit)
}

func (s *MemoryStore) Candidates(ctx context.Context, agentID string, limit int) ([]domain.MemoryRecord, error) {
	return s.ForAgent(ctx, agentID, limit)
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, mapError(err)
}

func (s *MemoryStore) CountByAgent(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, `SELECT agent_id, COUNT(*) FROM memories GROUP BY agent_id`)
}

func (s *MemoryStore) CountByCategory(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx,
		`SELECT COALESCE(category->>'primary', ''), COUNT(*) FROM memories GROUP BY 1`)
}

func (s *MemoryStore) countBy(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

// query returns matching records ordered by createdAt desc. limit 0 means
// unbounded.
func (s *MemoryStore) query(ctx context.Context, conditions []string, args []any, limit int) ([]domain.MemoryRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY created_at DESC, id`,
		memoryColumns, strings.Join(conditions, " AND "))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]domain.MemoryRecord, 0)
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
