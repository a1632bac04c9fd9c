package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

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
		rec          domain.MemoryRecord
		category     string
		metadata     string
		embedding    []byte
		createdAt    int64
		lastAccessed int64
	)
	err := row.Scan(&rec.ID, &rec.AgentID, &rec.Content, &category, &metadata,
		&embedding, &createdAt, &lastAccessed, &rec.RelevanceScore, &rec.Version)
	if err != nil {
		return nil, mapError(err)
	}
	if err := decodeJSON(category, &rec.Category); err != nil {
		return nil, err
	}
	if err := decodeJSON(metadata, &rec.Metadata); err != nil {
		return nil, err
	}
	rec.Embedding = decodeVector(embedding)
	rec.CreatedAt = decodeTime(createdAt)
	rec.LastAccessed = decodeTime(lastAccessed)
	return &rec, nil
}

func memoryArgs(rec *domain.MemoryRecord) ([]any, error) {
	category, err := encodeJSON(rec.Category)
	if err != nil {
		return nil, err
	}
	metadata, err := encodeJSON(rec.Metadata)
	if err != nil {
		return nil, err
	}
	return []any{rec.ID, rec.AgentID, rec.Content, category, metadata,
		encodeVector(rec.Embedding), encodeTime(rec.CreatedAt),
		encodeTime(rec.LastAccessed), rec.RelevanceScore, rec.Version}, nil
}

const memoryUpsert = `
	INSERT INTO memories (` + memoryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		agent_id = excluded.agent_id,
		content = excluded.content,
		category = excluded.category,
		metadata = excluded.metadata,
		embedding = excluded.embedding,
		created_at = excluded.created_at,
		last_accessed = excluded.last_accessed,
		relevance_score = excluded.relevance_score,
		version = excluded.version`

func (s *MemoryStore) Store(ctx context.Context, rec *domain.MemoryRecord) error {
	args, err := memoryArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, memoryUpsert, args...)
	return mapError(err)
}

// StoreMany relies on the provider's single writer connection; callers who
// need chunk atomicity run it inside InTx, which the memory service does.
func (s *MemoryStore) StoreMany(ctx context.Context, recs []*domain.MemoryRecord) error {
	for _, rec := range recs {
		if err := s.Store(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM memories WHERE id = ?`, memoryColumns), id)
	return scanMemory(row)
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []string) (map[string]domain.MemoryRecord, error) {
	if len(ids) == 0 {
		return map[string]domain.MemoryRecord{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE id IN (%s)`,
		memoryColumns, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
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

func (s *MemoryStore) Update(ctx context.Context, rec *domain.MemoryRecord) error {
	category, err := encodeJSON(rec.Category)
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(rec.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			agent_id = ?, content = ?, category = ?, metadata = ?, embedding = ?,
			created_at = ?, last_accessed = ?, relevance_score = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		rec.AgentID, rec.Content, category, metadata, encodeVector(rec.Embedding),
		encodeTime(rec.CreatedAt), encodeTime(rec.LastAccessed), rec.RelevanceScore,
		rec.ID, rec.Version)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM memories WHERE id = ?)`, rec.ID).Scan(&exists); err != nil {
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *MemoryStore) RemoveMany(ctx context.Context, ids []string) ([]string, error) {
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := s.Remove(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (s *MemoryStore) ForAgent(ctx context.Context, agentID string, limit int) ([]domain.MemoryRecord, error) {
	return s.query(ctx, []string{"agent_id = ?"}, []any{agentID}, limit)
}

func (s *MemoryStore) InCategory(ctx context.Context, category, agentID string, limit int) ([]domain.MemoryRecord, error) {
	conditions := []string{`(json_extract(category, '$.primary') = ? OR json_extract(category, '$.secondary') = ?)`}
	args := []any{category, category}
	if agentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, agentID)
	}
	return s.query(ctx, conditions, args, limit)
}

func (s *MemoryStore) OlderThan(ctx context.Context, cutoff time.Time, agentID string, limit int) ([]domain.MemoryRecord, error) {
	conditions := []string{"created_at <= ?"}
	args := []any{encodeTime(cutoff)}
	if agentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, agentID)
	}
	return s.query(ctx, conditions, args, limit)
}

func (s *MemoryStore) RecordAccess(ctx context.Context, id string, at time.Time, relevance float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			last_accessed = ?,
			relevance_score = ?,
			metadata = json_set(metadata, '$.access_count',
				COALESCE(json_extract(metadata, '$.access_count'), 0) + 1)
		WHERE id = ?`, encodeTime(at), relevance, id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MemoryStore) SearchByVector(ctx context.Context, q domain.VectorQuery) ([]domain.MemoryMatch, error) {
	return nil, domain.ErrUnsupported
}

func (s *MemoryStore) KeywordCandidates(ctx context.Context, agentID string, keywords []string, limit int) ([]domain.MemoryRecord, error) {
	if len(keywords) == 0 {
		return []domain.MemoryRecord{}, nil
	}
	likes := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)+1)
	for _, kw := range keywords {
		likes = append(likes, "content LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(kw)+"%")
	}
	conditions := []string{"(" + strings.Join(likes, " OR ") + ")"}
	if agentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, agentID)
	}
	return s.query(ctx, conditions, args, limit)
}

func (s *MemoryStore) Candidates(ctx context.Context, agentID string, limit int) ([]domain.MemoryRecord, error) {
	return s.ForAgent(ctx, agentID, limit)
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, mapError(err)
}

func (s *MemoryStore) CountByAgent(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, `SELECT agent_id, COUNT(*) FROM memories GROUP BY agent_id`)
}

func (s *MemoryStore) CountByCategory(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx,
		`SELECT COALESCE(json_extract(category, '$.primary'), ''), COUNT(*) FROM memories GROUP BY 1`)
}

func (s *MemoryStore) countBy(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
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

func (s *MemoryStore) query(ctx context.Context, conditions []string, args []any, limit int) ([]domain.MemoryRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY created_at DESC, id`,
		memoryColumns, strings.Join(conditions, " AND "))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// escapeLike protects LIKE metacharacters in user-derived keywords.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
