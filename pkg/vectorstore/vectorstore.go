// Package vectorstore implements the VectorStore component: chunk, embed,
// upsert, filter-search, and delete over a single SQLite table keyed by
// chunk UUID, with metadata tags of the form `file:{uuid}`.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/whytchat/core/pkg/coreerr"
	"github.com/whytchat/core/pkg/embed"
	"github.com/whytchat/core/pkg/sqliteutil"
)

const (
	chunksTable   = "vector_chunks"
	queryCacheCap = 1000
)

// Hit is one search result: the chunk's content, its metadata tag, and a
// distance score (ascending — smaller is more similar).
type Hit struct {
	Content  string
	Metadata string
	Score    float32
}

// Store is the VectorStore component, backed by a dedicated SQLite
// database (separate from Persistence's, per the on-disk layout).
type Store struct {
	db       *sql.DB
	embedder embed.Embedder

	queryCache    *cache.Cache
	queryCacheMu  sync.Mutex
	queryCacheFIFO []string

	writeMu sync.Mutex
}

// Open opens (creating if absent) the vector store's SQLite database at
// path and ensures the chunk table exists.
func Open(path string, embedder embed.Embedder) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.VectorStoreError, "open vector database", err)
	}
	if err := ensureTable(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:         db,
		embedder:   embedder,
		queryCache: cache.New(cache.NoExpiration, cache.NoExpiration),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func ensureTable(db *sql.DB) error {
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id       TEXT PRIMARY KEY,
			content  TEXT NOT NULL,
			metadata TEXT NOT NULL,
			vector   TEXT NOT NULL
		)
	`, chunksTable))
	if err != nil {
		return coreerr.Wrap(coreerr.VectorStoreError, "create chunk table", err)
	}
	_, err = db.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_metadata ON %s(metadata)`, chunksTable, chunksTable))
	if err != nil {
		return coreerr.Wrap(coreerr.VectorStoreError, "create metadata index", err)
	}
	return nil
}

// Ingest chunks content, embeds the whole batch in one Embedder call, and
// appends one row per chunk carrying metadataTag verbatim.
func (s *Store) Ingest(ctx context.Context, content, metadataTag string) error {
	chunks := chunkText(content)
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return coreerr.New(coreerr.EmbedderError, "embedder returned a different number of vectors than chunks")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return coreerr.Wrap(coreerr.VectorStoreError, "begin ingest transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, content, metadata, vector) VALUES (?, ?, ?, ?)`, chunksTable))
	if err != nil {
		return coreerr.Wrap(coreerr.VectorStoreError, "prepare insert", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		encoded, err := json.Marshal(vectors[i])
		if err != nil {
			return coreerr.Wrap(coreerr.VectorStoreError, "marshal vector", err)
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), chunk, metadataTag, string(encoded)); err != nil {
			return coreerr.Wrap(coreerr.VectorStoreError, "insert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return coreerr.Wrap(coreerr.VectorStoreError, "commit ingest transaction", err)
	}
	return nil
}

// Search embeds query (via a bounded LRU cache keyed by exact query
// string), restricts candidates to fileIDs when non-empty, and returns
// hits ordered by ascending distance (most similar first).
func (s *Store) Search(ctx context.Context, query string, fileIDs []string, topK int) ([]Hit, error) {
	if !s.tableExists(ctx) {
		return nil, nil
	}

	queryVector, err := s.embedQueryCached(ctx, query)
	if err != nil {
		return nil, err
	}

	args := []any{}
	sqlText := fmt.Sprintf(`SELECT content, metadata, vector FROM %s`, chunksTable)
	if len(fileIDs) > 0 {
		placeholders := make([]string, len(fileIDs))
		for i, id := range fileIDs {
			placeholders[i] = "?"
			args = append(args, fileTag(id))
		}
		sqlText += " WHERE metadata IN (" + strings.Join(placeholders, ", ") + ")"
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, coreerr.Wrap(coreerr.VectorStoreError, "search query", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var content, metadata, vectorJSON string
		if err := rows.Scan(&content, &metadata, &vectorJSON); err != nil {
			return nil, coreerr.Wrap(coreerr.VectorStoreError, "scan search row", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
			return nil, coreerr.Wrap(coreerr.VectorStoreError, "unmarshal stored vector", err)
		}
		hits = append(hits, Hit{
			Content:  content,
			Metadata: metadata,
			Score:    cosineDistance(queryVector, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.VectorStoreError, "iterate search rows", err)
	}

	sortHitsByScore(hits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteForFile removes every chunk tagged `file:{fileID}`. A no-op (not
// an error) if the table doesn't exist.
func (s *Store) DeleteForFile(ctx context.Context, fileID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE metadata = ?`, chunksTable), fileTag(fileID))
	if err != nil {
		if isNoSuchTable(err) {
			return nil
		}
		return coreerr.Wrap(coreerr.VectorStoreError, "delete for file", err)
	}
	return nil
}

func fileTag(fileID string) string {
	return "file:" + fileID
}

func (s *Store) tableExists(ctx context.Context) bool {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, chunksTable).Scan(&name)
	return err == nil
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// embedQueryCached embeds a query string through a size-bounded cache.
// go-cache has no native size cap, so a recency-ordered index alongside
// it (a hit moves its query to the back) enforces the 1000-entry bound
// by evicting the least recently used query.
func (s *Store) embedQueryCached(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := s.queryCache.Get(query); ok {
		s.queryCacheMu.Lock()
		for idx, q := range s.queryCacheFIFO {
			if q == query {
				s.queryCacheFIFO = append(append(s.queryCacheFIFO[:idx], s.queryCacheFIFO[idx+1:]...), query)
				break
			}
		}
		s.queryCacheMu.Unlock()
		slog.Debug("vectorstore: query cache hit", "query_len", len(query))
		return cached.([]float32), nil
	}
	slog.Debug("vectorstore: query cache miss", "query_len", len(query))

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, coreerr.New(coreerr.EmbedderError, "query embedding returned unexpected vector count")
	}

	s.cacheQuery(query, vectors[0])
	return vectors[0], nil
}

func (s *Store) cacheQuery(query string, vector []float32) {
	s.queryCacheMu.Lock()
	defer s.queryCacheMu.Unlock()

	if _, found := s.queryCache.Get(query); !found {
		s.queryCacheFIFO = append(s.queryCacheFIFO, query)
	}
	s.queryCache.Set(query, vector, cache.NoExpiration)

	for len(s.queryCacheFIFO) > queryCacheCap {
		oldest := s.queryCacheFIFO[0]
		s.queryCacheFIFO = s.queryCacheFIFO[1:]
		s.queryCache.Delete(oldest)
	}
}

func cosineDistance(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return float32(math.Inf(1))
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return float32(1 - similarity)
}

func sortHitsByScore(hits []Hit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score < hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}
