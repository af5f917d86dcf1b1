package vectorstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns deterministic vectors derived from text length and
// rune sum, so near-duplicate text embeds to near-identical vectors
// without needing a real model server.
type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Dimension() int { return 8 }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var sum float32
		for _, r := range t {
			sum += float32(r)
		}
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = sum / float32(j+1)
		}
		out[i] = vec
	}
	return out, nil
}

func openTestStore(t *testing.T, embedder *fakeEmbedder) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := Open(path, embedder)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChunkingCoversAllNonWhitespaceAndRespectsBounds(t *testing.T) {
	content := strings.Repeat("word ", 400)
	chunks := chunkText(content)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), maxChunkSize)
	}

	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c)
	}
	for _, r := range content {
		if r == ' ' || r == '\n' {
			continue
		}
		assert.Contains(t, joined.String(), string(r))
	}
}

func TestChunkingDropsShortTrailingChunk(t *testing.T) {
	chunks := chunkText("hi")
	assert.Empty(t, chunks)
}

func TestIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	s := openTestStore(t, embedder)

	err := s.Ingest(ctx, strings.Repeat("The secret code is 42. ", 5), "file:abc")
	require.NoError(t, err)

	hits, err := s.Search(ctx, "What is the secret code?", []string{"abc"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Content, "secret code")
}

func TestSearchOnEmptyTableReturnsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, &fakeEmbedder{})

	hits, err := s.Search(ctx, "anything", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteForFileRemovesOnlyThatFilesChunks(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	s := openTestStore(t, embedder)

	content := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 5)
	require.NoError(t, s.Ingest(ctx, content, "file:keep"))
	require.NoError(t, s.Ingest(ctx, content, "file:drop"))

	require.NoError(t, s.DeleteForFile(ctx, "drop"))

	hits, err := s.Search(ctx, "alpha", []string{"drop"}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.Search(ctx, "alpha", []string{"keep"}, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestDeleteForFileOnMissingTableIsNoop(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, &fakeEmbedder{})
	_, err := s.db.ExecContext(ctx, "DROP TABLE "+chunksTable)
	require.NoError(t, err)
	require.NoError(t, s.DeleteForFile(ctx, "ghost"))
}

func TestQueryEmbeddingCacheIsUsedOnRepeatQuery(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	s := openTestStore(t, embedder)

	require.NoError(t, s.Ingest(ctx, strings.Repeat("lorem ipsum dolor sit amet ", 5), "file:x"))

	before := embedder.calls
	_, err := s.Search(ctx, "repeatable query", nil, 5)
	require.NoError(t, err)
	afterFirst := embedder.calls

	_, err = s.Search(ctx, "repeatable query", nil, 5)
	require.NoError(t, err)
	afterSecond := embedder.calls

	assert.Greater(t, afterFirst, before)
	assert.Equal(t, afterFirst, afterSecond)
}
