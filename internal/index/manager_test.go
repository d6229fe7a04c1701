package index

import (
	"context"
	"fmt"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/embed"
)

// stubBatcher embeds every text as a deterministic normalized vector
// derived from the text itself, optionally dropping chosen texts.
type stubBatcher struct {
	drop map[string]bool
}

func (s *stubBatcher) EmbedAll(_ context.Context, texts []string, dim int) (embed.Result, error) {
	var res embed.Result
	for i, text := range texts {
		if s.drop[text] {
			res.Dropped++
			continue
		}
		v := make([]float32, dim)
		h := fnv.New32a()
		h.Write([]byte(text))
		v[int(h.Sum32())%dim] = 1
		res.Positions = append(res.Positions, i)
		res.Vectors = append(res.Vectors, v)
	}
	return res, nil
}

func textChunks(docID string, n int) []domain.Chunk {
	out := make([]domain.Chunk, 0, n)
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("%s body %d", docID, i)
		out = append(out, domain.Chunk{
			UID:       domain.TextChunkUID(docID, i),
			DocID:     docID,
			Type:      domain.ChunkText,
			Text:      text,
			CharLen:   len(text),
			PageStart: 1,
			PageEnd:   1,
		})
	}
	return out
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{
		Dir:     t.TempDir(),
		Model:   "text-embedding-004",
		Dim:     8,
		Batcher: &stubBatcher{},
	})
}

func TestManagerLoadBeforeBuild(t *testing.T) {
	m := newTestManager(t)
	_, _, _, err := m.Load()
	assert.ErrorIs(t, err, domain.ErrIndexNotInitialized)
}

func TestManagerBuildAndLoad(t *testing.T) {
	m := newTestManager(t)
	chunks := textChunks("washer-wd100", 4)
	sources := map[string]string{"washer-wd100": "washer-wd100.pdf"}

	manifest, err := m.Build(context.Background(), chunks, sources, []string{"chunks"})
	require.NoError(t, err)
	assert.Equal(t, 4, manifest.NumVectors)
	assert.Equal(t, 4, manifest.NumTextChunks)
	assert.Equal(t, 0, manifest.NumFigureChunks)
	assert.Equal(t, IndexType, manifest.IndexType)
	assert.NotEmpty(t, manifest.CreatedAt)

	flat, records, loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, flat.Len())
	require.Len(t, records, 4)
	for i, r := range records {
		assert.Equal(t, i, r.VectorIndex)
		assert.Equal(t, "washer-wd100", r.DocID)
		assert.Equal(t, "washer-wd100.pdf", r.FileName)
	}
	assert.Equal(t, manifest.NumVectors, loaded.NumVectors)
}

func TestManagerBuildEmpty(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Build(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoChunks)
}

func TestManagerAppendDeduplicates(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	chunks := textChunks("doc-a", 3)

	_, err := m.Build(ctx, chunks, nil, nil)
	require.NoError(t, err)

	// Re-offering the same chunks adds nothing.
	manifest, err := m.Append(ctx, chunks, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, manifest.NumVectors)

	// A mixed offer only adds the unseen UIDs.
	mixed := append(textChunks("doc-a", 3), textChunks("doc-b", 2)...)
	manifest, err = m.Append(ctx, mixed, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, manifest.NumVectors)

	_, records, _, err := m.Load()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "doc-b", records[3].DocID)
	assert.Equal(t, "doc-b", records[4].DocID)
}

func TestManagerAppendWithoutIndexBuilds(t *testing.T) {
	m := newTestManager(t)
	manifest, err := m.Append(context.Background(), textChunks("doc-a", 2), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.NumVectors)
}

func TestManagerReplaceDoc(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	all := append(textChunks("doc-a", 3), textChunks("doc-b", 2)...)
	_, err := m.Build(ctx, all, nil, nil)
	require.NoError(t, err)

	flatBefore, recordsBefore, _, err := m.Load()
	require.NoError(t, err)
	surviving := map[string][]float32{}
	for _, r := range recordsBefore {
		if r.DocID != "doc-a" {
			row, ok := flatBefore.At(r.VectorIndex)
			require.True(t, ok)
			surviving[r.UID] = append([]float32{}, row...)
		}
	}

	manifest, err := m.ReplaceDoc(ctx, "doc-a", textChunks("doc-a", 4), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2+4, manifest.NumVectors)

	flat, records, _, err := m.Load()
	require.NoError(t, err)
	require.Len(t, records, 6)

	for i, r := range records {
		assert.Equal(t, i, r.VectorIndex)
	}

	// Untouched documents keep identical vectors under their uid.
	kept := 0
	for _, r := range records {
		if r.DocID == "doc-b" {
			row, ok := flat.At(r.VectorIndex)
			require.True(t, ok)
			assert.Equal(t, surviving[r.UID], row)
			kept++
		}
	}
	assert.Equal(t, 2, kept)

	newCount := 0
	for _, r := range records {
		if r.DocID == "doc-a" {
			newCount++
		}
	}
	assert.Equal(t, 4, newCount)
}

func TestManagerReplaceMissingDocAppends(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Build(ctx, textChunks("doc-a", 2), nil, nil)
	require.NoError(t, err)

	manifest, err := m.ReplaceDoc(ctx, "doc-c", textChunks("doc-c", 1), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, manifest.NumVectors)
}

func TestManagerReplaceWithoutIndexBuilds(t *testing.T) {
	m := newTestManager(t)
	manifest, err := m.ReplaceDoc(context.Background(), "doc-a", textChunks("doc-a", 2), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.NumVectors)
}

func TestManagerBuildKeepsOrderWhenDropped(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(ManagerConfig{
		Dir:   dir,
		Model: "text-embedding-004",
		Dim:   8,
		Batcher: &stubBatcher{drop: map[string]bool{
			"doc-a body 1": true,
		}},
	})

	manifest, err := m.Build(context.Background(), textChunks("doc-a", 3), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.NumVectors)

	_, records, _, err := m.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.TextChunkUID("doc-a", 0), records[0].UID)
	assert.Equal(t, domain.TextChunkUID("doc-a", 2), records[1].UID)
}
