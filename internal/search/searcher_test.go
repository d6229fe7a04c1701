package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/index"
)

const testDim = 4

// fixedEmbedder returns one preset vector for any query.
type fixedEmbedder struct {
	vec []float32
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string, _ int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), f.vec...)
	}
	return out, nil
}

type memLoader struct {
	flat    *index.Flat
	records []domain.VectorRecord
	err     error
}

func (m *memLoader) Load() (*index.Flat, []domain.VectorRecord, *index.Manifest, error) {
	if m.err != nil {
		return nil, nil, nil, m.err
	}
	return m.flat, m.records, &index.Manifest{NumVectors: len(m.records)}, nil
}

// testCorpus builds two documents: SAH001 with two text chunks and one
// figure chunk, WD-200 with one text chunk. Axis-aligned unit vectors make
// raw scores predictable.
func testCorpus(t *testing.T) *memLoader {
	t.Helper()
	flat := index.NewFlat(testDim)
	require.NoError(t, flat.Add([][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}))
	records := []domain.VectorRecord{
		{VectorIndex: 0, UID: "SAH001_text_0000", DocID: "SAH001", Type: domain.ChunkText,
			Text: "SAH001 가습기 제품 사양 높이 30cm", SectionTitle: "제품 사양", FileName: "SAH001.pdf"},
		{VectorIndex: 1, UID: "SAH001_text_0001", DocID: "SAH001", Type: domain.ChunkText,
			Text: "물탱크 세척 방법", SectionTitle: "손질과 관리", FileName: "SAH001.pdf"},
		{VectorIndex: 2, UID: "SAH001:figure:0001", DocID: "SAH001", Type: domain.ChunkFigure,
			Text: "가습기 정면 모습이다", Category: "photo_or_diagram", FileName: "SAH001.pdf"},
		{VectorIndex: 3, UID: "WD-200_text_0000", DocID: "WD-200", Type: domain.ChunkText,
			Text: "WD-200 세탁기 사용 방법", SectionTitle: "사용 방법", FileName: "WD-200.pdf"},
	}
	return &memLoader{flat: flat, records: records}
}

func newTestSearcher(t *testing.T, loader ArtifactLoader, qv []float32) *Searcher {
	t.Helper()
	s := NewSearcher(SearcherConfig{
		Loader:   loader,
		Embedder: &fixedEmbedder{vec: qv},
		Dim:      testDim,
		TopK:     2,
	})
	require.NoError(t, s.Rebuild())
	return s
}

func TestSearchFullCorpus(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{0, 1, 0, 0})

	res, err := s.Search(context.Background(), "물탱크 세척 어떻게 하나요", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "SAH001_text_0001", res.Hits[0].Record.UID)
	assert.LessOrEqual(t, len(res.Hits), 2)
	assert.Greater(t, res.Hits[0].Score, res.Hits[0].RawScore, "text type boost applies")
}

func TestSearchCodeFilterRestrictsToDocument(t *testing.T) {
	// The query vector points at the WD-200 row, but the code filter keeps
	// the scan inside SAH001.
	s := newTestSearcher(t, testCorpus(t), []float32{0, 0, 0, 1})

	res, err := s.Search(context.Background(), "SAH001 사용법 알려줘", Options{})
	require.NoError(t, err)
	for _, h := range res.Hits {
		assert.Equal(t, "SAH001", h.Record.DocID)
	}
}

func TestSearchExplicitFilterWinsOverCodes(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{1, 0, 0, 0})

	res, err := s.Search(context.Background(), "SAH001 크기", Options{DocIDs: []string{"WD-200"}})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	for _, h := range res.Hits {
		assert.Equal(t, "WD-200", h.Record.DocID)
	}
}

func TestSearchUnknownFilterFallsBackToFull(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{1, 0, 0, 0})

	res, err := s.Search(context.Background(), "가습기 설명", Options{DocIDs: []string{"no-such-doc"}})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Hits)
}

func TestSearchTypeFilter(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{0, 0, 1, 0})

	res, err := s.Search(context.Background(), "가습기", Options{TypeFilter: domain.ChunkFigure, TopK: 8})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	for _, h := range res.Hits {
		assert.Equal(t, domain.ChunkFigure, h.Record.Type)
	}
}

func TestSearchSpecIntentPrefersSpecSection(t *testing.T) {
	// Both SAH001 text rows get the same raw score from a diagonal query
	// vector; the 규격 section must win on the section boost.
	flat := index.NewFlat(testDim)
	require.NoError(t, flat.Add([][]float32{
		{1, 0, 0, 0},
		{1, 0, 0, 0},
	}))
	loader := &memLoader{flat: flat, records: []domain.VectorRecord{
		{VectorIndex: 0, UID: "a_text_0000", DocID: "a", Type: domain.ChunkText,
			Text: "보증 기간 안내", SectionTitle: "품질 보증서"},
		{VectorIndex: 1, UID: "a_text_0001", DocID: "a", Type: domain.ChunkText,
			Text: "높이와 무게 정보", SectionTitle: "제품 규격"},
	}}
	s := newTestSearcher(t, loader, []float32{1, 0, 0, 0})

	res, err := s.Search(context.Background(), "제품 사양 알려줘", Options{})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "a_text_0001", res.Hits[0].Record.UID)
}

func TestSearchEmptyQuery(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{1, 0, 0, 0})
	_, err := s.Search(context.Background(), "", Options{})
	assert.Error(t, err)
}

func TestSearchUninitializedIndex(t *testing.T) {
	s := NewSearcher(SearcherConfig{
		Loader:   &memLoader{err: domain.ErrIndexNotInitialized},
		Embedder: &fixedEmbedder{vec: []float32{1, 0, 0, 0}},
		Dim:      testDim,
	})
	_, err := s.Search(context.Background(), "질문", Options{})
	assert.ErrorIs(t, err, domain.ErrIndexNotInitialized)
}
