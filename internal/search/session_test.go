package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

func TestSessionRemembersCodeDerivedFilter(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{0, 1, 0, 0})
	sess := NewSession(s, nil)

	// First turn names a model. The session latches onto its document.
	turn, err := sess.Search(context.Background(), "SAH001 물탱크 세척", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"SAH001"}, turn.DocIDs)
	assert.Equal(t, []string{"SAH001"}, sess.CurrentDocIDs())

	// Follow-up without a code reuses the remembered document.
	turn, err = sess.Search(context.Background(), "세척은 얼마나 자주 해?", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"SAH001"}, turn.DocIDs)
	for _, h := range turn.Result.Hits {
		assert.Equal(t, "SAH001", h.Record.DocID)
	}
}

func TestSessionExplicitFilterUpdatesMemory(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{0, 0, 0, 1})
	sess := NewSession(s, nil)

	turn, err := sess.Search(context.Background(), "사용 방법", Options{DocIDs: []string{"WD-200", "", "WD-200"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"WD-200"}, turn.DocIDs)
	assert.Equal(t, []string{"WD-200"}, sess.CurrentDocIDs())
}

func TestSessionResetForgetsContext(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{0, 1, 0, 0})
	sess := NewSession(s, nil)

	_, err := sess.Search(context.Background(), "SAH001 세척", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, sess.CurrentDocIDs())

	sess.Reset()
	assert.Empty(t, sess.CurrentDocIDs())

	turn, err := sess.Search(context.Background(), "세척 방법", Options{})
	require.NoError(t, err)
	assert.Empty(t, turn.DocIDs)
}

func TestSessionAppearanceQueryAddsFigures(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{0, 0, 1, 0})
	sess := NewSession(s, nil)

	turn, err := sess.Search(context.Background(), "SAH001 어떻게 생겼어?", Options{})
	require.NoError(t, err)
	require.NotNil(t, turn.Figures)
	assert.GreaterOrEqual(t, turn.Figures.TopK, 12)
	for _, h := range turn.Figures.Hits {
		assert.Equal(t, domain.ChunkFigure, h.Record.Type)
	}
}

func TestSessionNoFiguresForPlainQuery(t *testing.T) {
	s := newTestSearcher(t, testCorpus(t), []float32{0, 1, 0, 0})
	sess := NewSession(s, nil)

	turn, err := sess.Search(context.Background(), "물탱크 세척 방법", Options{})
	require.NoError(t, err)
	assert.Nil(t, turn.Figures)
}

func TestIsAppearanceQuery(t *testing.T) {
	assert.True(t, isAppearanceQuery("이 제품 어떻게 생겼어?"))
	assert.True(t, isAppearanceQuery("사진 보여줘"))
	assert.True(t, isAppearanceQuery("What does it look like?"))
	assert.False(t, isAppearanceQuery("필터 교체 주기 알려줘"))
}
