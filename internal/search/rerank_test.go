package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

func TestExtractKeywords(t *testing.T) {
	kws := ExtractKeywords("SAH001 가습기의 크기는 어떻게 되나요?")
	assert.Contains(t, kws, "sah001")
	assert.Contains(t, kws, "크기는")

	assert.Empty(t, ExtractKeywords(""))
	assert.NotContains(t, ExtractKeywords("what is the size"), "the")
	assert.NotContains(t, ExtractKeywords("what is the size"), "what")
}

func TestDetectIntent(t *testing.T) {
	it := detectIntent(ExtractKeywords("제품 사양 알려줘"))
	assert.True(t, it.sizeOrSpec)
	assert.False(t, it.appearance)

	it = detectIntent(ExtractKeywords("이 제품 모양 어때"))
	assert.True(t, it.appearance)

	it = detectIntent(ExtractKeywords("어떻게 생겼나요"))
	assert.True(t, it.appearance)

	it = detectIntent(ExtractKeywords("필터 교체 방법"))
	assert.False(t, it.sizeOrSpec)
	assert.False(t, it.appearance)
}

func TestRerankTypeBoost(t *testing.T) {
	text := &domain.VectorRecord{Type: domain.ChunkText, Text: "body"}
	figure := &domain.VectorRecord{Type: domain.ChunkFigure, Text: "caption"}

	assert.InDelta(t, 1.2, rerankScore(1.0, text, nil, queryIntent{}), 1e-9)
	assert.InDelta(t, 1.0, rerankScore(1.0, figure, nil, queryIntent{}), 1e-9)
}

func TestRerankKeywordBoostMonotonicCapped(t *testing.T) {
	rec := &domain.VectorRecord{
		Type:  domain.ChunkText,
		DocID: "sah001",
		UID:   "sah001_text_0001",
		Text:  "가습기 물탱크 세척 방법과 분무구 관리",
	}

	none := rerankScore(1.0, rec, []string{"없는말"}, queryIntent{})
	one := rerankScore(1.0, rec, []string{"물탱크"}, queryIntent{})
	two := rerankScore(1.0, rec, []string{"물탱크", "분무구"}, queryIntent{})
	assert.Greater(t, one, none)
	assert.Greater(t, two, one)

	// Hits cap at three distinct keywords.
	four := rerankScore(1.0, rec, []string{"물탱크", "분무구", "세척", "가습기"}, queryIntent{})
	three := rerankScore(1.0, rec, []string{"물탱크", "분무구", "세척"}, queryIntent{})
	assert.InDelta(t, three, four, 1e-9)
	assert.InDelta(t, 1.2*1.3, three, 1e-9)
}

func TestRerankSectionBoosts(t *testing.T) {
	spec := &domain.VectorRecord{Type: domain.ChunkText, SectionTitle: "제품 사양", Text: "x"}
	warranty := &domain.VectorRecord{Type: domain.ChunkText, SectionTitle: "품질 보증서 안내", Text: "x"}
	parts := &domain.VectorRecord{Type: domain.ChunkText, SectionTitle: "각부 명칭", Text: "x"}

	specIntent := queryIntent{sizeOrSpec: true}
	assert.InDelta(t, 1.2*1.15, rerankScore(1.0, spec, nil, specIntent), 1e-9)
	assert.InDelta(t, 1.2*0.85, rerankScore(1.0, warranty, nil, specIntent), 1e-9)
	assert.InDelta(t, 1.2, rerankScore(1.0, parts, nil, specIntent), 1e-9)

	appIntent := queryIntent{appearance: true}
	assert.InDelta(t, 1.2*1.15, rerankScore(1.0, parts, nil, appIntent), 1e-9)

	// Appearance intent bumps figure chunks even without a section title.
	fig := &domain.VectorRecord{Type: domain.ChunkFigure, Text: "caption"}
	assert.InDelta(t, 1.10, rerankScore(1.0, fig, nil, appIntent), 1e-9)
}

func TestRerankFallsBackToCategory(t *testing.T) {
	fig := &domain.VectorRecord{Type: domain.ChunkFigure, Category: "외형 사진", Text: "caption"}
	got := rerankScore(1.0, fig, nil, queryIntent{appearance: true})
	assert.InDelta(t, 1.15*1.10, got, 1e-9)
}
