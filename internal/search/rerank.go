package search

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

const (
	textTypeBoost     = 1.2
	figureTypeBoost   = 1.0
	keywordBoostPer   = 0.1
	keywordMaxHits    = 3
	sectionBoostUp    = 1.15
	sectionBoostDown  = 0.85
	appearanceFigBump = 1.10
)

var koStopwords = map[string]struct{}{
	"는": {}, "은": {}, "이": {}, "가": {}, "을": {}, "를": {}, "에": {},
	"에서": {}, "으로": {}, "으로써": {}, "으로서": {}, "과": {}, "와": {},
	"도": {}, "만": {}, "보다": {}, "보다도": {}, "때문에": {}, "해서": {},
	"하여": {}, "하고": {}, "이며": {}, "입니다": {}, "인가요": {},
}

var enStopwords = map[string]struct{}{
	"the": {}, "is": {}, "are": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "for": {}, "a": {}, "an": {}, "what": {}, "how": {},
	"why": {}, "who": {}, "where": {},
}

var nonWordRe = regexp.MustCompile(`[^0-9a-z가-힣]+`)

var (
	sizeKeywords = map[string]struct{}{
		"크기": {}, "사이즈": {}, "size": {}, "dimensions": {}, "길이": {},
		"폭": {}, "높이": {}, "가로": {}, "세로": {}, "무게": {}, "중량": {},
	}
	specKeywords = map[string]struct{}{
		"사양": {}, "스펙": {}, "spec": {}, "specs": {}, "specification": {},
		"제원": {}, "규격": {},
	}
	appearanceKeywords = map[string]struct{}{
		"생김새": {}, "모양": {}, "외형": {}, "appearance": {}, "look": {}, "looks": {},
	}

	specSectionHints       = []string{"사양", "규격", "제원", "spec", "spec.", "specification"}
	appearanceSectionHints = []string{"각 부", "각부", "구성", "구성품", "외관", "외형", "명칭"}
	penaltySectionHints    = []string{"피해보상", "소비자", "보증서", "품질 보증", "서비스", "폐가전", "재활용"}
)

// ExtractKeywords lowercases the query, keeps alphanumeric and Hangul runs
// of two or more characters and drops stopwords.
func ExtractKeywords(query string) []string {
	q := nonWordRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(query)), " ")
	var keywords []string
	for _, tok := range strings.Fields(q) {
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, stop := enStopwords[tok]; stop {
			continue
		}
		if _, stop := koStopwords[tok]; stop {
			continue
		}
		keywords = append(keywords, tok)
	}
	return keywords
}

// queryIntent captures what kind of answer the query is after.
type queryIntent struct {
	sizeOrSpec bool
	appearance bool
}

func detectIntent(keywords []string) queryIntent {
	var it queryIntent
	for _, kw := range keywords {
		if _, ok := sizeKeywords[kw]; ok {
			it.sizeOrSpec = true
		}
		if _, ok := specKeywords[kw]; ok {
			it.sizeOrSpec = true
		}
		if _, ok := appearanceKeywords[kw]; ok {
			it.appearance = true
		}
		if strings.Contains(kw, "크기") || strings.Contains(kw, "사이즈") || strings.Contains(kw, "dimensions") {
			it.sizeOrSpec = true
		}
		if strings.Contains(kw, "생겼") || strings.Contains(kw, "생긴") {
			it.appearance = true
		}
	}
	return it
}

// rerankScore multiplies the raw inner-product score by the type, keyword
// and section boosts.
func rerankScore(base float64, rec *domain.VectorRecord, keywords []string, intent queryIntent) float64 {
	typeBoost := 1.0
	switch rec.Type {
	case domain.ChunkText:
		typeBoost = textTypeBoost
	case domain.ChunkFigure:
		typeBoost = figureTypeBoost
	}

	keywordBoost := 1.0
	if len(keywords) > 0 {
		haystack := strings.ToLower(rec.Text + " " + rec.DocID + " " + rec.UID)
		hits := 0
		for _, kw := range keywords {
			if kw != "" && strings.Contains(haystack, kw) {
				hits++
			}
			if hits >= keywordMaxHits {
				break
			}
		}
		keywordBoost += keywordBoostPer * float64(hits)
	}

	sectionBoost := 1.0
	section := strings.ToLower(rec.SectionTitle)
	if section == "" {
		section = strings.ToLower(rec.Category)
	}
	if section != "" {
		if intent.sizeOrSpec && containsAnyHint(section, specSectionHints) {
			sectionBoost *= sectionBoostUp
		}
		if intent.appearance && containsAnyHint(section, appearanceSectionHints) {
			sectionBoost *= sectionBoostUp
		}
		if (intent.sizeOrSpec || intent.appearance) && containsAnyHint(section, penaltySectionHints) {
			sectionBoost *= sectionBoostDown
		}
	}
	if intent.appearance && rec.Type == domain.ChunkFigure {
		sectionBoost *= appearanceFigBump
	}

	return base * typeBoost * keywordBoost * sectionBoost
}

func containsAnyHint(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
