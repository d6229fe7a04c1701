package search

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

// Phrases that mean the user is asking what the product looks like.
var appearanceQueryPhrases = []string{
	"어떻게 생겼", "생김새", "모양", "외형", "겉모습",
	"모습이 어때", "모습이 어떠", "디자인이 어떻", "디자인이 어때",
	"사진 보여줘", "사진을 보여줘", "이미지 보여줘", "그림 보여줘",
	"사진 보여 줄래", "이미지 보여 줄래",
	"what does it look like", "appearance", "how does it look",
	"show me a photo", "show me an image",
}

// Session remembers which documents a conversation is about and answers
// each turn through the searcher. Filter priority is explicit ids, then
// codes in the query, then the remembered ids.
type Session struct {
	searcher *Searcher
	logger   *zap.Logger

	mu            sync.Mutex
	currentDocIDs []string
}

func NewSession(searcher *Searcher, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{searcher: searcher, logger: logger}
}

// Reset forgets the remembered document context.
func (s *Session) Reset() {
	s.mu.Lock()
	s.currentDocIDs = nil
	s.mu.Unlock()
}

// CurrentDocIDs returns a copy of the remembered document filter.
func (s *Session) CurrentDocIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.currentDocIDs...)
}

// Turn is one session search result, with an optional figure-only
// supplement for appearance questions.
type Turn struct {
	Result  *domain.SearchResult `json:"result"`
	Figures *domain.SearchResult `json:"figures,omitempty"`
	DocIDs  []string             `json:"doc_ids,omitempty"`
}

// Search runs one conversation turn.
func (s *Session) Search(ctx context.Context, query string, opts Options) (*Turn, error) {
	docIDs := s.decideDocFilter(query, opts.DocIDs)
	opts.DocIDs = docIDs

	result, err := s.searcher.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	turn := &Turn{Result: result, DocIDs: docIDs}

	if opts.TypeFilter == "" && isAppearanceQuery(query) {
		figTopK := result.TopK * 3
		if figTopK < 12 {
			figTopK = 12
		}
		figures, err := s.searcher.Search(ctx, query, Options{
			TopK:       figTopK,
			TypeFilter: domain.ChunkFigure,
			DocIDs:     docIDs,
		})
		if err != nil {
			s.logger.Warn("supplemental figure search failed", zap.Error(err))
		} else {
			turn.Figures = figures
		}
	}
	return turn, nil
}

// decideDocFilter applies the filter priority and updates the remembered
// context when an explicit or code-derived filter wins.
func (s *Session) decideDocFilter(query string, explicit []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cleaned := dedupeNonEmpty(explicit); len(cleaned) > 0 {
		s.currentDocIDs = cleaned
		s.logger.Info("using explicit document filter", zap.Strings("doc_ids", cleaned))
		return cleaned
	}
	if docs := s.searcher.ResolveQueryDocs(query); len(docs) > 0 {
		s.currentDocIDs = docs
		return docs
	}
	if len(s.currentDocIDs) > 0 {
		s.logger.Info("reusing session document filter", zap.Strings("doc_ids", s.currentDocIDs))
		return append([]string(nil), s.currentDocIDs...)
	}
	return nil
}

func isAppearanceQuery(query string) bool {
	q := strings.ToLower(query)
	for _, phrase := range appearanceQueryPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

func dedupeNonEmpty(ids []string) []string {
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || containsString(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
