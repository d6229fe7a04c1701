package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/index"
	"github.com/kailas-cloud/manualdex/internal/metrics"
)

const (
	// DefaultTopK is the result count when the caller does not override it.
	DefaultTopK = 8
	// DefaultPresearchFactor widens the nearest-neighbor pull before reranking.
	DefaultPresearchFactor = 3
)

// ArtifactLoader supplies the published index artifacts.
type ArtifactLoader interface {
	Load() (*index.Flat, []domain.VectorRecord, *index.Manifest, error)
}

// Searcher answers queries over the vector index with code-aware document
// filtering and multi-signal reranking.
type Searcher struct {
	loader    ArtifactLoader
	embedder  domain.Embedder
	dim       int
	topK      int
	presearch int
	codes     *CodeIndex
	logger    *zap.Logger

	mu      sync.RWMutex
	flat    *index.Flat
	records []domain.VectorRecord
}

type SearcherConfig struct {
	Loader          ArtifactLoader
	Embedder        domain.Embedder
	Dim             int
	TopK            int
	PresearchFactor int
	Logger          *zap.Logger
}

func NewSearcher(cfg SearcherConfig) *Searcher {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.PresearchFactor <= 0 {
		cfg.PresearchFactor = DefaultPresearchFactor
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Searcher{
		loader:    cfg.Loader,
		embedder:  cfg.Embedder,
		dim:       cfg.Dim,
		topK:      cfg.TopK,
		presearch: cfg.PresearchFactor,
		codes:     NewCodeIndex(log),
		logger:    log,
	}
}

// Rebuild reloads the published artifacts and rescans the code index.
func (s *Searcher) Rebuild() error {
	flat, records, _, err := s.loader.Load()
	if err != nil {
		return err
	}
	s.codes.Rebuild(records)
	s.mu.Lock()
	s.flat = flat
	s.records = records
	s.mu.Unlock()
	s.logger.Info("search artifacts loaded", zap.Int("vectors", flat.Len()))
	return nil
}

func (s *Searcher) ensureLoaded() error {
	s.mu.RLock()
	loaded := s.flat != nil
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Rebuild()
}

// ResolveQueryDocs extracts model codes from the query and resolves them to
// document ids. Empty when the query carries no known code.
func (s *Searcher) ResolveQueryDocs(query string) []string {
	codes := s.codes.ExtractCodes(query)
	if len(codes) == 0 {
		return nil
	}
	docs := s.codes.Resolve(codes)
	if len(docs) == 0 {
		s.logger.Info("query codes matched no documents", zap.Strings("codes", codes))
		return nil
	}
	s.logger.Info("query codes resolved",
		zap.Strings("codes", codes),
		zap.Strings("doc_ids", docs))
	return docs
}

// Options narrows one search call.
type Options struct {
	TopK int
	// TypeFilter restricts hits to one chunk type when set.
	TypeFilter domain.ChunkType
	// DocIDs is an explicit document filter. When empty, codes found in the
	// query are resolved instead.
	DocIDs []string
}

// Search embeds the query, scores candidates and reranks them.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) (*domain.SearchResult, error) {
	start := time.Now()
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = s.topK
	}
	if err := s.ensureLoaded(); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("full", "error").Inc()
		return nil, err
	}

	docIDs := opts.DocIDs
	if len(docIDs) == 0 {
		docIDs = s.ResolveQueryDocs(query)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query}, s.dim)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(scopeLabel(docIDs), "error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		metrics.SearchRequestsTotal.WithLabelValues(scopeLabel(docIDs), "error").Inc()
		return nil, fmt.Errorf("%w: empty query embedding", domain.ErrEmbeddingProviderError)
	}
	qv := vectors[0]
	domain.L2Normalize(qv)

	keywords := ExtractKeywords(query)
	intent := detectIntent(keywords)

	s.mu.RLock()
	flat, records := s.flat, s.records
	s.mu.RUnlock()

	var candidates []domain.ScoredChunk
	scope := "full"
	if len(docIDs) > 0 {
		candidates = s.scanDocuments(flat, records, qv, docIDs, opts.TypeFilter, keywords, intent)
		if candidates == nil {
			s.logger.Warn("document filter matched no vectors, falling back to full search",
				zap.Strings("doc_ids", docIDs))
		} else {
			scope = "filtered"
		}
	}
	if candidates == nil {
		candidates = s.scanFull(flat, records, qv, topK, opts.TypeFilter, keywords, intent)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	total := len(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	metrics.SearchRequestsTotal.WithLabelValues(scope, "ok").Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("search completed",
		zap.String("scope", scope),
		zap.Int("candidates", total),
		zap.Int("returned", len(candidates)))

	return &domain.SearchResult{
		Query:      query,
		TopK:       topK,
		Candidates: total,
		Hits:       candidates,
	}, nil
}

// scanDocuments scores only the rows belonging to the filtered documents,
// reconstructing each vector by its stored position. Nil when no row matches
// the filter.
func (s *Searcher) scanDocuments(flat *index.Flat, records []domain.VectorRecord, qv []float32, docIDs []string, typeFilter domain.ChunkType, keywords []string, intent queryIntent) []domain.ScoredChunk {
	want := make(map[string]struct{}, len(docIDs))
	for _, d := range docIDs {
		want[d] = struct{}{}
	}

	matched := false
	candidates := []domain.ScoredChunk{}
	for i := range records {
		rec := &records[i]
		if _, ok := want[rec.DocID]; !ok {
			continue
		}
		matched = true
		row, ok := flat.At(rec.VectorIndex)
		if !ok {
			s.logger.Warn("vector reconstruct failed",
				zap.String("uid", rec.UID),
				zap.Int("vector_index", rec.VectorIndex))
			continue
		}
		if typeFilter != "" && rec.Type != typeFilter {
			continue
		}
		base := domain.Dot(qv, row)
		candidates = append(candidates, domain.ScoredChunk{
			Record:   *rec,
			RawScore: base,
			Score:    rerankScore(base, rec, keywords, intent),
		})
	}
	if !matched {
		return nil
	}
	return candidates
}

func (s *Searcher) scanFull(flat *index.Flat, records []domain.VectorRecord, qv []float32, topK int, typeFilter domain.ChunkType, keywords []string, intent queryIntent) []domain.ScoredChunk {
	preK := topK * s.presearch
	if preK > flat.Len() {
		preK = flat.Len()
	}
	hits := flat.Search(qv, preK)

	candidates := []domain.ScoredChunk{}
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(records) {
			s.logger.Warn("hit position outside metadata log", zap.Int("position", h.Position))
			continue
		}
		rec := &records[h.Position]
		if typeFilter != "" && rec.Type != typeFilter {
			continue
		}
		candidates = append(candidates, domain.ScoredChunk{
			Record:   *rec,
			RawScore: h.Score,
			Score:    rerankScore(h.Score, rec, keywords, intent),
		})
	}
	return candidates
}

func scopeLabel(docIDs []string) string {
	if len(docIDs) > 0 {
		return "filtered"
	}
	return "full"
}
