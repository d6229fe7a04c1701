package embed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/metrics"
)

// Batching defaults.
const (
	DefaultBatchSize  = 32
	DefaultMaxRetries = 3
	DefaultRetryBase  = 2 * time.Second
	DefaultWorkers    = 4
)

// Batcher wraps a provider with batching, bounded retries with exponential
// backoff, and L2 normalization. Batches run on a bounded worker pool; each
// batch's retry state is independent, and an exhausted batch is dropped
// without aborting the rest.
type Batcher struct {
	provider     domain.Embedder
	providerName string
	model        string
	batchSize    int
	maxRetries   int
	retryBase    time.Duration
	workers      int
	logger       *zap.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// BatcherConfig holds the batcher settings. Zero values fall back to defaults.
type BatcherConfig struct {
	Provider     domain.Embedder
	ProviderName string
	Model        string
	BatchSize    int
	MaxRetries   int
	RetryBase    time.Duration
	Workers      int
	Logger       *zap.Logger
}

// NewBatcher creates a batching embedder.
func NewBatcher(cfg BatcherConfig) *Batcher {
	b := &Batcher{
		provider:     cfg.Provider,
		providerName: cfg.ProviderName,
		model:        cfg.Model,
		batchSize:    cfg.BatchSize,
		maxRetries:   cfg.MaxRetries,
		retryBase:    cfg.RetryBase,
		workers:      cfg.Workers,
		logger:       cfg.Logger,
		sleep:        sleepCtx,
	}
	if b.batchSize <= 0 {
		b.batchSize = DefaultBatchSize
	}
	if b.maxRetries <= 0 {
		b.maxRetries = DefaultMaxRetries
	}
	if b.retryBase <= 0 {
		b.retryBase = DefaultRetryBase
	}
	if b.workers <= 0 {
		b.workers = DefaultWorkers
	}
	return b
}

// Result maps successfully embedded inputs back to their original positions.
// Dropped counts whole batches that exhausted retries.
type Result struct {
	Positions []int
	Vectors   [][]float32
	Dropped   int
}

// EmbedAll embeds every text in batches and L2-normalizes the vectors so
// inner-product search equals cosine similarity. Failed batches are dropped
// and logged; the caller decides whether zero successes is fatal.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string, dim int) (Result, error) {
	if len(texts) == 0 {
		return Result{}, nil
	}

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for i := 0; i < len(texts); i += b.batchSize {
		end := i + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: i, texts: texts[i:end]})
	}

	type outcome struct {
		start   int
		vectors [][]float32
	}
	outcomes := make([]outcome, len(batches))
	dropped := make([]bool, len(batches))

	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup
	for bi, bt := range batches {
		wg.Add(1)
		go func(bi int, bt batch) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vectors, err := b.embedWithRetry(ctx, bt.texts, dim, bi)
			if err != nil {
				metrics.EmbeddingBatchesDroppedTotal.WithLabelValues(b.providerName, b.model).Inc()
				b.logger.Warn("embedding batch dropped",
					zap.Int("batch", bi),
					zap.Int("size", len(bt.texts)),
					zap.Error(err),
				)
				dropped[bi] = true
				return
			}
			outcomes[bi] = outcome{start: bt.start, vectors: vectors}
		}(bi, bt)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("embedding cancelled: %w", err)
	}

	var res Result
	for bi := range batches {
		if dropped[bi] {
			res.Dropped++
			continue
		}
		o := outcomes[bi]
		for j, v := range o.vectors {
			domain.L2Normalize(v)
			res.Positions = append(res.Positions, o.start+j)
			res.Vectors = append(res.Vectors, v)
		}
	}
	return res, nil
}

// embedWithRetry retries a single batch with exponential backoff.
func (b *Batcher) embedWithRetry(ctx context.Context, texts []string, dim, batchNo int) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		vectors, err := b.provider.Embed(ctx, texts, dim)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("batch %d: %d vectors for %d texts: %w",
					batchNo, len(vectors), len(texts), domain.ErrEmbeddingProviderError)
			}
			return vectors, nil
		}
		lastErr = err

		if attempt == b.maxRetries {
			break
		}
		backoff := b.retryBase * (1 << (attempt - 1))
		b.logger.Warn("embedding batch failed, retrying",
			zap.Int("batch", batchNo),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := b.sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("retry wait: %w", err)
		}
	}
	return nil, fmt.Errorf("batch %d exhausted %d attempts: %w", batchNo, b.maxRetries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
