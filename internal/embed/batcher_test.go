package embed

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

// fakeEmbedder returns deterministic vectors and fails selected calls.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failFor  map[string]int // first text of batch -> remaining failures
	alwaysOK bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, dim int) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if !f.alwaysOK && len(texts) > 0 {
		if n, ok := f.failFor[texts[0]]; ok && n > 0 {
			f.failFor[texts[0]] = n - 1
			return nil, domain.NewProviderStatus(domain.ErrEmbeddingProviderError, 503, "overloaded")
		}
	}

	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, dim)
		v[0] = float32(len(texts[i])) // deterministic, non-zero
		v[1] = 3
		out[i] = v
	}
	return out, nil
}

func newTestBatcher(provider domain.Embedder, batchSize, retries int) *Batcher {
	b := NewBatcher(BatcherConfig{
		Provider:     provider,
		ProviderName: "test",
		Model:        "test-model",
		BatchSize:    batchSize,
		MaxRetries:   retries,
		RetryBase:    time.Millisecond,
		Workers:      2,
		Logger:       zap.NewNop(),
	})
	b.sleep = func(context.Context, time.Duration) error { return nil }
	return b
}

func TestEmbedAll_NormalizesAndOrders(t *testing.T) {
	fake := &fakeEmbedder{alwaysOK: true}
	b := newTestBatcher(fake, 2, 3)

	texts := []string{"aa", "bbb", "cccc", "ddddd", "e"}
	res, err := b.EmbedAll(context.Background(), texts, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Dropped != 0 {
		t.Errorf("dropped = %d, want 0", res.Dropped)
	}
	if len(res.Vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(res.Vectors), len(texts))
	}
	for i, pos := range res.Positions {
		if pos != i {
			t.Errorf("positions[%d] = %d, want %d", i, pos, i)
		}
	}
	for i, v := range res.Vectors {
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if math.Abs(norm-1.0) > 1e-5 {
			t.Errorf("vector %d norm^2 = %f, want 1", i, norm)
		}
	}
}

func TestEmbedAll_RetriesTransientFailure(t *testing.T) {
	fake := &fakeEmbedder{failFor: map[string]int{"aa": 2}}
	b := newTestBatcher(fake, 2, 3)

	res, err := b.EmbedAll(context.Background(), []string{"aa", "bb"}, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Dropped != 0 {
		t.Errorf("dropped = %d, want 0 after retries", res.Dropped)
	}
	if len(res.Vectors) != 2 {
		t.Errorf("got %d vectors, want 2", len(res.Vectors))
	}
}

func TestEmbedAll_DropsExhaustedBatchContinuesRest(t *testing.T) {
	// First batch fails forever; the second succeeds.
	fake := &fakeEmbedder{failFor: map[string]int{"aa": 99}}
	b := newTestBatcher(fake, 2, 3)

	texts := []string{"aa", "bb", "cc", "dd"}
	res, err := b.EmbedAll(context.Background(), texts, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", res.Dropped)
	}
	if len(res.Vectors) != 2 {
		t.Fatalf("got %d vectors, want 2 from surviving batch", len(res.Vectors))
	}
	if res.Positions[0] != 2 || res.Positions[1] != 3 {
		t.Errorf("positions = %v, want [2 3]", res.Positions)
	}
}

func TestEmbedAll_Empty(t *testing.T) {
	b := newTestBatcher(&fakeEmbedder{alwaysOK: true}, 2, 3)
	res, err := b.EmbedAll(context.Background(), nil, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Vectors) != 0 || res.Dropped != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestIsRetryable(t *testing.T) {
	err := domain.NewProviderStatus(domain.ErrEmbeddingProviderError, 429, "rate limited")
	if !domain.IsRetryable(err) {
		t.Error("429 must be retryable")
	}
	err = domain.NewProviderStatus(domain.ErrEmbeddingProviderError, 400, "bad request")
	if domain.IsRetryable(err) {
		t.Error("400 must not be retryable")
	}
	if domain.IsRetryable(errors.New("plain")) {
		t.Error("unknown errors must not be retryable")
	}
}
