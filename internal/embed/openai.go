package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/metrics"
)

// OpenAIEmbedder is an embedding provider using the OpenAI-compatible API.
type OpenAIEmbedder struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	provider string
	logger   *zap.Logger
}

// OpenAIConfig holds the embedding provider settings.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
	Logger   *zap.Logger
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedding provider.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    openai.EmbeddingModel(cfg.Model),
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Embed implements domain.Embedder: one vector per input, in input order,
// with transport-level metrics.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if dim > 0 {
		req.Dimensions = dim
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
		return nil, parseAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
		return nil, fmt.Errorf("got %d vectors for %d texts: %w",
			len(resp.Data), len(texts), domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, string(e.model)).Observe(duration.Seconds())
	metrics.EmbeddingTextsTotal.WithLabelValues(e.provider, string(e.model)).Add(float64(len(texts)))

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("vector index %d out of range: %w", d.Index, domain.ErrEmbeddingProviderError)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *OpenAIEmbedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors wrap domain.ErrEmbeddingProviderError for classification.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return domain.NewProviderStatus(domain.ErrEmbeddingProviderError, reqErr.HTTPStatusCode, detail)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderStatus(domain.ErrEmbeddingProviderError, apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("embedding request failed: %w", domain.ErrEmbeddingProviderError)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
