package index

import (
	"context"

	"github.com/kailas-cloud/manualdex/internal/embed"
)

// BatchEmbedder turns chunk texts into normalized vectors with per-batch
// retry and drop semantics.
type BatchEmbedder interface {
	EmbedAll(ctx context.Context, texts []string, dim int) (embed.Result, error)
}
