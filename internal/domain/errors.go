package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexNotInitialized signals a search against missing index artifacts.
	ErrIndexNotInitialized = errors.New("vector index not initialized")
	// ErrOutputExists signals that a stage output already exists and the run was not forced.
	ErrOutputExists = errors.New("output already exists")
	// ErrMissingCredentials signals absent provider credentials at startup.
	ErrMissingCredentials = errors.New("missing provider credentials")
	// ErrInvalidConfig signals a malformed configuration.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCaptionProviderError signals a caption provider failure.
	ErrCaptionProviderError = errors.New("caption provider error")
	// ErrParseProviderError signals a document parse provider failure.
	ErrParseProviderError = errors.New("parse provider error")
	// ErrVectorDimMismatch signals a vector dimension mismatch against the index.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrNoChunks signals that nothing was selected for embedding.
	ErrNoChunks = errors.New("no chunks to embed")
)

// ProviderStatusError wraps a provider sentinel with the HTTP status the provider returned.
type ProviderStatusError struct {
	Sentinel error
	Status   int
	Detail   string
}

func (e *ProviderStatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Sentinel.Error(), e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Sentinel.Error(), e.Status)
}

func (e *ProviderStatusError) Unwrap() error { return e.Sentinel }

// NewProviderStatus creates a provider error carrying the response status code.
func NewProviderStatus(sentinel error, status int, detail string) error {
	return &ProviderStatusError{Sentinel: sentinel, Status: status, Detail: detail}
}

// IsRetryable reports whether a provider error is worth retrying (rate limit or server side).
func IsRetryable(err error) bool {
	var pse *ProviderStatusError
	if errors.As(err, &pse) {
		return pse.Status == 429 || pse.Status >= 500
	}
	return errors.Is(err, ErrEmbeddingProviderError) ||
		errors.Is(err, ErrCaptionProviderError) ||
		errors.Is(err, ErrParseProviderError)
}
