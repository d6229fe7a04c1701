package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/search"
)

// SessionSearcher is the conversation-scoped search surface the server exposes.
type SessionSearcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.Turn, error)
	Reset()
	CurrentDocIDs() []string
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the search API over chi.
type Server struct {
	session       SessionSearcher
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server around a search session.
func NewServer(session SessionSearcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		session: session,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrIndexNotInitialized, http.StatusServiceUnavailable, "index_not_initialized"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, "vector_dim_mismatch"),
		sentinelHandler(domain.ErrMissingCredentials, http.StatusServiceUnavailable, "missing_credentials"),
	}
	return s
}

// Routes mounts the API endpoints on a router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/search", s.Search)
	r.Post("/v1/session/reset", s.ResetSession)
	r.Get("/v1/session", s.GetSession)
	r.Get("/healthz", s.Healthz)
	r.Get("/metrics", s.Metrics)
}

// SearchRequest is the POST /v1/search body.
type SearchRequest struct {
	Query  string   `json:"query"`
	TopK   int      `json:"top_k,omitempty"`
	DocIDs []string `json:"doc_ids,omitempty"`
	// TextOnly drops figure chunks from the hits.
	TextOnly bool `json:"text_only,omitempty"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Query is required")
		return
	}

	var typeFilter domain.ChunkType
	if req.TextOnly {
		typeFilter = domain.ChunkText
	}

	turn, err := s.session.Search(r.Context(), req.Query, search.Options{
		TopK:       req.TopK,
		TypeFilter: typeFilter,
		DocIDs:     req.DocIDs,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, turn)
}

// SessionState is the GET /v1/session body.
type SessionState struct {
	DocIDs []string `json:"doc_ids"`
}

// GetSession handles GET /v1/session.
func (s *Server) GetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SessionState{DocIDs: s.session.CurrentDocIDs()})
}

// ResetSession handles POST /v1/session/reset.
func (s *Server) ResetSession(w http.ResponseWriter, _ *http.Request) {
	s.session.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrIndexNotInitialized,
		domain.ErrEmbeddingProviderError,
		domain.ErrVectorDimMismatch,
		domain.ErrMissingCredentials,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
