// Package chi is the HTTP transport: request decoding, the JSON
// shapes of the screening API and the mapping from domain errors to
// status codes.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/domain"
	healthuc "github.com/sanctex-io/sanctex/internal/usecase/health"
	mirroruc "github.com/sanctex-io/sanctex/internal/usecase/mirror"
	screenuc "github.com/sanctex-io/sanctex/internal/usecase/screen"
)

const (
	maxScreenTopK  = 100
	maxMirrorBatch = 1000
)

type errorCode string

const (
	codeBadRequest           errorCode = "bad_request"
	codeUnauthorized         errorCode = "unauthorized"
	codeInvalidQuery         errorCode = "invalid_query"
	codeRateLimited          errorCode = "rate_limited"
	codeInvalidConfiguration errorCode = "invalid_configuration"
	codeBackendUnavailable   errorCode = "backend_unavailable"
	codeInternalError        errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the screening facade over HTTP.
type Server struct {
	screen        *screenuc.Service
	mirror        *mirroruc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(screen *screenuc.Service, mirror *mirroruc.Service, logger *zap.Logger) *Server {
	s := &Server{
		screen: screen,
		mirror: mirror,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrInvalidConfiguration, http.StatusBadRequest, codeInvalidConfiguration),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusServiceUnavailable, codeBackendUnavailable),
	}
	return s
}

// Routes mounts the API on a chi router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/screen", s.Screen)
	r.Get("/v1/health", s.HealthCheck)
	r.Get("/v1/stats", s.Stats)
	r.Get("/v1/config", s.GetConfig)
	r.Put("/v1/config", s.UpdateConfig)
	r.Delete("/v1/cache/results", s.InvalidateResults)
	r.Delete("/v1/cache/embeddings", s.ClearEmbeddings)
	r.Post("/v1/cache/cleanup", s.CleanupCaches)
	r.Post("/v1/fallback/documents", s.LoadFallback)
	r.Delete("/v1/fallback/documents/{id}", s.RemoveFallback)
	r.Get("/metrics", s.Metrics)
}

type screenOptions struct {
	Mode                string              `json:"mode,omitempty"`
	TopK                int                 `json:"top_k,omitempty"`
	Threshold           *float64            `json:"threshold,omitempty"`
	EntityTypes         []string            `json:"entity_types,omitempty"`
	MetadataFilters     map[string][]string `json:"metadata_filters,omitempty"`
	EnableEscalation    *bool               `json:"enable_escalation,omitempty"`
	EscalationThreshold float64             `json:"escalation_threshold,omitempty"`
	EnableDeduplication *bool               `json:"enable_deduplication,omitempty"`
	ClientID            string              `json:"client_id,omitempty"`
}

type screenRequest struct {
	Query   string         `json:"query"`
	RawText string         `json:"raw_text,omitempty"`
	Options *screenOptions `json:"options,omitempty"`
}

type candidateItem struct {
	DocID       string            `json:"doc_id"`
	Score       float64           `json:"score"`
	Text        string            `json:"text,omitempty"`
	EntityType  string            `json:"entity_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SearchMode  domain.Mode       `json:"search_mode"`
	MatchFields []string          `json:"match_fields,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
	Signals     map[string]any    `json:"signals,omitempty"`
}

type screenResponse struct {
	Candidates []candidateItem     `json:"candidates"`
	Total      int                 `json:"total"`
	Trace      *domain.SearchTrace `json:"trace,omitempty"`
}

// Screen handles POST /v1/screen.
func (s *Server) Screen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, "query is required")
		return
	}

	opts, err := optsFromRequest(r, req.Options)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	cands, trace, err := s.screen.Search(r.Context(), req.Query, req.RawText, opts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]candidateItem, len(cands))
	for i := range cands {
		items[i] = candidateToItem(&cands[i])
	}

	writeJSON(w, http.StatusOK, screenResponse{
		Candidates: items,
		Total:      len(items),
		Trace:      trace,
	})
}

// HealthCheck handles GET /v1/health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.screen.HealthCheck(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Stats handles GET /v1/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.screen.Metrics())
}

type configPayload struct {
	RequestsPerMinute   int     `json:"requests_per_minute"`
	ResultCacheSize     int     `json:"result_cache_size"`
	ResultCacheTTLSec   int     `json:"result_cache_ttl_sec"`
	DefaultThreshold    float64 `json:"default_threshold"`
	EscalationThreshold float64 `json:"escalation_threshold"`
}

func payloadFromConfig(cfg screenuc.Config) configPayload {
	return configPayload{
		RequestsPerMinute:   cfg.RequestsPerMinute,
		ResultCacheSize:     cfg.ResultCacheSize,
		ResultCacheTTLSec:   int(cfg.ResultCacheTTL / time.Second),
		DefaultThreshold:    cfg.DefaultThreshold,
		EscalationThreshold: cfg.EscalationThreshold,
	}
}

func configFromPayload(p configPayload) screenuc.Config {
	return screenuc.Config{
		RequestsPerMinute:   p.RequestsPerMinute,
		ResultCacheSize:     p.ResultCacheSize,
		ResultCacheTTL:      time.Duration(p.ResultCacheTTLSec) * time.Second,
		DefaultThreshold:    p.DefaultThreshold,
		EscalationThreshold: p.EscalationThreshold,
	}
}

// GetConfig handles GET /v1/config.
func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, payloadFromConfig(s.screen.Config()))
}

// UpdateConfig handles PUT /v1/config. Omitted fields keep their
// current values; a rejected payload leaves the old config in effect.
func (s *Server) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	payload := payloadFromConfig(s.screen.Config())
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := s.screen.UpdateConfiguration(configFromPayload(payload)); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payloadFromConfig(s.screen.Config()))
}

// InvalidateResults handles DELETE /v1/cache/results. An empty
// pattern removes every cached result list.
func (s *Server) InvalidateResults(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	removed := s.screen.InvalidateSearchCache(pattern)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// ClearEmbeddings handles DELETE /v1/cache/embeddings.
func (s *Server) ClearEmbeddings(w http.ResponseWriter, r *http.Request) {
	s.screen.ClearEmbeddingCache()
	w.WriteHeader(http.StatusNoContent)
}

// CleanupCaches handles POST /v1/cache/cleanup.
func (s *Server) CleanupCaches(w http.ResponseWriter, r *http.Request) {
	live := s.screen.CleanupExpiredCacheEntries()
	writeJSON(w, http.StatusOK, map[string]int{"live_entries": live})
}

type mirrorDocument struct {
	DocID      string            `json:"doc_id"`
	Text       string            `json:"text"`
	EntityType string            `json:"entity_type,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type loadFallbackRequest struct {
	Documents []mirrorDocument `json:"documents"`
}

// LoadFallback handles POST /v1/fallback/documents: upserts watchlist
// entries into the local degraded-mode indexes.
func (s *Server) LoadFallback(w http.ResponseWriter, r *http.Request) {
	var req loadFallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 || len(req.Documents) > maxMirrorBatch {
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Sprintf("documents count must be between 1 and %d", maxMirrorBatch))
		return
	}

	entries := make([]mirroruc.Entry, len(req.Documents))
	for i, d := range req.Documents {
		entries[i] = mirroruc.Entry{
			DocID:      d.DocID,
			Text:       d.Text,
			EntityType: d.EntityType,
			Metadata:   d.Metadata,
		}
	}

	loaded, failed := s.mirror.Load(r.Context(), entries)
	writeJSON(w, http.StatusOK, map[string]int{
		"loaded": loaded,
		"failed": failed,
	})
}

// RemoveFallback handles DELETE /v1/fallback/documents/{id}.
func (s *Server) RemoveFallback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "document id is required")
		return
	}
	s.mirror.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// optsFromRequest builds SearchOpts from the request body, falling
// back to the remote address as the rate-limit client when the caller
// did not identify itself.
func optsFromRequest(r *http.Request, in *screenOptions) (domain.SearchOpts, error) {
	opts := domain.DefaultOpts()
	if in == nil {
		opts.ClientID = clientFromRequest(r, "")
		return opts, nil
	}

	if in.Mode != "" {
		opts.Mode = domain.Mode(strings.ToUpper(in.Mode))
	}
	if in.TopK != 0 {
		if in.TopK < 0 || in.TopK > maxScreenTopK {
			return domain.SearchOpts{}, errors.New("top_k must be between 1 and 100")
		}
		opts.TopK = in.TopK
	}
	if in.Threshold != nil {
		if *in.Threshold < 0 || *in.Threshold > 1 {
			return domain.SearchOpts{}, errors.New("threshold must be within [0, 1]")
		}
		opts.Threshold = *in.Threshold
	}
	opts.EntityTypes = in.EntityTypes
	opts.MetadataFilters = in.MetadataFilters
	if in.EnableEscalation != nil {
		opts.EnableEscalation = *in.EnableEscalation
	}
	if in.EscalationThreshold > 0 {
		opts.EscalationThreshold = in.EscalationThreshold
	}
	if in.EnableDeduplication != nil {
		opts.EnableDeduplication = *in.EnableDeduplication
	}
	opts.ClientID = clientFromRequest(r, in.ClientID)
	return opts, nil
}

func clientFromRequest(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func candidateToItem(c *domain.Candidate) candidateItem {
	return candidateItem{
		DocID:       c.DocID,
		Score:       c.Score,
		Text:        c.Text,
		EntityType:  c.EntityType,
		Metadata:    c.Metadata,
		SearchMode:  c.SearchMode,
		MatchFields: c.MatchFields,
		Confidence:  c.Confidence,
		Signals:     c.Trace,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrRateLimited,
		domain.ErrInvalidConfiguration,
		domain.ErrBackendUnavailable,
		domain.ErrTierTimeout,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
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
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
