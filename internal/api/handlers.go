package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/vector"
)

const maxSearchLimit = 100

type StatsSource interface {
	Stats(ctx context.Context) (map[string]int, error)
}

type CycleSource interface {
	LastCycle() (models.CycleResult, bool)
	Cycles() int
}

type Searcher interface {
	Search(ctx context.Context, query []float32, limit int) ([]vector.Match, error)
}

// TextEmbedder turns a free-text query into a vector.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type Handlers struct {
	stats    StatsSource
	cycles   CycleSource
	search   Searcher
	embedder TextEmbedder
	logger   *slog.Logger
}

// NewHandlers wires the read-only endpoints. A nil embedder disables text
// queries.
func NewHandlers(stats StatsSource, cycles CycleSource, search Searcher, embedder TextEmbedder, logger *slog.Logger) *Handlers {
	return &Handlers{
		stats:    stats,
		cycles:   cycles,
		search:   search,
		embedder: embedder,
		logger:   logger.With("component", "api"),
	}
}

// Health reports store reachability and listing counts per status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("health check failed", "fault", "persistence", "error", err)
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "error",
			"error":  "store unavailable",
		})
		return
	}

	health := map[string]any{
		"status":   "ok",
		"listings": counts,
		"cycles":   h.cycles.Cycles(),
	}
	if last, ok := h.cycles.LastCycle(); ok {
		health["last_cycle"] = map[string]any{
			"id":          last.ID,
			"finished_at": last.FinishedAt,
			"skipped":     last.Skipped,
		}
	}

	h.respondJSON(w, http.StatusOK, health)
}

func (h *Handlers) LastCycle(w http.ResponseWriter, r *http.Request) {
	last, ok := h.cycles.LastCycle()
	if !ok {
		h.respondError(w, http.StatusNotFound, "no cycle has run yet")
		return
	}
	h.respondJSON(w, http.StatusOK, last)
}

// SearchRequest carries either a vector or a text query.
type SearchRequest struct {
	Vector []float32 `json:"vector,omitempty"`
	Query  string    `json:"query,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

type SearchResponse struct {
	Results []vector.Match `json:"results"`
	Count   int            `json:"count"`
}

func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit > maxSearchLimit {
		req.Limit = maxSearchLimit
	}

	query := req.Vector
	if len(query) == 0 && req.Query != "" {
		if h.embedder == nil {
			h.respondError(w, http.StatusNotImplemented, "text queries are not configured")
			return
		}
		vec, err := h.embedder.EmbedText(r.Context(), req.Query)
		if err != nil {
			h.logger.Error("failed to embed query", "fault", "external_service", "error", err)
			h.respondError(w, http.StatusBadGateway, "failed to embed query")
			return
		}
		query = vec
	}

	matches, err := h.search.Search(r.Context(), query, req.Limit)
	if errors.Is(err, vector.ErrEmptyQuery) {
		h.respondError(w, http.StatusBadRequest, "either vector or query is required")
		return
	}
	if err != nil {
		h.logger.Error("search failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	results := make([]vector.Match, len(matches))
	for i, m := range matches {
		results[i] = vector.Match{Listing: m.Listing.WithoutEmbedding(), Score: m.Score}
	}
	h.respondJSON(w, http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
