package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/storage"
	"github.com/maltedev/realty-crawler/internal/vector"
)

type fakeCycles struct {
	last  *models.CycleResult
	count int
}

func (f fakeCycles) Cycles() int {
	return f.count
}

func (f fakeCycles) LastCycle() (models.CycleResult, bool) {
	if f.last == nil {
		return models.CycleResult{}, false
	}
	return *f.last, true
}

type brokenStats struct{}

func (brokenStats) Stats(context.Context) (map[string]int, error) {
	return nil, errors.New("connection refused")
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func seededStore(t *testing.T) *storage.FileStore {
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "listings.json"))
	require.NoError(t, err)

	docs := []struct {
		url string
		vec []float32
	}{
		{"https://www.olx.ua/d/uk/obyavlenie/a-IDa.html", []float32{1, 0}},
		{"https://www.olx.ua/d/uk/obyavlenie/b-IDb.html", []float32{0.7, 0.7}},
		{"https://www.olx.ua/d/uk/obyavlenie/c-IDc.html", []float32{0, 1}},
	}
	for _, d := range docs {
		l := &models.Listing{Source: "olx", ExternalURL: d.url, Embedding: d.vec}
		require.NoError(t, l.Normalize())
		_, err := store.Create(context.Background(), l)
		require.NoError(t, err)
	}
	return store
}

func newTestRouter(t *testing.T, stats StatsSource, cycles CycleSource, embedder TextEmbedder) http.Handler {
	store := seededStore(t)
	if stats == nil {
		stats = store
	}
	h := NewHandlers(stats, cycles, vector.NewService(store, slog.Default()), embedder, slog.Default())
	return NewRouter(h)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		rec, body := do(t, newTestRouter(t, nil, fakeCycles{count: 4}, nil), http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, 4.0, body["cycles"])
		assert.Equal(t, 3.0, body["listings"].(map[string]any)["total"])
	})

	t.Run("store down", func(t *testing.T) {
		rec, body := do(t, newTestRouter(t, brokenStats{}, fakeCycles{}, nil), http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "error", body["status"])
	})
}

func TestLastCycle(t *testing.T) {
	rec, _ := do(t, newTestRouter(t, nil, fakeCycles{}, nil), http.MethodGet, "/api/v1/cycles/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	last := &models.CycleResult{
		ID:         uuid.New(),
		StartedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 14, 12, 4, 0, 0, time.UTC),
		Adapters:   []models.AdapterResult{{Site: "olx", Success: true, Processed: 7}},
	}
	rec, body := do(t, newTestRouter(t, nil, fakeCycles{last: last}, nil), http.MethodGet, "/api/v1/cycles/last", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, last.ID.String(), body["id"])
	adapters := body["adapters"].([]any)
	require.Len(t, adapters, 1)
	assert.Equal(t, 7.0, adapters[0].(map[string]any)["processed"])
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		embedder   TextEmbedder
		wantStatus int
		wantFirst  string
		wantCount  float64
	}{
		{
			name:       "vector query",
			body:       `{"vector":[1,0],"limit":2}`,
			wantStatus: http.StatusOK,
			wantFirst:  "https://www.olx.ua/d/uk/obyavlenie/a-IDa.html",
			wantCount:  2,
		},
		{
			name:       "text query",
			body:       `{"query":"квартира з видом"}`,
			embedder:   fakeEmbedder{vec: []float32{0, 1}},
			wantStatus: http.StatusOK,
			wantFirst:  "https://www.olx.ua/d/uk/obyavlenie/c-IDc.html",
			wantCount:  3,
		},
		{
			name:       "empty",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "text without embedder",
			body:       `{"query":"будинок"}`,
			wantStatus: http.StatusNotImplemented,
		},
		{
			name:       "embedder failure",
			body:       `{"query":"будинок"}`,
			embedder:   fakeEmbedder{err: errors.New("429 rate limited")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "malformed",
			body:       `{"vector":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, nil, fakeCycles{}, tt.embedder)
			rec, body := do(t, router, http.MethodPost, "/api/v1/search", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				assert.NotEmpty(t, body["error"])
				return
			}

			assert.Equal(t, tt.wantCount, body["count"])
			results := body["results"].([]any)
			first := results[0].(map[string]any)
			listing := first["listing"].(map[string]any)
			assert.Equal(t, tt.wantFirst, listing["external_url"])
			assert.NotContains(t, listing, "vector_embedding")
			assert.InDelta(t, 1.0, first["score"], 1e-9)
		})
	}
}
