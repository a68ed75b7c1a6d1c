package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/vector"
)

var (
	ErrNotFound  = errors.New("listing not found")
	ErrDuplicate = errors.New("listing already stored")
)

// Store is the persistent listing collection keyed by external URL. It must
// be safe for concurrent use by several adapters.
type Store interface {
	Exists(ctx context.Context, externalURL string) (bool, error)
	Create(ctx context.Context, l *models.Listing) (uuid.UUID, error)
	FindOne(ctx context.Context, externalURL string) (*models.Listing, error)
	Embedded(ctx context.Context) ([]*models.Listing, error)
	VectorSearch(ctx context.Context, query []float32, limit int) ([]vector.Match, error)
	Stats(ctx context.Context) (map[string]int, error)
}

// Gate answers whether a detail URL was already stored. It is consulted
// before any detail page is opened.
type Gate struct {
	store Store
}

func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

func (g *Gate) Exists(ctx context.Context, externalURL string) (bool, error) {
	ok, err := g.store.Exists(ctx, externalURL)
	if err != nil {
		return false, fmt.Errorf("failed to check listing %s: %w", externalURL, err)
	}
	return ok, nil
}

// ListingEmbedder computes a listing's vector.
type ListingEmbedder interface {
	Embed(ctx context.Context, l *models.Listing) ([]float32, error)
}

// Sink writes new listings together with their embedding.
type Sink struct {
	store    Store
	embedder ListingEmbedder
	logger   *slog.Logger
}

// NewSink creates a sink. A nil embedder stores listings without vectors.
func NewSink(store Store, embedder ListingEmbedder, logger *slog.Logger) *Sink {
	return &Sink{
		store:    store,
		embedder: embedder,
		logger:   logger.With("component", "persistence"),
	}
}

// Persist embeds and writes l. A failed embedding is logged and the listing
// is written without one. The returned id is only valid when err is nil.
func (s *Sink) Persist(ctx context.Context, l *models.Listing) (uuid.UUID, error) {
	l.Embedding = nil
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, l)
		if err != nil {
			s.logger.Warn("storing listing without embedding",
				"fault", "external_service",
				"url", l.ExternalURL,
				"error", err)
		} else {
			l.Embedding = vec
		}
	}

	id, err := s.store.Create(ctx, l)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to store listing %s: %w", l.ExternalURL, err)
	}
	l.ID = id

	s.logger.Info("listing stored",
		"id", id,
		"url", l.ExternalURL,
		"embedded", l.HasEmbedding())

	return id, nil
}
