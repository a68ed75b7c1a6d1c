package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/maltedev/realty-crawler/internal/models"
)

var (
	// ErrIndexUnavailable means the store cannot answer nearest-neighbour
	// queries natively and the caller should fall back to a full scan.
	ErrIndexUnavailable = errors.New("native vector index unavailable")
	ErrEmptyQuery       = errors.New("query vector is empty")
)

const DefaultLimit = 10

type Match struct {
	Listing *models.Listing `json:"listing"`
	Score   float64         `json:"score"`
}

// Index is the read side of a listing store.
type Index interface {
	VectorSearch(ctx context.Context, query []float32, limit int) ([]Match, error)
	Embedded(ctx context.Context) ([]*models.Listing, error)
}

// Norm is the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero length or their dimensions differ.
func Cosine(a, b []float32) float64 {
	return cosine(a, Norm(a), b)
}

func cosine(q []float32, qNorm float64, doc []float32) float64 {
	if len(q) == 0 || len(q) != len(doc) || qNorm == 0 {
		return 0
	}
	var dot, docSum float64
	for i := range q {
		dot += float64(q[i]) * float64(doc[i])
		docSum += float64(doc[i]) * float64(doc[i])
	}
	if docSum == 0 {
		return 0
	}
	score := dot / (qNorm * math.Sqrt(docSum))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

// TopK scores every listing that carries an embedding against query and
// returns the best limit matches in non-increasing score order. A
// non-positive limit returns every scored listing.
func TopK(query []float32, docs []*models.Listing, limit int) []Match {
	qNorm := Norm(query)

	matches := make([]Match, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || !doc.HasEmbedding() {
			continue
		}
		matches = append(matches, Match{Listing: doc, Score: cosine(query, qNorm, doc.Embedding)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

type Service struct {
	index  Index
	logger *slog.Logger
}

func NewService(index Index, logger *slog.Logger) *Service {
	return &Service{
		index:  index,
		logger: logger.With("component", "vector_search"),
	}
}

// Search asks the native index first and falls back to a full cosine scan
// when the index is unavailable. Any other index error is returned.
func (s *Service) Search(ctx context.Context, query []float32, limit int) ([]Match, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	matches, err := s.index.VectorSearch(ctx, query, limit)
	if err == nil {
		return matches, nil
	}
	if !errors.Is(err, ErrIndexUnavailable) {
		return nil, fmt.Errorf("failed to query vector index: %w", err)
	}

	s.logger.Info("native vector search unavailable, scanning", "reason", err)

	docs, err := s.index.Embedded(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded listings: %w", err)
	}

	return TopK(query, docs, limit), nil
}
