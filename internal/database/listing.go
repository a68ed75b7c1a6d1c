package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/storage"
	"github.com/maltedev/realty-crawler/internal/vector"
)

const listingColumns = `
	id, source, external_id, external_url, title, description,
	price_amount, price_currency, price_uah, price_usd, price_eur,
	area, rooms, floor, floors, location, images, phone, tags,
	property_type, status, parsed_at, is_active, vector_embedding`

// SQLSTATE codes meaning the vector type, operator or table is missing.
var indexUnavailableCodes = map[string]bool{
	"42883": true, // undefined_function
	"42704": true, // undefined_object
	"42P01": true, // undefined_table
	"0A000": true, // feature_not_supported
}

const uniqueViolation = "23505"

// ListingStore is the PostgreSQL implementation of storage.Store.
type ListingStore struct {
	db   *DB
	dims int
}

var _ storage.Store = (*ListingStore)(nil)

// NewListingStore creates the store. dims is the embedding size the HNSW
// index was built for; zero searches without a sized cast.
func NewListingStore(db *DB, dims int) *ListingStore {
	return &ListingStore{db: db, dims: dims}
}

func (s *ListingStore) Exists(ctx context.Context, externalURL string) (bool, error) {
	var exists bool
	err := s.db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM listings WHERE external_url = $1)`, externalURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check listing: %w", err)
	}
	return exists, nil
}

func (s *ListingStore) Create(ctx context.Context, l *models.Listing) (uuid.UUID, error) {
	id := uuid.New()

	var (
		amount   *float64
		currency *string
		uah      *int64
		usd      *int64
		eur      *int64
	)
	if l.Price != nil {
		amount, currency = &l.Price.Amount, &l.Price.Currency
	}
	if l.Canonical != nil {
		uah, usd, eur = &l.Canonical.UAH, &l.Canonical.USD, &l.Canonical.EUR
	}
	parsedAt := l.ParsedAt
	if parsedAt.IsZero() {
		parsedAt = time.Now()
	}

	query := `
		INSERT INTO listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`

	_, err := s.db.pool.Exec(ctx, query,
		id, l.Source, l.ExternalID, l.ExternalURL, l.Title, l.Description,
		amount, currency, uah, usd, eur,
		l.Area, l.Rooms, l.Floor, l.Floors, l.Location, nonNil(l.Images), l.Phone, nonNil(l.Tags),
		l.PropertyType, string(l.Status), parsedAt, l.IsActive, embeddingParam(l.Embedding),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return uuid.Nil, fmt.Errorf("%w: %s", storage.ErrDuplicate, l.ExternalURL)
		}
		return uuid.Nil, fmt.Errorf("failed to insert listing: %w", err)
	}

	return id, nil
}

func (s *ListingStore) FindOne(ctx context.Context, externalURL string) (*models.Listing, error) {
	row := s.db.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE external_url = $1`, externalURL)

	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, externalURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

func (s *ListingStore) Embedded(ctx context.Context) ([]*models.Listing, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE vector_embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedded listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// VectorSearch runs the pgvector cosine-distance query. A missing extension
// or operator is reported as vector.ErrIndexUnavailable.
func (s *ListingStore) VectorSearch(ctx context.Context, query []float32, limit int) ([]vector.Match, error) {
	rows, err := s.db.pool.Query(ctx, vectorSearchQuery(s.dims), vectorLiteral(query), limit)
	if err != nil {
		return nil, classifyVectorError(err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var score float64
		l, err := scanListing(rows, &score)
		if err != nil {
			return nil, classifyVectorError(err)
		}
		matches = append(matches, vector.Match{Listing: l, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyVectorError(err)
	}
	return matches, nil
}

func vectorSearchQuery(dims int) string {
	cast := "vector"
	if dims > 0 {
		cast = fmt.Sprintf("vector(%d)", dims)
	}
	return `
		SELECT ` + listingColumns + `,
			(1 - ((vector_embedding::` + cast + `) <=> $1::` + cast + `))::DOUBLE PRECISION AS score
		FROM listings
		WHERE vector_embedding IS NOT NULL
		ORDER BY (vector_embedding::` + cast + `) <=> $1::` + cast + ` ASC
		LIMIT $2`
}

func (s *ListingStore) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT status, COUNT(*) FROM listings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	total := 0
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan listing stats: %w", err)
		}
		stats[status] = count
		total += count
	}
	stats["total"] = total
	return stats, rows.Err()
}

func classifyVectorError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && indexUnavailableCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s", vector.ErrIndexUnavailable, pgErr.Message)
	}
	return fmt.Errorf("failed to run vector search: %w", err)
}

func scanListing(row pgx.Row, extra ...any) (*models.Listing, error) {
	var (
		l         models.Listing
		amount    *float64
		currency  *string
		uah       *int64
		usd       *int64
		eur       *int64
		status    string
		embedding []float32
	)

	dest := []any{
		&l.ID, &l.Source, &l.ExternalID, &l.ExternalURL, &l.Title, &l.Description,
		&amount, &currency, &uah, &usd, &eur,
		&l.Area, &l.Rooms, &l.Floor, &l.Floors, &l.Location, &l.Images, &l.Phone, &l.Tags,
		&l.PropertyType, &status, &l.ParsedAt, &l.IsActive, &embedding,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if amount != nil && currency != nil {
		l.Price = &models.Price{Amount: *amount, Currency: *currency}
	}
	if uah != nil && usd != nil && eur != nil {
		l.Canonical = &models.CanonicalPrice{UAH: *uah, USD: *usd, EUR: *eur}
	}
	l.Status = models.Status(status)
	if len(embedding) > 0 {
		l.Embedding = embedding
	}

	return &l, nil
}

func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// embeddingParam keeps an absent embedding NULL rather than an empty array.
func embeddingParam(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
