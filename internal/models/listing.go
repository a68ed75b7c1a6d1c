package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxImages = 10

var ErrInvalidListing = errors.New("invalid listing")

type Status string

const (
	StatusNew       Status = "new"
	StatusProcessed Status = "processed"
	StatusConverted Status = "converted"
)

// Price is the amount and currency exactly as scraped.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// CanonicalPrice is the UAH/USD/EUR trio computed once at fetch time.
type CanonicalPrice struct {
	UAH int64 `json:"price_uah"`
	USD int64 `json:"price_usd"`
	EUR int64 `json:"price_eur"`
}

type Listing struct {
	ID           uuid.UUID       `json:"id"`
	Source       string          `json:"source"`
	ExternalID   string          `json:"external_id"`
	ExternalURL  string          `json:"external_url"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        *Price          `json:"price,omitempty"`
	Canonical    *CanonicalPrice `json:"canonical,omitempty"`
	Area         *float64        `json:"area,omitempty"`
	Rooms        *int            `json:"rooms,omitempty"`
	Floor        *int            `json:"floor,omitempty"`
	Floors       *int            `json:"floors,omitempty"`
	Location     *string         `json:"location,omitempty"`
	Images       []string        `json:"images"`
	Phone        *string         `json:"phone,omitempty"`
	Tags         []string        `json:"tags"`
	PropertyType string          `json:"property_type"`
	Status       Status          `json:"status"`
	ParsedAt     time.Time       `json:"parsed_at"`
	IsActive     bool            `json:"is_active"`
	Embedding    []float32       `json:"vector_embedding,omitempty"`
}

// Normalize validates the record at the extraction boundary. Absent or
// nonsensical optional values are dropped instead of failing the record.
func (l *Listing) Normalize() error {
	l.ExternalURL = strings.TrimSpace(l.ExternalURL)
	l.Source = strings.TrimSpace(l.Source)
	if l.ExternalURL == "" {
		return fmt.Errorf("%w: external url is required", ErrInvalidListing)
	}
	if l.Source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidListing)
	}

	l.Title = strings.TrimSpace(l.Title)
	l.Description = strings.TrimSpace(l.Description)

	if l.Price != nil && (l.Price.Amount <= 0 || l.Price.Currency == "") {
		l.Price = nil
		l.Canonical = nil
	}
	if l.Area != nil && *l.Area <= 0 {
		l.Area = nil
	}
	if l.Rooms != nil && *l.Rooms <= 0 {
		l.Rooms = nil
	}
	if l.Floors != nil && *l.Floors <= 0 {
		l.Floors = nil
	}
	if l.Location != nil && strings.TrimSpace(*l.Location) == "" {
		l.Location = nil
	}
	if l.Phone != nil && strings.TrimSpace(*l.Phone) == "" {
		l.Phone = nil
	}

	l.Images = uniqueStrings(l.Images, MaxImages)
	l.Tags = uniqueStrings(l.Tags, 0)

	if l.Status == "" {
		l.Status = StatusNew
	}
	if l.ParsedAt.IsZero() {
		l.ParsedAt = time.Now()
	}
	l.IsActive = true

	return nil
}

// HasEmbedding reports whether a vector was stored with the record.
func (l *Listing) HasEmbedding() bool {
	return len(l.Embedding) > 0
}

// WithoutEmbedding returns a shallow copy without the vector, for payloads
// that leave the store.
func (l *Listing) WithoutEmbedding() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	c.Embedding = nil
	return &c
}

func uniqueStrings(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func Ptr[T any](v T) *T {
	return &v
}
