package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maltedev/realty-crawler/internal/models"
)

var ErrDimensionMismatch = errors.New("embedding has unexpected dimensionality")

// Embedder is the text-in, vector-out endpoint.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

type Generator struct {
	embedder Embedder
}

func NewGenerator(embedder Embedder) *Generator {
	return &Generator{embedder: embedder}
}

// Embed computes the vector for the listing's canonical text.
func (g *Generator) Embed(ctx context.Context, l *models.Listing) ([]float32, error) {
	return g.EmbedText(ctx, CanonicalText(l))
}

// EmbedText embeds free text such as a search query.
func (g *Generator) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if want := g.embedder.Dimensions(); want > 0 && len(vec) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return vec, nil
}

func (g *Generator) Dimensions() int {
	return g.embedder.Dimensions()
}

// CanonicalText renders the listing as labeled lines in a fixed field order:
// title, description, type, price, area, rooms, location, tags, source, url.
// Absent fields keep their label with an empty value so positions stay stable.
func CanonicalText(l *models.Listing) string {
	var b strings.Builder

	field := func(label, value string) {
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(value))
		b.WriteString("\n")
	}

	field("Title", l.Title)
	field("Description", l.Description)
	field("Type", l.PropertyType)
	field("Price", formatPrice(l))

	area := ""
	if l.Area != nil {
		area = strconv.FormatFloat(*l.Area, 'f', -1, 64) + " m2"
	}
	field("Area", area)

	rooms := ""
	if l.Rooms != nil {
		rooms = strconv.Itoa(*l.Rooms)
	}
	field("Rooms", rooms)

	location := ""
	if l.Location != nil {
		location = *l.Location
	}
	field("Location", location)
	field("Tags", strings.Join(l.Tags, ", "))
	field("Source", l.Source)
	field("URL", l.ExternalURL)

	return strings.TrimRight(b.String(), "\n")
}

func formatPrice(l *models.Listing) string {
	if l.Price == nil {
		return ""
	}
	s := strconv.FormatFloat(l.Price.Amount, 'f', -1, 64) + " " + l.Price.Currency
	if c := l.Canonical; c != nil {
		s += fmt.Sprintf(" (%d UAH, %d USD, %d EUR)", c.UAH, c.USD, c.EUR)
	}
	return s
}
