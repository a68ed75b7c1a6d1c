package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/realty-crawler/internal/models"
)

type fakeEmbedder struct {
	vec  []float32
	err  error
	dims int
	text string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.text = text
	return f.vec, f.err
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func sampleListing() *models.Listing {
	return &models.Listing{
		Source:       "olx",
		ExternalURL:  "https://www.olx.ua/d/uk/obyavlenie/kvartira-IDabc.html",
		Title:        "2-кімнатна квартира",
		Description:  "Ремонт, меблі",
		PropertyType: "apartment",
		Price:        &models.Price{Amount: 50000, Currency: "USD"},
		Canonical:    &models.CanonicalPrice{UAH: 2089000, USD: 50000, EUR: 42641},
		Area:         models.Ptr(54.5),
		Rooms:        models.Ptr(2),
		Location:     models.Ptr("вул. Хрещатик 1, Київ"),
		Tags:         []string{"54.5 м²", "2 кімнати"},
	}
}

func TestCanonicalText(t *testing.T) {
	text := CanonicalText(sampleListing())
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 10)

	labels := []string{"Title", "Description", "Type", "Price", "Area", "Rooms", "Location", "Tags", "Source", "URL"}
	for i, label := range labels {
		assert.True(t, strings.HasPrefix(lines[i], label+": "), lines[i])
	}

	assert.Equal(t, "Price: 50000 USD (2089000 UAH, 50000 USD, 42641 EUR)", lines[3])
	assert.Equal(t, "Area: 54.5 m2", lines[4])
	assert.Equal(t, "Rooms: 2", lines[5])
	assert.Equal(t, "Tags: 54.5 м², 2 кімнати", lines[7])
}

func TestCanonicalTextMissingFields(t *testing.T) {
	text := CanonicalText(&models.Listing{Source: "domria", ExternalURL: "https://dom.ria.com/uk/realty-1.html"})
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, "Price: ", lines[3])
	assert.Equal(t, "Location: ", lines[6])
	assert.Equal(t, "URL: https://dom.ria.com/uk/realty-1.html", lines[9])
}

func TestGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("passes canonical text", func(t *testing.T) {
		f := &fakeEmbedder{vec: []float32{1, 2, 3}, dims: 3}
		vec, err := NewGenerator(f).Embed(ctx, sampleListing())
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3}, vec)
		assert.Equal(t, CanonicalText(sampleListing()), f.text)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		f := &fakeEmbedder{vec: []float32{1, 2}, dims: 3}
		_, err := NewGenerator(f).Embed(ctx, sampleListing())
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("endpoint error", func(t *testing.T) {
		f := &fakeEmbedder{err: errors.New("503"), dims: 3}
		_, err := NewGenerator(f).EmbedText(ctx, "query")
		assert.Error(t, err)
	})
}
