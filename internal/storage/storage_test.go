package storage

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/vector"
)

func newListing(url string) *models.Listing {
	l := &models.Listing{Source: "olx", ExternalURL: url, Title: "Квартира"}
	_ = l.Normalize()
	return l
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "listings.json")

	fs, err := NewFileStore(path)
	require.NoError(t, err)

	exists, err := fs.Exists(ctx, "https://www.olx.ua/d/uk/obyavlenie/a-ID1.html")
	require.NoError(t, err)
	assert.False(t, exists)

	l := newListing("https://www.olx.ua/d/uk/obyavlenie/a-ID1.html")
	l.Embedding = []float32{0.1, 0.2}
	id, err := fs.Create(ctx, l)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	_, err = fs.Create(ctx, newListing("https://www.olx.ua/d/uk/obyavlenie/b-ID2.html"))
	require.NoError(t, err)

	_, err = fs.Create(ctx, newListing("https://www.olx.ua/d/uk/obyavlenie/a-ID1.html"))
	assert.ErrorIs(t, err, ErrDuplicate)

	t.Run("reload from disk", func(t *testing.T) {
		reloaded, err := NewFileStore(path)
		require.NoError(t, err)

		found, err := reloaded.FindOne(ctx, "https://www.olx.ua/d/uk/obyavlenie/a-ID1.html")
		require.NoError(t, err)
		assert.Equal(t, id, found.ID)
		assert.Equal(t, []float32{0.1, 0.2}, found.Embedding)

		embedded, err := reloaded.Embedded(ctx)
		require.NoError(t, err)
		assert.Len(t, embedded, 1)

		stats, err := reloaded.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats["total"])
		assert.Equal(t, 2, stats["new"])
	})

	t.Run("missing listing", func(t *testing.T) {
		_, err := fs.FindOne(ctx, "https://example.com/none")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no native index", func(t *testing.T) {
		_, err := fs.VectorSearch(ctx, []float32{1}, 5)
		assert.ErrorIs(t, err, vector.ErrIndexUnavailable)
	})
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(context.Context, *models.Listing) ([]float32, error) {
	return s.vec, s.err
}

func TestSinkPersist(t *testing.T) {
	ctx := context.Background()

	t.Run("stores embedding", func(t *testing.T) {
		fs, err := NewFileStore(filepath.Join(t.TempDir(), "l.json"))
		require.NoError(t, err)

		sink := NewSink(fs, stubEmbedder{vec: []float32{1, 2, 3}}, slog.Default())
		l := newListing("https://dom.ria.com/uk/realty-a-1.html")

		id, err := sink.Persist(ctx, l)
		require.NoError(t, err)
		assert.Equal(t, id, l.ID)

		found, err := fs.FindOne(ctx, l.ExternalURL)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3}, found.Embedding)
	})

	t.Run("embedding failure still stores", func(t *testing.T) {
		fs, err := NewFileStore(filepath.Join(t.TempDir(), "l.json"))
		require.NoError(t, err)

		sink := NewSink(fs, stubEmbedder{err: errors.New("embedding api down")}, slog.Default())
		l := newListing("https://dom.ria.com/uk/realty-b-2.html")

		id, err := sink.Persist(ctx, l)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)

		found, err := fs.FindOne(ctx, l.ExternalURL)
		require.NoError(t, err)
		assert.False(t, found.HasEmbedding())
	})

	t.Run("store failure returns no id", func(t *testing.T) {
		fs, err := NewFileStore(filepath.Join(t.TempDir(), "l.json"))
		require.NoError(t, err)
		sink := NewSink(fs, nil, slog.Default())

		l := newListing("https://dom.ria.com/uk/realty-c-3.html")
		_, err = sink.Persist(ctx, l)
		require.NoError(t, err)

		id, err := sink.Persist(ctx, newListing(l.ExternalURL))
		assert.ErrorIs(t, err, ErrDuplicate)
		assert.Equal(t, uuid.Nil, id)
	})
}

func TestGate(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "l.json"))
	require.NoError(t, err)

	gate := NewGate(fs)
	ok, err := gate.Exists(ctx, "https://dom.ria.com/uk/realty-a-1.html")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.Create(ctx, newListing("https://dom.ria.com/uk/realty-a-1.html"))
	require.NoError(t, err)

	ok, err = gate.Exists(ctx, "https://dom.ria.com/uk/realty-a-1.html")
	require.NoError(t, err)
	assert.True(t, ok)
}
