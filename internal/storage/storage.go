package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/vector"
)

// FileStore keeps listings in a single JSON file. It has no vector index.
type FileStore struct {
	mu       sync.RWMutex
	listings map[string]*models.Listing
	filename string
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		listings: make(map[string]*models.Listing),
		filename: filename,
	}

	// Load existing data if file exists
	if err := fs.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return fs, nil
}

func (fs *FileStore) Exists(_ context.Context, externalURL string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, exists := fs.listings[externalURL]
	return exists, nil
}

func (fs *FileStore) Create(_ context.Context, l *models.Listing) (uuid.UUID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if l.ExternalURL == "" {
		return uuid.Nil, fmt.Errorf("%w: external url is required", models.ErrInvalidListing)
	}
	if _, exists := fs.listings[l.ExternalURL]; exists {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicate, l.ExternalURL)
	}

	stored := *l
	stored.ID = uuid.New()
	if stored.ParsedAt.IsZero() {
		stored.ParsedAt = time.Now()
	}
	fs.listings[l.ExternalURL] = &stored

	if err := fs.save(); err != nil {
		delete(fs.listings, l.ExternalURL)
		return uuid.Nil, err
	}
	return stored.ID, nil
}

func (fs *FileStore) FindOne(_ context.Context, externalURL string) (*models.Listing, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l, exists := fs.listings[externalURL]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, externalURL)
	}
	found := *l
	return &found, nil
}

func (fs *FileStore) Embedded(_ context.Context) ([]*models.Listing, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []*models.Listing
	for _, l := range fs.listings {
		if l.HasEmbedding() {
			found := *l
			out = append(out, &found)
		}
	}
	return out, nil
}

func (fs *FileStore) VectorSearch(context.Context, []float32, int) ([]vector.Match, error) {
	return nil, fmt.Errorf("file store: %w", vector.ErrIndexUnavailable)
}

// Stats counts listings per status plus a "total" entry.
func (fs *FileStore) Stats(_ context.Context) (map[string]int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	stats := make(map[string]int)
	for _, l := range fs.listings {
		stats[string(l.Status)]++
	}
	stats["total"] = len(fs.listings)
	return stats, nil
}

func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fs.listings, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) Load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &fs.listings)
}
