package models

import (
	"time"

	"github.com/google/uuid"
)

// CrawlTarget is one index page of one site for one property category.
type CrawlTarget struct {
	Site         string `json:"site" yaml:"site"`
	PropertyType string `json:"property_type" yaml:"property_type"`
	IndexURL     string `json:"index_url" yaml:"index_url"`
}

type AdapterResult struct {
	Site       string        `json:"site"`
	Success    bool          `json:"success"`
	Discovered int           `json:"discovered"`
	Duplicates int           `json:"duplicates"`
	Processed  int           `json:"processed"`
	Persisted  int           `json:"persisted"`
	Published  int           `json:"published"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

type CycleResult struct {
	ID         uuid.UUID       `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Skipped    bool            `json:"skipped"`
	Adapters   []AdapterResult `json:"adapters,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Processed sums processed items over all adapters of the cycle.
func (c *CycleResult) Processed() int {
	total := 0
	for _, a := range c.Adapters {
		total += a.Processed
	}
	return total
}

func (c *CycleResult) Succeeded() int {
	n := 0
	for _, a := range c.Adapters {
		if a.Success {
			n++
		}
	}
	return n
}
