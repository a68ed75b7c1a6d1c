package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/realty-crawler/internal/currency"
	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/parser"
)

var (
	ErrUnknownSite  = errors.New("unknown site")
	ErrEmptyIndex   = errors.New("index page has no detail urls")
	ErrEmptyContent = errors.New("page returned empty content")
)

// Extractor is the per-site field extraction the pipeline drives.
type Extractor interface {
	parser.Parser
	Selectors() parser.Selectors
	ExtractImages(html string) []string
}

// RateSource provides the exchange rate snapshot of one pass.
type RateSource interface {
	FetchRates(ctx context.Context) currency.Rates
}

// LocationHint infers a location; nil means none was found.
type LocationHint interface {
	Resolve(ctx context.Context, addressText, description string) *string
}

type Gate interface {
	Exists(ctx context.Context, externalURL string) (bool, error)
}

type Persister interface {
	Persist(ctx context.Context, l *models.Listing) (uuid.UUID, error)
}

type Publisher interface {
	Publish(ctx context.Context, l *models.Listing) error
}

// Throttle spaces detail fetches and adapts to the fault rate.
type Throttle interface {
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

type Options struct {
	MaxURLs       int
	MaxRetries    int
	RetryDelay    time.Duration
	PageTimeout   time.Duration
	RevealTimeout time.Duration
	RestartEvery  int
	Engines       []string
	ScrollSteps   int
	ScrollStep    int
	LazyLoadWait  time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxURLs:       20,
		MaxRetries:    3,
		RetryDelay:    2 * time.Second,
		PageTimeout:   30 * time.Second,
		RevealTimeout: 5 * time.Second,
		RestartEvery:  10,
		ScrollSteps:   3,
		ScrollStep:    1200,
		LazyLoadWait:  1500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxURLs <= 0 {
		o.MaxURLs = d.MaxURLs
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = d.PageTimeout
	}
	if o.RevealTimeout <= 0 {
		o.RevealTimeout = d.RevealTimeout
	}
	if o.ScrollSteps <= 0 {
		o.ScrollSteps = d.ScrollSteps
	}
	if o.ScrollStep <= 0 {
		o.ScrollStep = d.ScrollStep
	}
	return o
}

// ExtractorFor returns the extractor of a configured site.
func ExtractorFor(site string) (Extractor, error) {
	switch site {
	case parser.SiteOLX:
		return parser.NewOLXParser(), nil
	case parser.SiteDomRia:
		return parser.NewDomRiaParser(), nil
	default:
		return nil, ErrUnknownSite
	}
}

type noThrottle struct{}

func (noThrottle) Wait(ctx context.Context) error { return ctx.Err() }
func (noThrottle) RecordSuccess()                 {}
func (noThrottle) RecordError()                   {}
