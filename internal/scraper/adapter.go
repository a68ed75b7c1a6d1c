package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/realty-crawler/internal/browser"
	"github.com/maltedev/realty-crawler/internal/currency"
	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/retry"
	"github.com/maltedev/realty-crawler/internal/storage"
)

// Deps are the collaborators shared by all adapters of a process.
type Deps struct {
	Launcher  browser.Launcher
	Rates     RateSource
	Locator   LocationHint
	Gate      Gate
	Sink      Persister
	Publisher Publisher
}

// Adapter runs the extraction pipeline of one site over its targets. Runs
// of the same adapter must not overlap.
type Adapter struct {
	extractor Extractor
	targets   []models.CrawlTarget
	deps      Deps
	throttle  Throttle
	opts      Options
	logger    *slog.Logger
}

// NewAdapter creates an adapter. A nil throttle disables politeness delays.
func NewAdapter(extractor Extractor, targets []models.CrawlTarget, deps Deps, throttle Throttle, opts Options, logger *slog.Logger) *Adapter {
	if throttle == nil {
		throttle = noThrottle{}
	}
	return &Adapter{
		extractor: extractor,
		targets:   targets,
		deps:      deps,
		throttle:  throttle,
		opts:      opts.withDefaults(),
		logger:    logger.With("component", "adapter", "site", extractor.Site()),
	}
}

func (a *Adapter) Site() string {
	return a.extractor.Site()
}

func (a *Adapter) Targets() []models.CrawlTarget {
	return a.targets
}

// pass is the state private to one Run invocation.
type pass struct {
	rates   currency.Rates
	manager *browser.Manager
	policy  retry.Policy
	result  *models.AdapterResult
}

// Run makes one pass over all targets. Item failures are counted and never
// end the pass; an unavailable browser ends it for this adapter only.
func (a *Adapter) Run(ctx context.Context) models.AdapterResult {
	start := time.Now()
	result := models.AdapterResult{Site: a.Site(), Success: true}

	p := &pass{
		rates:   a.deps.Rates.FetchRates(ctx),
		manager: browser.NewManager(a.deps.Launcher, a.opts.Engines, a.opts.RestartEvery, a.logger),
		policy: retry.Policy{
			MaxAttempts: a.opts.MaxRetries,
			Delay:       a.opts.RetryDelay,
			Logger:      a.logger,
		},
		result: &result,
	}
	defer func() {
		if err := p.manager.Release(); err != nil {
			a.logger.Warn("failed to release browser", "error", err)
		}
	}()

	for _, target := range a.targets {
		if ctx.Err() != nil {
			result.Success = false
			result.Error = ctx.Err().Error()
			break
		}

		err := a.runTarget(ctx, p, target)
		if err == nil {
			continue
		}

		result.Success = false
		result.Error = err.Error()
		if errors.Is(err, browser.ErrUnavailable) {
			a.logger.Error("browser unavailable, ending pass",
				"fault", retry.KindTransientBrowser.String(),
				"error", err)
			break
		}
		a.logger.Error("target failed", "index_url", target.IndexURL, "error", err)
	}

	result.Duration = time.Since(start)
	a.logger.Info("adapter pass finished",
		"success", result.Success,
		"discovered", result.Discovered,
		"duplicates", result.Duplicates,
		"processed", result.Processed,
		"persisted", result.Persisted,
		"published", result.Published,
		"failed", result.Failed,
		"restarts", p.manager.Restarts(),
		"duration", result.Duration)
	return result
}

func (a *Adapter) runTarget(ctx context.Context, p *pass, target models.CrawlTarget) error {
	urls, err := a.discover(ctx, p, target)
	if err != nil {
		return err
	}
	p.result.Discovered += len(urls)

	a.logger.Info("processing index",
		"index_url", target.IndexURL,
		"property_type", target.PropertyType,
		"urls", len(urls))

	for _, url := range urls {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := a.processURL(ctx, p, target, url); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) discover(ctx context.Context, p *pass, target models.CrawlTarget) ([]string, error) {
	var html string
	err := p.policy.Do(ctx, "index", func(ctx context.Context) error {
		var err error
		html, err = a.load(ctx, p.manager, target.IndexURL)
		return err
	}, a.restartOnFault(p.manager))
	if err != nil {
		return nil, fmt.Errorf("failed to load index %s: %w", target.IndexURL, err)
	}

	urls := a.extractor.DiscoverURLs(html, a.opts.MaxURLs)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyIndex, target.IndexURL)
	}
	return urls, nil
}

// processURL runs one item. Only a hard stop is returned; everything else is
// logged and counted.
func (a *Adapter) processURL(ctx context.Context, p *pass, target models.CrawlTarget, url string) error {
	exists, err := a.deps.Gate.Exists(ctx, url)
	if err != nil {
		p.result.Failed++
		a.logger.Error("dedup check failed", "fault", "persistence", "url", url, "error", err)
		return nil
	}
	if exists {
		p.result.Duplicates++
		a.logger.Debug("skipping known listing", "url", url)
		return nil
	}

	if err := a.throttle.Wait(ctx); err != nil {
		return err
	}

	listing, err := a.fetchListing(ctx, p, target, url)
	if err != nil {
		if errors.Is(err, browser.ErrUnavailable) {
			return err
		}
		p.result.Failed++
		kind := retry.Classify(err)
		if kind.Transient() {
			a.throttle.RecordError()
		}
		a.logger.Warn("skipping listing", "fault", kind.String(), "url", url, "error", err)
		return nil
	}
	p.result.Processed++
	p.manager.MarkProcessed()
	a.throttle.RecordSuccess()

	id, err := a.deps.Sink.Persist(ctx, listing)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			p.result.Duplicates++
			a.logger.Info("listing stored concurrently", "url", url)
			return nil
		}
		p.result.Failed++
		a.logger.Error("failed to persist listing", "fault", "persistence", "url", url, "error", err)
		return nil
	}
	p.result.Persisted++

	if err := a.deps.Publisher.Publish(ctx, listing); err != nil {
		a.logger.Error("failed to publish listing",
			"fault", "publish",
			"id", id,
			"url", url,
			"error", err)
		return nil
	}
	p.result.Published++
	return nil
}

func (a *Adapter) restartOnFault(m *browser.Manager) retry.Recover {
	return func(ctx context.Context, kind retry.Kind, _ error) error {
		a.throttle.RecordError()
		return m.Restart(ctx, kind.String())
	}
}

func (a *Adapter) load(ctx context.Context, m *browser.Manager, url string) (string, error) {
	session, err := m.Acquire(ctx)
	if err != nil {
		return "", err
	}
	page, err := session.Open(ctx, url, a.opts.PageTimeout)
	if err != nil {
		return "", err
	}
	defer page.Close()

	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if html == "" {
		return "", ErrEmptyContent
	}
	return html, nil
}
