package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/maltedev/realty-crawler/internal/browser"
	"github.com/maltedev/realty-crawler/internal/currency"
	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/parser"
	"github.com/maltedev/realty-crawler/internal/retry"
)

// fetchListing opens the detail page under the retry policy and assembles
// the record. Location and currency work happen after the browser part so
// a session restart never repeats them.
func (a *Adapter) fetchListing(ctx context.Context, p *pass, target models.CrawlTarget, url string) (*models.Listing, error) {
	var detail *parser.Detail
	err := p.policy.Do(ctx, "detail", func(ctx context.Context) error {
		var err error
		detail, err = a.extractDetail(ctx, p.manager, url)
		return err
	}, a.restartOnFault(p.manager))
	if err != nil {
		return nil, err
	}

	return a.assemble(ctx, p.rates, target, url, detail)
}

func (a *Adapter) extractDetail(ctx context.Context, m *browser.Manager, url string) (*parser.Detail, error) {
	session, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	page, err := session.Open(ctx, url, a.opts.PageTimeout)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if html == "" {
		return nil, ErrEmptyContent
	}

	detail, err := a.extractor.ParseDetail(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail: %w", err)
	}

	if detail.Phone == "" {
		phone, err := a.revealPhone(page)
		if err != nil {
			return nil, err
		}
		detail.Phone = phone
	}

	if len(detail.Images) == 0 {
		images, err := a.lazyLoadImages(ctx, page)
		if err != nil {
			return nil, err
		}
		detail.Images = images
	}

	return detail, nil
}

// revealPhone clicks the first working reveal control and re-reads the phone
// containers. A number that stays hidden yields "". Only transient browser
// faults are returned.
func (a *Adapter) revealPhone(page browser.Page) (string, error) {
	sel := a.extractor.Selectors()
	if len(sel.PhoneReveal) == 0 {
		return "", nil
	}

	clicked := false
	for _, s := range sel.PhoneReveal {
		if err := page.Click(s, a.opts.RevealTimeout); err != nil {
			if retry.Classify(err).Transient() {
				return "", err
			}
			continue
		}
		clicked = true
		break
	}
	if !clicked {
		return "", nil
	}

	for _, s := range sel.Phone {
		text, err := page.InnerText(s)
		if err != nil {
			if retry.Classify(err).Transient() {
				return "", err
			}
			continue
		}
		if phone := parser.ParsePhone(text); phone != "" {
			return phone, nil
		}
	}

	a.logger.Debug("phone still hidden after reveal")
	return "", nil
}

// lazyLoadImages scrolls a bounded number of steps to trigger lazy images
// and extracts once more.
func (a *Adapter) lazyLoadImages(ctx context.Context, page browser.Page) ([]string, error) {
	for i := 0; i < a.opts.ScrollSteps; i++ {
		if err := page.ScrollBy(a.opts.ScrollStep); err != nil {
			if retry.Classify(err).Transient() {
				return nil, err
			}
			return nil, nil
		}
	}

	if a.opts.LazyLoadWait > 0 {
		timer := time.NewTimer(a.opts.LazyLoadWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	html, err := page.Content()
	if err != nil {
		if retry.Classify(err).Transient() {
			return nil, err
		}
		return nil, nil
	}
	return a.extractor.ExtractImages(html), nil
}

func (a *Adapter) assemble(ctx context.Context, rates currency.Rates, target models.CrawlTarget, url string, d *parser.Detail) (*models.Listing, error) {
	l := &models.Listing{
		Source:       a.extractor.Site(),
		ExternalID:   a.extractor.ExternalID(url),
		ExternalURL:  url,
		Title:        d.Title,
		Description:  d.Description,
		Price:        d.Price,
		Area:         d.Area,
		Rooms:        d.Rooms,
		Floor:        d.Floor,
		Floors:       d.Floors,
		Images:       d.Images,
		Tags:         d.Tags,
		PropertyType: target.PropertyType,
		Status:       models.StatusNew,
		ParsedAt:     time.Now(),
	}
	if d.Phone != "" {
		l.Phone = models.Ptr(d.Phone)
	}
	if d.Price != nil {
		canonical := currency.Convert(d.Price.Amount, d.Price.Currency, rates)
		l.Canonical = &canonical
	}
	if a.deps.Locator != nil {
		l.Location = a.deps.Locator.Resolve(ctx, d.Address, d.Description)
	}

	if err := l.Normalize(); err != nil {
		return nil, err
	}
	return l, nil
}
