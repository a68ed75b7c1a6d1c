package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	EngineChromium = "chromium"
	EngineFirefox  = "firefox"
	EngineWebKit   = "webkit"
)

// Page is the subset of a browser tab the site adapters rely on.
type Page interface {
	Content() (string, error)
	Click(selector string, timeout time.Duration) error
	InnerText(selector string) (string, error)
	ScrollBy(dy int) error
	Close() error
}

// Session is one running browser engine with a single context.
type Session interface {
	Engine() string
	Open(ctx context.Context, url string, timeout time.Duration) (Page, error)
	Close() error
}

type Launcher interface {
	Launch(engine string) (Session, error)
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "uk-UA,uk;q=0.9,ru;q=0.8,en;q=0.7",
		TimezoneID:     "Europe/Kyiv",
		Locale:         "uk-UA",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

// PlaywrightLauncher starts a fresh playwright driver per session so a
// crashed driver never leaks into the next session.
type PlaywrightLauncher struct {
	opts   *Options
	logger *slog.Logger
}

func NewPlaywrightLauncher(opts *Options, logger *slog.Logger) *PlaywrightLauncher {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &PlaywrightLauncher{
		opts:   opts,
		logger: logger.With("component", "browser"),
	}
}

func (l *PlaywrightLauncher) Launch(engine string) (Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch engine {
	case EngineChromium:
		browserType = pw.Chromium
	case EngineFirefox:
		browserType = pw.Firefox
	case EngineWebKit:
		browserType = pw.WebKit
	default:
		pw.Stop()
		return nil, fmt.Errorf("unknown browser engine %q", engine)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &l.opts.Headless,
	}
	if engine == EngineChromium {
		launchOpts.Args = []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		}
	}
	if l.opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: l.opts.ProxyServer,
		}
	}

	b, err := browserType.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch %s: %w", engine, err)
	}

	headers := map[string]string{"Accept-Language": l.opts.AcceptLanguage}
	for k, v := range l.opts.ExtraHeaders {
		headers[k] = v
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &l.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &l.opts.Locale,
		TimezoneId:        &l.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  l.opts.ViewportWidth,
			Height: l.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &playwrightSession{
		engine:  engine,
		pw:      pw,
		browser: b,
		context: bctx,
		timeout: l.opts.Timeout,
	}, nil
}

type playwrightSession struct {
	engine  string
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
}

func (s *playwrightSession) Engine() string {
	return s.engine
}

func (s *playwrightSession) Open(ctx context.Context, url string, timeout time.Duration) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = s.timeout
	}

	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if resp != nil && resp.Status() >= 400 {
		page.Close()
		return nil, fmt.Errorf("navigation to %s returned status %d", url, resp.Status())
	}

	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) Close() error {
	var errs []error

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Click(selector string, timeout time.Duration) error {
	loc := p.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("selector %q not found", selector)
	}
	return loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *playwrightPage) InnerText(selector string) (string, error) {
	loc := p.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", nil
	}
	return loc.InnerText()
}

func (p *playwrightPage) ScrollBy(dy int) error {
	_, err := p.page.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", dy))
	return err
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
