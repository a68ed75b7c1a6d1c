package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/realty-crawler/internal/api"
	"github.com/maltedev/realty-crawler/internal/browser"
	"github.com/maltedev/realty-crawler/internal/config"
	"github.com/maltedev/realty-crawler/internal/currency"
	"github.com/maltedev/realty-crawler/internal/database"
	"github.com/maltedev/realty-crawler/internal/embedding"
	"github.com/maltedev/realty-crawler/internal/events"
	"github.com/maltedev/realty-crawler/internal/llm"
	"github.com/maltedev/realty-crawler/internal/location"
	"github.com/maltedev/realty-crawler/internal/logger"
	"github.com/maltedev/realty-crawler/internal/models"
	"github.com/maltedev/realty-crawler/internal/ratelimit"
	"github.com/maltedev/realty-crawler/internal/scheduler"
	"github.com/maltedev/realty-crawler/internal/scraper"
	"github.com/maltedev/realty-crawler/internal/storage"
	"github.com/maltedev/realty-crawler/internal/vector"
)

const (
	modeDaemon = "daemon"
	modeOnce   = "once"
	modeSite   = "site"
)

func main() {
	var (
		mode        = flag.String("mode", modeDaemon, "Mode: daemon, once or site")
		site        = flag.String("site", "", "Only crawl this site (olx, domria); required for -mode site")
		category    = flag.String("category", "", "Only crawl targets of this property type")
		targetsFile = flag.String("targets", "", "YAML file with crawl targets and channels")
		httpAddr    = flag.String("http", "", "Serve health and search endpoints on this address")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *targetsFile != "" {
		if err := cfg.LoadTargets(*targetsFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load targets: %v\n", err)
			os.Exit(1)
		}
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *mode == modeSite && *site == "" {
		log.Error("-mode site needs -site")
		os.Exit(1)
	}

	if err := run(cfg, *mode, *site, *category, log); err != nil {
		log.Error("crawler stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, mode, site, category string, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	publishSink, closeSink, err := openPublishSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	var (
		listingEmbedder storage.ListingEmbedder
		textEmbedder    api.TextEmbedder
		completer       location.Completer
	)
	client, err := llm.NewClient(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		EmbeddingDims:  cfg.OpenAI.EmbeddingDims,
	}, log)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		log.Warn("OPENAI_API_KEY not set, embeddings and location fallback disabled")
	case err != nil:
		return err
	default:
		gen := embedding.NewGenerator(client)
		listingEmbedder = gen
		textEmbedder = gen
		completer = client
	}

	publisher := events.NewPublisher(publishSink, events.NewHTTPDownloader(cfg.Publish.DownloadTimeout), events.Config{
		Channels:            cfg.Channels,
		DefaultChannel:      cfg.DefaultChannel,
		MaxImages:           cfg.Publish.MaxImages,
		DownloadConcurrency: cfg.Publish.DownloadConcurrency,
	}, log)

	deps := scraper.Deps{
		Launcher: browser.NewPlaywrightLauncher(&browser.Options{
			Headless:       cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			UserAgent:      browser.DefaultOptions().UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			TimezoneID:     cfg.Browser.TimezoneID,
			Locale:         cfg.Browser.Locale,
			ProxyServer:    cfg.Browser.Proxy,
			ExtraHeaders:   browser.DefaultOptions().ExtraHeaders,
		}, log),
		Rates:     currency.NewClient(cfg.Currency.RatesURL, cfg.Currency.Timeout, log),
		Locator:   location.NewResolver(cfg.Crawler.City, completer, log),
		Gate:      storage.NewGate(store),
		Sink:      storage.NewSink(store, listingEmbedder, log),
		Publisher: publisher,
	}

	adapters, err := buildAdapters(cfg, deps, site, category, log)
	if err != nil {
		return err
	}

	schedCfg := scheduler.Config{
		Interval:      cfg.Crawler.Interval,
		ErrorCooldown: cfg.Crawler.ErrorCooldown,
	}
	// Manual runs ignore quiet hours.
	if mode == modeDaemon {
		schedCfg.Quiet, err = scheduler.ParseQuietWindow(cfg.Crawler.QuietStart, cfg.Crawler.QuietEnd)
		if err != nil {
			return err
		}
	}
	sched := scheduler.NewScheduler(adapters, schedCfg, log)

	var server *http.Server
	if cfg.Server.Addr != "" {
		handlers := api.NewHandlers(store, sched, vector.NewService(store, log), textEmbedder, log)
		server = &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      api.NewRouter(handlers),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info("http server listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", "error", err)
			}
		}()
	}

	// The first signal lets in-flight work finish; a second one cancels it.
	go func() {
		sigChan := make(chan os.Signal, 2)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("shutdown signal received, finishing current work")
		sched.Stop()
		<-sigChan
		log.Warn("second signal received, aborting")
		cancel()
	}()

	log.Info("starting crawler", "mode", mode, "adapters", len(adapters), "store", cfg.Database.Kind, "sink", cfg.Publish.Sink)

	switch mode {
	case modeDaemon:
		err = sched.Run(ctx)
	case modeOnce, modeSite:
		res := sched.RunCycle(ctx)
		log.Info("single cycle finished",
			"cycle_id", res.ID,
			"processed", res.Processed(),
			"succeeded", res.Succeeded(),
			"adapters", len(res.Adapters))
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			log.Warn("http server shutdown failed", "error", serr)
		}
	}

	return err
}

// buildAdapters creates one adapter per site, in target order.
func buildAdapters(cfg *config.Config, deps scraper.Deps, site, category string, log *slog.Logger) ([]scheduler.Adapter, error) {
	targets := cfg.Filter(site, category)
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets match site %q and category %q", site, category)
	}

	var order []string
	bySite := make(map[string][]models.CrawlTarget)
	for _, t := range targets {
		if _, ok := bySite[t.Site]; !ok {
			order = append(order, t.Site)
		}
		bySite[t.Site] = append(bySite[t.Site], t)
	}

	opts := scraper.Options{
		MaxURLs:      cfg.Crawler.MaxURLs,
		MaxRetries:   cfg.Crawler.MaxRetries,
		RetryDelay:   cfg.Crawler.RetryDelay,
		PageTimeout:  cfg.Browser.Timeout,
		RestartEvery: cfg.Crawler.RestartEvery,
		Engines:      cfg.Crawler.Engines,
		LazyLoadWait: scraper.DefaultOptions().LazyLoadWait,
	}

	adapters := make([]scheduler.Adapter, 0, len(order))
	for _, s := range order {
		extractor, err := scraper.ExtractorFor(s)
		if err != nil {
			return nil, fmt.Errorf("target site %q: %w", s, err)
		}
		throttle := ratelimit.NewAdaptiveRateLimiter(cfg.Crawler.RateLimitMin, cfg.Crawler.RateLimitMax)
		adapters = append(adapters, scraper.NewAdapter(extractor, bySite[s], deps, throttle, opts, log))
	}
	return adapters, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, func(), error) {
	if cfg.Database.Kind == config.StoreKindFile {
		fs, err := storage.NewFileStore(cfg.Database.File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file store: %w", err)
		}
		log.Info("using file store", "file", cfg.Database.File)
		return fs, func() {}, nil
	}

	db, err := database.New(ctx, database.Config{
		URL:      cfg.Database.URL,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx, cfg.OpenAI.EmbeddingDims, log); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database.NewListingStore(db, cfg.OpenAI.EmbeddingDims), db.Close, nil
}

func openPublishSink(ctx context.Context, cfg *config.Config, log *slog.Logger) (events.Sink, func(), error) {
	if cfg.Publish.Sink == config.SinkKindRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		sink := events.NewRedisStreamSink(client, cfg.Redis.StreamPrefix, log)
		return sink, func() {
			if err := sink.Close(); err != nil {
				log.Warn("failed to close redis", "error", err)
			}
		}, nil
	}

	sink, err := events.NewTelegramSink(cfg.Publish.TelegramURL, cfg.Publish.TelegramToken, cfg.Publish.SendTimeout, log)
	if err != nil {
		return nil, nil, err
	}
	return sink, func() {}, nil
}
