package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const targetsYAML = `
default_channel: "@realty_all"
channels:
  apartment: "@kyiv_flats"
  house: "@kyiv_houses"
targets:
  - site: olx
    property_type: apartment
    index_url: https://www.olx.ua/uk/nedvizhimost/kvartiry/kiev/
  - site: domria
    property_type: house
    index_url: https://dom.ria.com/uk/prodazha-domov/kiev/
`

func writeTargets(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CRAWLER_TARGETS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Minute, cfg.Crawler.Interval)
	assert.Equal(t, 15*time.Minute, cfg.Crawler.ErrorCooldown)
	assert.Equal(t, "02:00", cfg.Crawler.QuietStart)
	assert.Equal(t, "07:00", cfg.Crawler.QuietEnd)
	assert.Equal(t, 20, cfg.Crawler.MaxURLs)
	assert.Equal(t, 10, cfg.Crawler.RestartEvery)
	assert.Equal(t, 3, cfg.Crawler.MaxRetries)
	assert.Equal(t, 3, cfg.Publish.MaxImages)
	assert.Equal(t, []string{"chromium", "firefox", "webkit"}, cfg.Crawler.Engines)
	assert.Equal(t, StoreKindPostgres, cfg.Database.Kind)
	assert.Equal(t, DefaultTargets(), cfg.Targets)
}

func TestLoadTargetsFile(t *testing.T) {
	t.Setenv("CRAWLER_TARGETS_FILE", writeTargets(t, targetsYAML))
	t.Setenv("CRAWLER_ENGINES", "firefox, webkit")
	t.Setenv("CRAWLER_INTERVAL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, "domria", cfg.Targets[1].Site)
	assert.Equal(t, "house", cfg.Targets[1].PropertyType)
	assert.Equal(t, "@kyiv_flats", cfg.Channels["apartment"])
	assert.Equal(t, "@realty_all", cfg.DefaultChannel)
	assert.Equal(t, []string{"firefox", "webkit"}, cfg.Crawler.Engines)
	assert.Equal(t, 90*time.Second, cfg.Crawler.Interval)
}

func TestLoadTargetsMalformed(t *testing.T) {
	t.Setenv("CRAWLER_TARGETS_FILE", writeTargets(t, "targets: [oops"))

	_, err := Load()
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	cfg := &Config{Targets: DefaultTargets()}

	assert.Len(t, cfg.Filter("", ""), 4)
	assert.Len(t, cfg.Filter("olx", ""), 2)
	assert.Len(t, cfg.Filter("", "house"), 2)

	got := cfg.Filter("domria", "apartment")
	require.Len(t, got, 1)
	assert.Equal(t, "https://dom.ria.com/uk/prodazha-kvartir/kiev/", got[0].IndexURL)

	assert.Empty(t, cfg.Filter("avito", ""))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Crawler: CrawlerConfig{
				Interval:      time.Minute,
				ErrorCooldown: time.Minute,
				QuietStart:    "02:00",
				QuietEnd:      "07:00",
				MaxURLs:       20,
				MaxRetries:    3,
				RateLimitMin:  time.Second,
				RateLimitMax:  2 * time.Second,
			},
			Database: DatabaseConfig{Kind: StoreKindFile},
			Publish:  PublishConfig{Sink: SinkKindRedis, MaxImages: 3},
			Targets:  DefaultTargets(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero interval", func(c *Config) { c.Crawler.Interval = 0 }, true},
		{"zero retries", func(c *Config) { c.Crawler.MaxRetries = 0 }, true},
		{"bad quiet window", func(c *Config) { c.Crawler.QuietStart = "2am" }, true},
		{"rate limit inverted", func(c *Config) { c.Crawler.RateLimitMin = time.Hour }, true},
		{"unknown store", func(c *Config) { c.Database.Kind = "mongo" }, true},
		{"unknown sink", func(c *Config) { c.Publish.Sink = "email" }, true},
		{"telegram needs token", func(c *Config) { c.Publish.Sink = SinkKindTelegram }, true},
		{"no targets", func(c *Config) { c.Targets = nil }, true},
		{"incomplete target", func(c *Config) { c.Targets[0].IndexURL = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
