package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/maltedev/realty-crawler/internal/models"
)

const (
	StoreKindPostgres = "postgres"
	StoreKindFile     = "file"

	SinkKindTelegram = "telegram"
	SinkKindRedis    = "redis"
)

type Config struct {
	Server   ServerConfig
	Crawler  CrawlerConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Publish  PublishConfig
	OpenAI   OpenAIConfig
	Currency CurrencyConfig
	Logging  LoggingConfig

	Targets        []models.CrawlTarget
	Channels       map[string]string
	DefaultChannel string
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type CrawlerConfig struct {
	Interval      time.Duration
	ErrorCooldown time.Duration
	QuietStart    string
	QuietEnd      string
	MaxURLs       int
	RestartEvery  int
	MaxRetries    int
	RetryDelay    time.Duration
	RateLimitMin  time.Duration
	RateLimitMax  time.Duration
	Engines       []string
	TargetsFile   string
	City          string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	Proxy          string
}

type DatabaseConfig struct {
	Kind     string
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	File     string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	StreamPrefix string
}

type PublishConfig struct {
	Sink                string
	TelegramToken       string
	TelegramURL         string
	MaxImages           int
	DownloadConcurrency int
	DownloadTimeout     time.Duration
	SendTimeout         time.Duration
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDims  int
}

type CurrencyConfig struct {
	RatesURL string
	Timeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads .env (when present), the environment and the targets file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnvOrDefault("HTTP_ADDR", ""),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Crawler: CrawlerConfig{
			Interval:      getDurationOrDefault("CRAWLER_INTERVAL", 5*time.Minute),
			ErrorCooldown: getDurationOrDefault("CRAWLER_ERROR_COOLDOWN", 15*time.Minute),
			QuietStart:    getEnvOrDefault("CRAWLER_QUIET_START", "02:00"),
			QuietEnd:      getEnvOrDefault("CRAWLER_QUIET_END", "07:00"),
			MaxURLs:       getIntOrDefault("CRAWLER_MAX_URLS", 20),
			RestartEvery:  getIntOrDefault("CRAWLER_RESTART_EVERY", 10),
			MaxRetries:    getIntOrDefault("CRAWLER_MAX_RETRIES", 3),
			RetryDelay:    getDurationOrDefault("CRAWLER_RETRY_DELAY", 2*time.Second),
			RateLimitMin:  getDurationOrDefault("CRAWLER_RATE_LIMIT_MIN", 2*time.Second),
			RateLimitMax:  getDurationOrDefault("CRAWLER_RATE_LIMIT_MAX", 5*time.Second),
			Engines:       getStringSliceOrDefault("CRAWLER_ENGINES", []string{"chromium", "firefox", "webkit"}),
			TargetsFile:   getEnvOrDefault("CRAWLER_TARGETS_FILE", "configs/targets.yaml"),
			City:          getEnvOrDefault("CRAWLER_CITY", "Київ"),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "uk-UA,uk;q=0.9,ru;q=0.8,en;q=0.7"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Kyiv"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "uk-UA"),
			Proxy:          getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Database: DatabaseConfig{
			Kind:     getEnvOrDefault("STORE_KIND", StoreKindPostgres),
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "realty"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 10),
			File:     getEnvOrDefault("STORE_FILE", "listings.json"),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			StreamPrefix: getEnvOrDefault("REDIS_STREAM_PREFIX", "stream:listings:"),
		},
		Publish: PublishConfig{
			Sink:                getEnvOrDefault("SINK_KIND", SinkKindTelegram),
			TelegramToken:       getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
			TelegramURL:         getEnvOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"),
			MaxImages:           getIntOrDefault("PUBLISH_MAX_IMAGES", 3),
			DownloadConcurrency: getIntOrDefault("PUBLISH_DOWNLOAD_CONCURRENCY", 3),
			DownloadTimeout:     getDurationOrDefault("PUBLISH_DOWNLOAD_TIMEOUT", 15*time.Second),
			SendTimeout:         getDurationOrDefault("PUBLISH_SEND_TIMEOUT", 30*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
			BaseURL:        getEnvOrDefault("OPENAI_BASE_URL", ""),
			ChatModel:      getEnvOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnvOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDims:  getIntOrDefault("OPENAI_EMBEDDING_DIMS", 1536),
		},
		Currency: CurrencyConfig{
			RatesURL: getEnvOrDefault("RATES_URL", "https://bank.gov.ua/NBUStatService/v1/statdirectory/exchange?json"),
			Timeout:  getDurationOrDefault("RATES_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		DefaultChannel: getEnvOrDefault("PUBLISH_DEFAULT_CHANNEL", ""),
	}

	if err := cfg.LoadTargets(cfg.Crawler.TargetsFile); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Crawler.Interval <= 0 {
		return fmt.Errorf("CRAWLER_INTERVAL must be positive")
	}
	if c.Crawler.ErrorCooldown <= 0 {
		return fmt.Errorf("CRAWLER_ERROR_COOLDOWN must be positive")
	}
	if c.Crawler.MaxRetries < 1 {
		return fmt.Errorf("CRAWLER_MAX_RETRIES must be at least 1")
	}
	if c.Crawler.MaxURLs < 1 {
		return fmt.Errorf("CRAWLER_MAX_URLS must be at least 1")
	}
	if c.Crawler.RestartEvery < 0 {
		return fmt.Errorf("CRAWLER_RESTART_EVERY cannot be negative")
	}
	if c.Crawler.RateLimitMin > c.Crawler.RateLimitMax {
		return fmt.Errorf("CRAWLER_RATE_LIMIT_MIN cannot be greater than CRAWLER_RATE_LIMIT_MAX")
	}
	if !validClock(c.Crawler.QuietStart) || !validClock(c.Crawler.QuietEnd) {
		return fmt.Errorf("quiet window must be HH:MM, got %q-%q", c.Crawler.QuietStart, c.Crawler.QuietEnd)
	}
	if c.Publish.MaxImages < 1 {
		return fmt.Errorf("PUBLISH_MAX_IMAGES must be at least 1")
	}

	switch c.Database.Kind {
	case StoreKindPostgres, StoreKindFile:
	default:
		return fmt.Errorf("unknown STORE_KIND %q", c.Database.Kind)
	}

	switch c.Publish.Sink {
	case SinkKindTelegram:
		if c.Publish.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for the telegram sink")
		}
	case SinkKindRedis:
	default:
		return fmt.Errorf("unknown SINK_KIND %q", c.Publish.Sink)
	}

	if len(c.Targets) == 0 {
		return fmt.Errorf("no crawl targets configured")
	}
	for i, t := range c.Targets {
		if t.Site == "" || t.IndexURL == "" || t.PropertyType == "" {
			return fmt.Errorf("target %d needs site, property_type and index_url", i)
		}
	}

	return nil
}

type targetsFile struct {
	Targets        []models.CrawlTarget `yaml:"targets"`
	Channels       map[string]string    `yaml:"channels"`
	DefaultChannel string               `yaml:"default_channel"`
}

// LoadTargets reads targets and channels from a YAML file. A missing file
// keeps the built-in targets.
func (c *Config) LoadTargets(path string) error {
	c.Targets = DefaultTargets()
	if c.Channels == nil {
		c.Channels = map[string]string{}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read targets file: %w", err)
	}

	var tf targetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("failed to decode targets file %s: %w", path, err)
	}

	if len(tf.Targets) > 0 {
		c.Targets = tf.Targets
	}
	for k, v := range tf.Channels {
		c.Channels[k] = v
	}
	if tf.DefaultChannel != "" && c.DefaultChannel == "" {
		c.DefaultChannel = tf.DefaultChannel
	}
	return nil
}

// Filter returns the targets matching site and category; empty values match
// everything.
func (c *Config) Filter(site, category string) []models.CrawlTarget {
	var out []models.CrawlTarget
	for _, t := range c.Targets {
		if site != "" && t.Site != site {
			continue
		}
		if category != "" && t.PropertyType != category {
			continue
		}
		out = append(out, t)
	}
	return out
}

func DefaultTargets() []models.CrawlTarget {
	return []models.CrawlTarget{
		{Site: "olx", PropertyType: "apartment", IndexURL: "https://www.olx.ua/uk/nedvizhimost/kvartiry/prodazha-kvartir/kiev/?currency=USD"},
		{Site: "olx", PropertyType: "house", IndexURL: "https://www.olx.ua/uk/nedvizhimost/doma/prodazha-domov/kiev/?currency=USD"},
		{Site: "domria", PropertyType: "apartment", IndexURL: "https://dom.ria.com/uk/prodazha-kvartir/kiev/"},
		{Site: "domria", PropertyType: "house", IndexURL: "https://dom.ria.com/uk/prodazha-domov/kiev/"},
	}
}

func validClock(v string) bool {
	_, err := time.Parse("15:04", v)
	return err == nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
