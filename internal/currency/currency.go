package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/maltedev/realty-crawler/internal/models"
)

const (
	UAH = "UAH"
	USD = "USD"
	EUR = "EUR"
)

// DefaultRatesURL is the National Bank of Ukraine daily rates endpoint.
const DefaultRatesURL = "https://bank.gov.ua/NBUStatService/v1/statdirectory/exchange?json"

// Rates holds UAH per one unit of foreign currency.
type Rates struct {
	USD      float64 `json:"usd"`
	EUR      float64 `json:"eur"`
	Fallback bool    `json:"fallback"`
}

var FallbackRates = Rates{USD: 41.78, EUR: 48.99, Fallback: true}

// Rate returns UAH per unit of code. UAH itself is 1.
func (r Rates) Rate(code string) (float64, bool) {
	switch code {
	case UAH:
		return 1, true
	case USD:
		if r.USD > 0 {
			return r.USD, true
		}
		return FallbackRates.USD, true
	case EUR:
		if r.EUR > 0 {
			return r.EUR, true
		}
		return FallbackRates.EUR, true
	default:
		return 0, false
	}
}

// Convert pivots amount through UAH into the canonical trio. It is pure and
// total: unknown currencies pass the amount through unchanged.
func Convert(amount float64, code string, rates Rates) models.CanonicalPrice {
	code = Normalize(code)
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}

	rate, ok := rates.Rate(code)
	if !ok {
		v := round(amount)
		return models.CanonicalPrice{UAH: v, USD: v, EUR: v}
	}

	uah := amount
	if code != UAH {
		uah = amount * rate
	}
	usd, _ := rates.Rate(USD)
	eur, _ := rates.Rate(EUR)

	return models.CanonicalPrice{
		UAH: round(uah),
		USD: round(uah / usd),
		EUR: round(uah / eur),
	}
}

func round(v float64) int64 {
	return int64(math.Round(v))
}

// Normalize maps scraped currency symbols and words onto ISO codes. Unknown
// values are returned upper-cased.
func Normalize(symbol string) string {
	// "у. о." and "у.о." are the same marker.
	s := strings.ToLower(strings.Join(strings.Fields(symbol), ""))
	s = strings.TrimSuffix(s, ".")
	switch s {
	case "uah", "грн", "₴", "гривень", "гривня", "гривні", "hrn":
		return UAH
	case "usd", "$", "дол", "долар", "доларів", "у.о", "у.е", "дол.сша":
		return USD
	case "eur", "€", "євро", "евро":
		return EUR
	}
	return strings.ToUpper(s)
}

// Client fetches the rate snapshot for one adapter invocation.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultRatesURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "currency"),
	}
}

type rateEntry struct {
	Code string  `json:"cc"`
	Rate float64 `json:"rate"`
}

// FetchRates never fails: any problem yields the fallback constants.
func (c *Client) FetchRates(ctx context.Context) Rates {
	rates, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("using fallback exchange rates",
			"fault", "external_service",
			"error", err,
			"usd", FallbackRates.USD,
			"eur", FallbackRates.EUR)
		return FallbackRates
	}
	c.logger.Info("exchange rates fetched", "usd", rates.USD, "eur", rates.EUR)
	return rates
}

func (c *Client) fetch(ctx context.Context) (Rates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Rates{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Rates{}, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Rates{}, fmt.Errorf("rates endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Rates{}, fmt.Errorf("failed to read rates body: %w", err)
	}

	var entries []rateEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return Rates{}, fmt.Errorf("failed to decode rates: %w", err)
	}

	var rates Rates
	for _, e := range entries {
		switch strings.ToUpper(e.Code) {
		case USD:
			rates.USD = e.Rate
		case EUR:
			rates.EUR = e.Rate
		}
	}
	if rates.USD <= 0 || rates.EUR <= 0 {
		return Rates{}, fmt.Errorf("rates response is missing USD or EUR")
	}

	return rates, nil
}
