package parser

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/realty-crawler/internal/currency"
	"github.com/maltedev/realty-crawler/internal/models"
)

// Parser extracts listing data from the raw HTML of one site.
type Parser interface {
	Site() string
	DiscoverURLs(html string, limit int) []string
	ParseDetail(html string) (*Detail, error)
	ExternalID(detailURL string) string
}

// Detail holds every field found on a detail page. Missing fields stay zero.
type Detail struct {
	Title       string
	Description string
	Price       *models.Price
	Address     string
	Phone       string
	Images      []string
	Tags        []string
	TagFields
}

// TagFields are the numeric facts parsed out of the tag block.
type TagFields struct {
	Area   *float64
	Rooms  *int
	Floor  *int
	Floors *int
}

var (
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d[\d\s\x{00a0}\x{202f}]*(?:[.,]\d+)?)\s*(грн\.?|₴|UAH|\$|USD|€|EUR|дол\.?|у\.\s?[ое]\.|євро)`),
		regexp.MustCompile(`(\$|€|₴)\s*(\d[\d\s\x{00a0}\x{202f},]*(?:\.\d+)?)`),
	}
	thousandsComma = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+?38[\s\-]*\(?0\d{2}\)?[\s\-]*\d{3}[\s\-]*\d{2}[\s\-]*\d{2}`),
		regexp.MustCompile(`\(?0\d{2}\)?[\s\-]*\d{3}[\s\-]*\d{2}[\s\-]*\d{2}`),
	}
	nonDigits = regexp.MustCompile(`\D`)

	areaPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Зз]агальна площа\s*:?\s*(\d+(?:[.,]\d+)?)`),
		regexp.MustCompile(`[Оо]бщая площадь\s*:?\s*(\d+(?:[.,]\d+)?)`),
		regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:м²|м2|кв\.\s?м)`),
	}
	roomsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:[Кк]ількість кімнат|[Кк]оличество комнат)\s*:?\s*(\d+)`),
		regexp.MustCompile(`(\d+)\s*[-–]?\s*(?:кімнат\p{L}*|кімн\.|комнат\p{L}*|к\.)`),
	}
	floorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Пп]оверх\s*:?\s*(\d+)\s*(?:/|з|із|из)\s*(\d+)`),
		regexp.MustCompile(`[Ээ]таж\s*:?\s*(\d+)\s*(?:/|из)\s*(\d+)`),
		regexp.MustCompile(`(\d+)\s*/\s*(\d+)\s*(?:поверх|этаж)`),
		regexp.MustCompile(`(\d+)\s*(?:поверх|этаж)\s*(?:з|із|из)\s*(\d+)`),
	}
	singleFloorPattern = regexp.MustCompile(`[Пп]оверх\s*:?\s*(\d+)`)
	floorsPattern      = regexp.MustCompile(`(?:[Пп]оверховість|[Ээ]тажность)\s*:?\s*(\d+)`)
)

// ParsePrice recognises an amount followed or preceded by a currency marker.
func ParsePrice(text string) *models.Price {
	for i, re := range pricePatterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 3 {
			continue
		}
		amountText, symbol := m[1], m[2]
		if i == 1 {
			amountText, symbol = m[2], m[1]
		}
		amount := parseAmount(amountText)
		if amount <= 0 {
			continue
		}
		return &models.Price{Amount: amount, Currency: currency.Normalize(symbol)}
	}
	return nil
}

func parseAmount(s string) float64 {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)
	if thousandsComma.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	return parseFloat(s)
}

// ParsePhone returns a +380 formatted number, or "" when the text holds no
// complete number (for instance an obfuscated "097 xxx xx xx").
func ParsePhone(text string) string {
	for _, re := range phonePatterns {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		digits := nonDigits.ReplaceAllString(m, "")
		switch {
		case len(digits) == 12 && strings.HasPrefix(digits, "380"):
			return "+" + digits
		case len(digits) == 10 && strings.HasPrefix(digits, "0"):
			return "+38" + digits
		}
	}
	return ""
}

var imageExtensions = map[string]bool{
	"":      true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// FilterImages keeps http(s) image URLs whose host matches one of hosts
// (any host when hosts is empty), resolves protocol-relative links,
// de-duplicates and caps the result at limit.
func FilterImages(candidates []string, hosts []string, limit int) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if strings.HasPrefix(raw, "//") {
			raw = "https:" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if !hostAllowed(u.Hostname(), hosts) {
			continue
		}
		p := u.Path
		if i := strings.IndexByte(p, ';'); i >= 0 {
			p = p[:i]
		}
		if !imageExtensions[strings.ToLower(path.Ext(p))] {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func hostAllowed(host string, hosts []string) bool {
	if len(hosts) == 0 {
		return true
	}
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// ParseTags reads area, rooms and floors from the tag fragments. Each value
// is looked up independently.
func ParseTags(fragments []string) TagFields {
	text := strings.Join(fragments, "\n")
	var tf TagFields

	for _, re := range areaPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			if v := parseFloat(m[1]); v > 0 {
				tf.Area = &v
				break
			}
		}
	}

	for _, re := range roomsPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			if v := parseInt(m[1]); v > 0 {
				tf.Rooms = &v
				break
			}
		}
	}

	for _, re := range floorPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 2 {
			floor, floors := parseInt(m[1]), parseInt(m[2])
			if floor > 0 && floors >= floor {
				tf.Floor, tf.Floors = &floor, &floors
				break
			}
		}
	}
	if tf.Floor == nil {
		if m := singleFloorPattern.FindStringSubmatch(text); len(m) > 1 {
			if v := parseInt(m[1]); v > 0 {
				tf.Floor = &v
			}
		}
	}
	if tf.Floors == nil {
		if m := floorsPattern.FindStringSubmatch(text); len(m) > 1 {
			if v := parseInt(m[1]); v > 0 {
				tf.Floors = &v
			}
		}
	}

	return tf
}

// firstText walks the selector cascade and returns the first non-empty text.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := cleanText(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).Attr("content")
	return strings.TrimSpace(content)
}

var whitespace = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func parseFloat(s string) float64 {
	s = strings.Replace(s, ",", ".", -1)
	s = strings.TrimSpace(s)
	val, _ := strconv.ParseFloat(s, 64)
	return val
}

func parseInt(s string) int {
	val, _ := strconv.Atoi(strings.TrimSpace(s))
	return val
}
