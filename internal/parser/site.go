package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/realty-crawler/internal/models"
)

// Selectors is the ordered selector cascade per field. The first selector
// yielding a value wins.
type Selectors struct {
	Title       []string
	Description []string
	Price       []string
	Address     []string
	Phone       []string
	PhoneReveal []string
	Images      []string
	Tags        []string
}

// SiteParser is the selector and pattern set of one listing site.
type SiteParser struct {
	site       string
	baseURL    string
	detailURL  *regexp.Regexp
	externalID *regexp.Regexp
	selectors  Selectors
	imageHosts []string
}

var imageAttrs = []string{"src", "data-src", "data-lazy", "srcset"}

func (p *SiteParser) Site() string {
	return p.site
}

func (p *SiteParser) Selectors() Selectors {
	return p.selectors
}

// DiscoverURLs pulls detail URLs out of raw index HTML by URL shape alone,
// so unrelated markup changes do not affect discovery. Results are absolute,
// unique, in page order and capped at limit.
func (p *SiteParser) DiscoverURLs(html string, limit int) []string {
	var urls []string
	seen := make(map[string]struct{})

	for _, m := range p.detailURL.FindAllStringSubmatch(html, -1) {
		u := p.baseURL + m[1]
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
		if limit > 0 && len(urls) == limit {
			break
		}
	}
	return urls
}

func (p *SiteParser) ExternalID(detailURL string) string {
	if m := p.externalID.FindStringSubmatch(detailURL); len(m) > 1 {
		return m[1]
	}
	return ""
}

// ParseDetail extracts every field independently. Only an unreadable
// document is an error; missing fields are left empty.
func (p *SiteParser) ParseDetail(html string) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	d := &Detail{
		Title:       firstText(doc, p.selectors.Title),
		Description: firstText(doc, p.selectors.Description),
		Address:     firstText(doc, p.selectors.Address),
	}
	if d.Title == "" {
		d.Title = metaContent(doc, "og:title")
	}
	if d.Description == "" {
		d.Description = metaContent(doc, "og:description")
	}

	d.Price = p.extractPrice(doc)
	d.Phone = p.extractPhone(doc)
	d.Images = p.ExtractImages(html)
	d.Tags = p.extractTags(doc)
	d.TagFields = ParseTags(append([]string{d.Title}, d.Tags...))

	return d, nil
}

func (p *SiteParser) extractPrice(doc *goquery.Document) *models.Price {
	for _, sel := range p.selectors.Price {
		if price := ParsePrice(cleanText(doc.Find(sel).First().Text())); price != nil {
			return price
		}
	}
	if amount, ok := doc.Find(`meta[property="product:price:amount"]`).Attr("content"); ok {
		code, _ := doc.Find(`meta[property="product:price:currency"]`).Attr("content")
		if price := ParsePrice(amount + " " + code); price != nil {
			return price
		}
	}
	return nil
}

func (p *SiteParser) extractPhone(doc *goquery.Document) string {
	for _, sel := range p.selectors.Phone {
		if phone := ParsePhone(doc.Find(sel).First().Text()); phone != "" {
			return phone
		}
	}
	if href, ok := doc.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
		return ParsePhone(strings.TrimPrefix(href, "tel:"))
	}
	return ""
}

// ExtractImages collects gallery image URLs from html and applies the
// site's host allowlist.
func (p *SiteParser) ExtractImages(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var candidates []string
	for _, sel := range p.selectors.Images {
		doc.Find(sel).Each(func(i int, s *goquery.Selection) {
			for _, attr := range imageAttrs {
				v, ok := s.Attr(attr)
				if attr == "srcset" {
					v = firstSrcsetURL(v)
				}
				if !ok || v == "" || strings.HasPrefix(v, "data:") {
					continue
				}
				candidates = append(candidates, v)
				return
			}
		})
	}
	if og := metaContent(doc, "og:image"); og != "" {
		candidates = append(candidates, og)
	}

	return FilterImages(candidates, p.imageHosts, models.MaxImages)
}

func (p *SiteParser) extractTags(doc *goquery.Document) []string {
	var tags []string
	for _, sel := range p.selectors.Tags {
		doc.Find(sel).Each(func(i int, s *goquery.Selection) {
			if text := cleanText(s.Text()); text != "" {
				tags = append(tags, text)
			}
		})
		if len(tags) > 0 {
			break
		}
	}
	return tags
}

func firstSrcsetURL(srcset string) string {
	fields := strings.Fields(strings.Split(srcset, ",")[0])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
