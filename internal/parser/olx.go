package parser

import "regexp"

const SiteOLX = "olx"

// NewOLXParser returns the olx.ua selector set. Detail pages live under
// /d/uk/obyavlenie/<slug>-ID<id>.html (or without the uk/ prefix).
func NewOLXParser() *SiteParser {
	return &SiteParser{
		site:       SiteOLX,
		baseURL:    "https://www.olx.ua",
		detailURL:  regexp.MustCompile(`(?:https?://(?:www\.|m\.)?olx\.ua)?(/d/(?:uk/)?obyavlenie/[a-z0-9\-]+-ID[A-Za-z0-9]+\.html)`),
		externalID: regexp.MustCompile(`-ID([A-Za-z0-9]+)\.html`),
		selectors: Selectors{
			Title: []string{
				`[data-cy="ad_title"] h4`,
				`[data-cy="ad_title"]`,
				`[data-testid="ad_title"]`,
				`h1`,
			},
			Description: []string{
				`[data-cy="ad_description"] div`,
				`[data-testid="ad_description"]`,
				`.descriptioncontent`,
			},
			Price: []string{
				`[data-testid="ad-price-container"] h3`,
				`[data-testid="ad-price-container"]`,
				`.pricelabel`,
			},
			Address: []string{
				`[data-testid="map-aside-section"] p`,
				`[data-testid="location-date"]`,
				`.css-1cju8pu`,
			},
			Phone: []string{
				`[data-testid="phones-container"]`,
				`[data-testid="contact-phone"]`,
				`[data-cy="ad-contact-phone"]`,
			},
			PhoneReveal: []string{
				`[data-testid="show-phone"]`,
				`button[data-cy="ad-contact-phone"]`,
				`[data-testid="ad-contact-phone"]`,
			},
			Images: []string{
				`[data-testid="swiper-image"]`,
				`[data-testid="swiper-image-lazy"]`,
				`[data-cy="adPhotos-swiperSlide"] img`,
			},
			Tags: []string{
				`[data-testid="ad-parameters-container"] p`,
				`[data-testid="main"] ul li p`,
				`ul.css-sfcl1s li`,
			},
		},
		imageHosts: []string{"olxcdn.com", "olx.ua"},
	}
}
