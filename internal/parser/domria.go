package parser

import "regexp"

const SiteDomRia = "domria"

// NewDomRiaParser returns the dom.ria.com selector set. Detail pages look
// like /uk/realty-<slug>-<numeric id>.html.
func NewDomRiaParser() *SiteParser {
	return &SiteParser{
		site:       SiteDomRia,
		baseURL:    "https://dom.ria.com",
		detailURL:  regexp.MustCompile(`(?:https?://dom\.ria\.com)?(/(?:uk/|ru/)?realty-[a-z0-9\-]+-\d+\.html)`),
		externalID: regexp.MustCompile(`-(\d+)\.html`),
		selectors: Selectors{
			Title: []string{
				`h1[data-testid="title"]`,
				`.finalPage h1`,
				`h1`,
			},
			Description: []string{
				`#descriptionBlock`,
				`[data-testid="description"]`,
				`.descriptionBlock`,
			},
			Price: []string{
				`[data-testid="price"]`,
				`.price`,
				`.finalPage .price`,
			},
			Address: []string{
				`[data-testid="address"]`,
				`.addresses`,
				`h1 + div a`,
			},
			Phone: []string{
				`[data-testid="phone"]`,
				`.phone`,
				`.conversion_phone_newbuilds`,
			},
			PhoneReveal: []string{
				`[data-testid="phone-button"]`,
				`.phone.unmask`,
				`.showPhone`,
			},
			Images: []string{
				`[data-testid="gallery"] img`,
				`.photo-74x56 img`,
				`picture img`,
				`picture source`,
			},
			Tags: []string{
				`[data-testid="params"] li`,
				`#description ul li`,
				`.main-params li`,
			},
		},
		imageHosts: []string{"riastatic.com", "ria.com"},
	}
}
