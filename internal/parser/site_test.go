package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const olxDetailHTML = `<!DOCTYPE html>
<html>
<head>
	<meta property="og:image" content="https://ireland.apollo.olxcdn.com/v1/files/og-UA/image">
</head>
<body>
	<div data-cy="ad_title"><h4>2-кімнатна квартира, 54 м², Печерськ</h4></div>
	<div data-testid="ad-price-container"><h3>52 000 $</h3></div>
	<div data-cy="ad_description"><div>Продаж квартири, вул. Антоновича 10. Ремонт.</div></div>
	<div data-testid="map-aside-section"><p>Київ, Печерський</p></div>
	<div data-testid="phones-container">097 xxx xx xx</div>
	<div data-cy="adPhotos-swiperSlide"><img src="https://ireland.apollo.olxcdn.com/v1/files/a1-UA/image;s=1000x700"></div>
	<div data-cy="adPhotos-swiperSlide"><img src="https://ireland.apollo.olxcdn.com/v1/files/a1-UA/image;s=1000x700"></div>
	<div data-cy="adPhotos-swiperSlide"><img src="data:image/gif;base64,R0lGOD" data-src="https://ireland.apollo.olxcdn.com/v1/files/a2-UA/image;s=1000x700"></div>
	<div data-cy="adPhotos-swiperSlide"><img src="https://tracker.example.com/pixel.png"></div>
	<div data-testid="ad-parameters-container">
		<p>Поверх: 3</p>
		<p>Поверховість: 9</p>
		<p>Загальна площа: 54 м²</p>
		<p>Кількість кімнат: 2 кімнати</p>
	</div>
</body>
</html>`

const domriaDetailHTML = `<!DOCTYPE html>
<html>
<body>
	<h1 data-testid="title">Продаж 3 кімнатної квартири</h1>
	<div data-testid="price">1 250 000 грн</div>
	<div id="descriptionBlock">Простора квартира біля метро.</div>
	<div data-testid="address">Оболонський район, Оболонь</div>
	<a href="tel:+380971234567">Подзвонити</a>
	<div data-testid="gallery">
		<img srcset="https://cdn.riastatic.com/photosnew/dom/photo/a__1xl.webp 1x, https://cdn.riastatic.com/photosnew/dom/photo/a__1xg.webp 2x">
		<img src="https://cdn.riastatic.com/photosnew/dom/photo/b__2xl.jpg">
		<img src="https://cdn.riastatic.com/img/logo.svg">
	</div>
	<ul data-testid="params">
		<li>72 м²</li>
		<li>5/16 поверх</li>
	</ul>
</body>
</html>`

func TestOLXParseDetail(t *testing.T) {
	p := NewOLXParser()

	d, err := p.ParseDetail(olxDetailHTML)
	require.NoError(t, err)

	assert.Equal(t, "2-кімнатна квартира, 54 м², Печерськ", d.Title)
	assert.Equal(t, "Продаж квартири, вул. Антоновича 10. Ремонт.", d.Description)
	assert.Equal(t, "Київ, Печерський", d.Address)
	require.NotNil(t, d.Price)
	assert.Equal(t, 52000.0, d.Price.Amount)
	assert.Equal(t, "USD", d.Price.Currency)
	assert.Empty(t, d.Phone, "obfuscated phone must be treated as absent")

	assert.Equal(t, []string{
		"https://ireland.apollo.olxcdn.com/v1/files/a1-UA/image;s=1000x700",
		"https://ireland.apollo.olxcdn.com/v1/files/a2-UA/image;s=1000x700",
		"https://ireland.apollo.olxcdn.com/v1/files/og-UA/image",
	}, d.Images)

	assert.Len(t, d.Tags, 4)
	require.NotNil(t, d.Area)
	assert.Equal(t, 54.0, *d.Area)
	require.NotNil(t, d.Rooms)
	assert.Equal(t, 2, *d.Rooms)
	require.NotNil(t, d.Floor)
	assert.Equal(t, 3, *d.Floor)
	require.NotNil(t, d.Floors)
	assert.Equal(t, 9, *d.Floors)
}

func TestDomRiaParseDetail(t *testing.T) {
	p := NewDomRiaParser()

	d, err := p.ParseDetail(domriaDetailHTML)
	require.NoError(t, err)

	assert.Equal(t, "Продаж 3 кімнатної квартири", d.Title)
	assert.Equal(t, "Оболонський район, Оболонь", d.Address)
	require.NotNil(t, d.Price)
	assert.Equal(t, 1250000.0, d.Price.Amount)
	assert.Equal(t, "UAH", d.Price.Currency)
	assert.Equal(t, "+380971234567", d.Phone)
	assert.Equal(t, []string{
		"https://cdn.riastatic.com/photosnew/dom/photo/a__1xl.webp",
		"https://cdn.riastatic.com/photosnew/dom/photo/b__2xl.jpg",
	}, d.Images)

	require.NotNil(t, d.Rooms)
	assert.Equal(t, 3, *d.Rooms)
	require.NotNil(t, d.Area)
	assert.Equal(t, 72.0, *d.Area)
	require.NotNil(t, d.Floor)
	assert.Equal(t, 5, *d.Floor)
	assert.Equal(t, 16, *d.Floors)
}

func TestParseDetailMissingFields(t *testing.T) {
	d, err := NewOLXParser().ParseDetail(`<html><body><p>Оголошення видалено</p></body></html>`)
	require.NoError(t, err)
	assert.Empty(t, d.Title)
	assert.Nil(t, d.Price)
	assert.Empty(t, d.Images)
	assert.Nil(t, d.Rooms)
}

func TestOLXDiscoverURLs(t *testing.T) {
	p := NewOLXParser()

	html := `<div class="listing-grid">
		<a href="/d/uk/obyavlenie/kvartira-pechersk-IDabc12.html">Квартира</a>
		<a href="https://www.olx.ua/d/uk/obyavlenie/kvartira-pechersk-IDabc12.html?reason=extended">duplicate</a>
		<script>{"url":"https://m.olx.ua/d/obyavlenie/budinok-IDzz9.html"}</script>
		<a href="/d/uk/nedvizhimost/kvartiry/">category</a>
		<a href="https://www.olx.ua/uk/list/">list</a>
	</div>`

	urls := p.DiscoverURLs(html, 20)
	assert.Equal(t, []string{
		"https://www.olx.ua/d/uk/obyavlenie/kvartira-pechersk-IDabc12.html",
		"https://www.olx.ua/d/obyavlenie/budinok-IDzz9.html",
	}, urls)

	assert.Equal(t, "abc12", p.ExternalID(urls[0]))
	assert.Equal(t, "zz9", p.ExternalID(urls[1]))
	assert.Empty(t, p.ExternalID("https://www.olx.ua/uk/list/"))
}

func TestDiscoverURLsCap(t *testing.T) {
	p := NewDomRiaParser()

	var b strings.Builder
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, `<a href="/uk/realty-prodaja-kvartira-kiev-obolon-%d.html">x</a>`, 33021200+i)
	}

	urls := p.DiscoverURLs(b.String(), 20)
	require.Len(t, urls, 20)
	assert.Equal(t, "https://dom.ria.com/uk/realty-prodaja-kvartira-kiev-obolon-33021200.html", urls[0])
	assert.Equal(t, "33021219", p.ExternalID(urls[19]))
}
