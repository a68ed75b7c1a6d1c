package parser

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		amount   float64
		currency string
	}{
		{"dollar suffix with spaces", "52 000 $", 52000, "USD"},
		{"hryvnia with dot", "1 250 000 грн.", 1250000, "UAH"},
		{"dollar prefix with thousands comma", "$ 45,500", 45500, "USD"},
		{"euro prefix", "€1200", 1200, "EUR"},
		{"conventional units", "35 500 у.о.", 35500, "USD"},
		{"spaced conventional units", "45 000 у. о.", 45000, "USD"},
		{"spaced conventional units e", "45 000 у. е.", 45000, "USD"},
		{"decimal comma", "12 345,50 грн", 12345.5, "UAH"},
		{"non-breaking spaces", "75 000 $", 75000, "USD"},
		{"iso code", "980000 UAH", 980000, "UAH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := ParsePrice(tt.text)
			require.NotNil(t, price)
			assert.Equal(t, tt.amount, price.Amount)
			assert.Equal(t, tt.currency, price.Currency)
		})
	}

	for _, text := range []string{"", "Договірна", "0 грн", "ціна за домовленістю"} {
		assert.Nil(t, ParsePrice(text), text)
	}
}

func TestParsePhone(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		{"+38 (097) 123-45-67", "+380971234567"},
		{"097 123 45 67", "+380971234567"},
		{"Тел.: 0501112233", "+380501112233"},
		{"380631234567", "+380631234567"},
		{"097 xxx xx xx", ""},
		{"Показати телефон", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParsePhone(tt.text))
		})
	}
}

func TestFilterImages(t *testing.T) {
	candidates := []string{
		"//cdn.riastatic.com/a.jpg",
		"https://cdn.riastatic.com/a.jpg",
		"ftp://cdn.riastatic.com/b.jpg",
		"https://evil.example.com/c.jpg",
		"https://cdn.riastatic.com/logo.svg",
		"https://cdn.riastatic.com/d.PNG",
		"not a url",
	}

	got := FilterImages(candidates, []string{"riastatic.com"}, 10)
	assert.Equal(t, []string{"https://cdn.riastatic.com/a.jpg", "https://cdn.riastatic.com/d.PNG"}, got)

	var many []string
	for i := 0; i < 15; i++ {
		many = append(many, fmt.Sprintf("https://ireland.apollo.olxcdn.com/v1/files/%d-UA/image;s=1000x700", i))
	}
	got = FilterImages(many, []string{"olxcdn.com"}, 10)
	assert.Len(t, got, 10)
	assert.Equal(t, many[:10], got)

	assert.Empty(t, FilterImages(nil, nil, 10))
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		area      *float64
		rooms     *int
		floor     *int
		floors    *int
	}{
		{
			name:      "olx parameter list",
			fragments: []string{"Поверх: 3", "Поверховість: 9", "Загальна площа: 54.5 м²", "Кількість кімнат: 2 кімнати"},
			area:      ptr(54.5),
			rooms:     ptr(2),
			floor:     ptr(3),
			floors:    ptr(9),
		},
		{
			name:      "slash floor",
			fragments: []string{"72 м²", "5/16 поверх", "3 кімнати"},
			area:      ptr(72.0),
			rooms:     ptr(3),
			floor:     ptr(5),
			floors:    ptr(16),
		},
		{
			name:      "floor of floors in words",
			fragments: []string{"поверх 4 з 10"},
			floor:     ptr(4),
			floors:    ptr(10),
		},
		{
			name:      "only area",
			fragments: []string{"Площа 40,5 м2"},
			area:      ptr(40.5),
		},
		{
			name:      "nothing",
			fragments: []string{"Ремонт", "Меблі"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tf := ParseTags(tt.fragments)
			assert.Equal(t, tt.area, tf.Area)
			assert.Equal(t, tt.rooms, tf.Rooms)
			assert.Equal(t, tt.floor, tf.Floor)
			assert.Equal(t, tt.floors, tf.Floors)
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
