package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestNeedsScraping(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		site     CompetitorSite
		expected bool
	}{
		{
			name:     "inactive site never needs scraping",
			site:     CompetitorSite{IsActive: false, ScrapeIntervalHours: 24, LastScrapedAt: timePtr(now.Add(-48 * time.Hour))},
			expected: false,
		},
		{
			name:     "inactive and never scraped",
			site:     CompetitorSite{IsActive: false, ScrapeIntervalHours: 24},
			expected: false,
		},
		{
			name:     "active and never scraped",
			site:     CompetitorSite{IsActive: true, ScrapeIntervalHours: 24},
			expected: true,
		},
		{
			name:     "active and past interval",
			site:     CompetitorSite{IsActive: true, ScrapeIntervalHours: 24, LastScrapedAt: timePtr(now.Add(-25 * time.Hour))},
			expected: true,
		},
		{
			name:     "active exactly at interval",
			site:     CompetitorSite{IsActive: true, ScrapeIntervalHours: 24, LastScrapedAt: timePtr(now.Add(-24 * time.Hour))},
			expected: true,
		},
		{
			name:     "active within interval",
			site:     CompetitorSite{IsActive: true, ScrapeIntervalHours: 24, LastScrapedAt: timePtr(now.Add(-23 * time.Hour))},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.site.NeedsScraping(now))
		})
	}
}

func TestEffectivePrice(t *testing.T) {
	p := ScrapedProduct{CurrentPrice: decimal.RequireFromString("1000")}
	assert.True(t, p.EffectivePrice().Equal(decimal.RequireFromString("1000")))

	p.OnSale = true
	assert.True(t, p.EffectivePrice().Equal(decimal.RequireFromString("1000")),
		"on sale without a captured sale price falls back to current price")

	p.SalePrice = decPtr("750")
	assert.True(t, p.EffectivePrice().Equal(decimal.RequireFromString("750")))
}

func TestDiscountPercentage(t *testing.T) {
	tests := []struct {
		name     string
		product  ScrapedProduct
		expected string
	}{
		{
			name: "25 percent off",
			product: ScrapedProduct{
				OnSale:        true,
				OriginalPrice: decPtr("1000"),
				SalePrice:     decPtr("750"),
			},
			expected: "25",
		},
		{
			name: "rounded to one decimal",
			product: ScrapedProduct{
				OnSale:        true,
				OriginalPrice: decPtr("900"),
				SalePrice:     decPtr("600"),
			},
			expected: "33.3",
		},
		{
			name: "not on sale",
			product: ScrapedProduct{
				OnSale:        false,
				OriginalPrice: decPtr("1000"),
				SalePrice:     decPtr("750"),
			},
			expected: "0",
		},
		{
			name:     "missing original price",
			product:  ScrapedProduct{OnSale: true, SalePrice: decPtr("750")},
			expected: "0",
		},
		{
			name:     "missing sale price",
			product:  ScrapedProduct{OnSale: true, OriginalPrice: decPtr("1000")},
			expected: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.product.DiscountPercentage().Equal(decimal.RequireFromString(tt.expected)),
				"got %s", tt.product.DiscountPercentage())
		})
	}
}

func TestScrapedProductJSONCarriesDerivedPrices(t *testing.T) {
	p := &ScrapedProduct{
		ID:            1,
		ExternalID:    "212",
		Name:          "Kovani vrh",
		CurrentPrice:  decimal.RequireFromString("750.00"),
		OnSale:        true,
		SalePrice:     decPtr("750.00"),
		OriginalPrice: decPtr("1000.00"),
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, `"750"`, string(out["effective_price"]))
	assert.Equal(t, `"25"`, string(out["discount_percentage"]))
	assert.Contains(t, out, "current_price")

	// not on sale: derived fields fall back to current price and zero
	plain := &ScrapedProduct{CurrentPrice: decimal.RequireFromString("474")}
	data, err = json.Marshal(plain)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, `"474"`, string(out["effective_price"]))
	assert.Equal(t, `"0"`, string(out["discount_percentage"]))
}
