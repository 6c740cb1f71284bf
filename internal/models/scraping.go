package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type SiteStatus string

const (
	SiteStatusPending SiteStatus = "pending"
	SiteStatusSuccess SiteStatus = "success"
	SiteStatusFailed  SiteStatus = "failed"
)

type ScrapeStatus string

const (
	ScrapeStatusStarted ScrapeStatus = "started"
	ScrapeStatusSuccess ScrapeStatus = "success"
	ScrapeStatusFailed  ScrapeStatus = "failed"
)

// CompetitorSite is a competitor website configured for scraping.
type CompetitorSite struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	URL                 string     `json:"url"`
	IsActive            bool       `json:"is_active"`
	ScrapeIntervalHours int        `json:"scrape_interval_hours"`
	CrawlDelaySeconds   int        `json:"crawl_delay_seconds"`
	LastScrapedAt       *time.Time `json:"last_scraped_at,omitempty"`
	LastScrapeStatus    SiteStatus `json:"last_scrape_status"`
	LastErrorMessage    string     `json:"last_error_message,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NeedsScraping reports whether the site is due for a scrape at the given
// time: active and either never scraped or past its interval.
func (s *CompetitorSite) NeedsScraping(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.LastScrapedAt == nil {
		return true
	}
	return now.Sub(*s.LastScrapedAt).Hours() >= float64(s.ScrapeIntervalHours)
}

// ProductRecord is a single normalized product observation emitted by a site
// scraper. CurrentPrice is required; records without a parseable price never
// leave the scraper.
type ProductRecord struct {
	ExternalID    string           `json:"external_id"`
	Name          string           `json:"name"`
	Category      string           `json:"category"`
	Description   string           `json:"description"`
	CurrentPrice  decimal.Decimal  `json:"current_price"`
	OnSale        bool             `json:"on_sale"`
	SalePrice     *decimal.Decimal `json:"sale_price,omitempty"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	ProductURL    string           `json:"product_url"`
	ImageURL      string           `json:"image_url"`
	InStock       bool             `json:"in_stock"`
}

// ScrapedProduct is a product persisted from competitor crawls, unique per
// (site, external_id).
type ScrapedProduct struct {
	ID            int64            `json:"id"`
	SiteID        int64            `json:"site_id"`
	SiteName      string           `json:"site_name,omitempty"`
	ExternalID    string           `json:"external_id"`
	Name          string           `json:"name"`
	Category      string           `json:"category"`
	Description   string           `json:"description"`
	CurrentPrice  decimal.Decimal  `json:"current_price"`
	OnSale        bool             `json:"on_sale"`
	SalePrice     *decimal.Decimal `json:"sale_price,omitempty"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	ProductURL    string           `json:"product_url"`
	ImageURL      string           `json:"image_url"`
	InStock       bool             `json:"in_stock"`
	FirstSeenAt   time.Time        `json:"first_seen_at"`
	LastSeenAt    time.Time        `json:"last_seen_at"`
	IsActive      bool             `json:"is_active"`
}

// EffectivePrice is the actual selling price: the sale price when the product
// is on sale and one was captured, otherwise the current price.
func (p *ScrapedProduct) EffectivePrice() decimal.Decimal {
	if p.OnSale && p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.CurrentPrice
}

// DiscountPercentage is the discount relative to the original price, rounded
// to one decimal place. Zero when not on sale or when either price is
// missing (some sites only expose the already-discounted price).
func (p *ScrapedProduct) DiscountPercentage() decimal.Decimal {
	if !p.OnSale || p.OriginalPrice == nil || p.SalePrice == nil || p.OriginalPrice.IsZero() {
		return decimal.Zero
	}
	return p.OriginalPrice.Sub(*p.SalePrice).
		Div(*p.OriginalPrice).
		Mul(decimal.NewFromInt(100)).
		Round(1)
}

// MarshalJSON includes the derived effective_price and discount_percentage
// read-only fields alongside the stored columns.
func (p *ScrapedProduct) MarshalJSON() ([]byte, error) {
	type plain ScrapedProduct
	return json.Marshal(struct {
		*plain
		EffectivePrice     decimal.Decimal `json:"effective_price"`
		DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	}{
		plain:              (*plain)(p),
		EffectivePrice:     p.EffectivePrice(),
		DiscountPercentage: p.DiscountPercentage(),
	})
}

// PriceHistory is one immutable price/availability observation. A row is
// appended on every crawl whether or not anything changed.
type PriceHistory struct {
	ID         int64            `json:"id"`
	ProductID  int64            `json:"product_id"`
	Price      decimal.Decimal  `json:"price"`
	OnSale     bool             `json:"on_sale"`
	SalePrice  *decimal.Decimal `json:"sale_price,omitempty"`
	InStock    bool             `json:"in_stock"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// ScrapeLog is the audit record for one scrape run of one site.
type ScrapeLog struct {
	ID              int64        `json:"id"`
	SiteID          int64        `json:"site_id"`
	SiteName        string       `json:"site_name,omitempty"`
	Status          ScrapeStatus `json:"status"`
	ProductsFound   int          `json:"products_found"`
	ProductsNew     int          `json:"products_new"`
	ProductsUpdated int          `json:"products_updated"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	DurationSeconds *float64     `json:"duration_seconds,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}
