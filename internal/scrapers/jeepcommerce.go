package scrapers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ironline/price-monitor/internal/models"
	"github.com/ironline/price-monitor/internal/pricing"
)

// JeepCommerce scrapes jeepcommerce.rs, a stock WooCommerce storefront.
type JeepCommerce struct {
	fetcher    PageFetcher
	logger     *slog.Logger
	baseURL    string
	categories []category

	idPatterns []*regexp.Regexp
}

func NewJeepCommerce(f PageFetcher, logger *slog.Logger) *JeepCommerce {
	return &JeepCommerce{
		fetcher: f,
		logger:  logger.With("scraper", "jeepcommerce"),
		baseURL: "https://jeepcommerce.rs",
		categories: []category{
			{name: "Profili", path: "/kategorija-proizvoda/profili/"},
			{name: "Limovi", path: "/kategorija-proizvoda/limovi/"},
			{name: "Cevi", path: "/kategorija-proizvoda/cevi/"},
		},
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/proizvod/([^/]+)/`),
			regexp.MustCompile(`product/([^/]+)/`),
		},
	}
}

func (s *JeepCommerce) Name() string { return "jeepcommerce" }

func (s *JeepCommerce) ScrapeProducts(ctx context.Context) ([]models.ProductRecord, error) {
	var all []models.ProductRecord

	for _, cat := range s.categories {
		doc, err := s.fetcher.Fetch(ctx, s.baseURL+cat.path)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return all, err
			}
			s.logger.Warn("skipping category", "category", cat.name, "error", err)
			continue
		}

		doc.Find(".product").Each(func(_ int, elem *goquery.Selection) {
			rec, err := extractWooCommerceProduct(s.baseURL, s.idPatterns, elem, cat.name)
			if err != nil {
				s.logger.Warn("skipping product", "category", cat.name, "error", err)
				return
			}
			all = append(all, *rec)
		})
	}

	return all, nil
}

// extractWooCommerceProduct pulls a product record out of a WooCommerce
// listing element. Shared by the WooCommerce-based sites; the discounted
// price lives in `.price ins .amount` when a sale badge is present.
func extractWooCommerceProduct(baseURL string, idPatterns []*regexp.Regexp, elem *goquery.Selection, categoryName string) (*models.ProductRecord, error) {
	link := elem.Find("a.woocommerce-LoopProduct-link").First()
	if link.Length() == 0 {
		return nil, fmt.Errorf("product link not found")
	}

	productURL := absoluteURL(baseURL, link.AttrOr("href", ""))

	externalID := ""
	for _, p := range idPatterns {
		if m := p.FindStringSubmatch(productURL); m != nil {
			externalID = m[1]
			break
		}
	}
	if externalID == "" {
		externalID = segmentFromEnd(productURL, 0)
	}

	name := strings.TrimSpace(elem.Find(".woocommerce-loop-product__title").First().Text())
	if name == "" {
		name = strings.TrimSpace(elem.Find("h2").First().Text())
	}
	if name == "" {
		name = "Unknown"
	}

	priceSel := elem.Find(".price ins .amount").First()
	if priceSel.Length() == 0 {
		priceSel = elem.Find(".price .amount").First()
	}
	price, err := pricing.ParsePrice(strings.TrimSpace(priceSel.Text()))
	if err != nil {
		return nil, fmt.Errorf("no parseable price: %w", err)
	}

	onSale := elem.Find(".onsale").Length() > 0

	rec := &models.ProductRecord{
		ExternalID:   externalID,
		Name:         name,
		Category:     categoryName,
		CurrentPrice: price,
		OnSale:       onSale,
		ProductURL:   productURL,
		InStock:      true,
	}
	if onSale {
		rec.SalePrice = &price
	}

	if img := elem.Find("img").First(); img.Length() > 0 {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		rec.ImageURL = src
	}

	return rec, nil
}
