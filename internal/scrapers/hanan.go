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
)

// hananMaxPages bounds the pagination loop. The normal stop condition is a
// page with zero product elements; the ceiling guards against a site that
// keeps serving the same non-empty page forever.
const hananMaxPages = 50

// Hanan scrapes hanan.rs, a WooCommerce storefront with paginated category
// listings (/page/2/, /page/3/, ...).
type Hanan struct {
	fetcher    PageFetcher
	logger     *slog.Logger
	baseURL    string
	categories []category

	idPatterns []*regexp.Regexp
}

func NewHanan(f PageFetcher, logger *slog.Logger) *Hanan {
	return &Hanan{
		fetcher: f,
		logger:  logger.With("scraper", "hanan"),
		baseURL: "https://hanan.rs",
		categories: []category{
			{name: "Kovani elementi", path: "/kategorija-proizvoda/kovani-elementi/"},
		},
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/([^/]+)/?$`),
		},
	}
}

func (s *Hanan) Name() string { return "hanan" }

func (s *Hanan) ScrapeProducts(ctx context.Context) ([]models.ProductRecord, error) {
	var all []models.ProductRecord

	for _, cat := range s.categories {
		for page := 1; page <= hananMaxPages; page++ {
			pageURL := s.pageURL(cat, page)

			doc, err := s.fetcher.Fetch(ctx, pageURL)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return all, err
				}
				s.logger.Warn("stopping category", "category", cat.name, "page", page, "error", err)
				break
			}

			products := doc.Find(".product")
			if products.Length() == 0 {
				s.logger.Info("no products on page, stopping", "category", cat.name, "page", page)
				break
			}

			products.Each(func(_ int, elem *goquery.Selection) {
				rec, err := extractWooCommerceProduct(s.baseURL, s.idPatterns, elem, cat.name)
				if err != nil {
					s.logger.Warn("skipping product", "category", cat.name, "page", page, "error", err)
					return
				}
				all = append(all, *rec)
			})
		}
	}

	return all, nil
}

func (s *Hanan) pageURL(cat category, page int) string {
	if page == 1 {
		return s.baseURL + cat.path
	}
	return fmt.Sprintf("%s%s/page/%d/", s.baseURL, strings.TrimSuffix(cat.path, "/"), page)
}
