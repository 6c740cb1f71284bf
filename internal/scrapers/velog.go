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

// Velog scrapes velog.rs. The markup has no dedicated product wrapper, so the
// adapter walks every <li>, treats anything with a usable link and price as a
// product, and skips the rest. velog.rs publishes a strict 10s crawl-delay.
type Velog struct {
	fetcher    PageFetcher
	logger     *slog.Logger
	baseURL    string
	categories []category

	idPattern    *regexp.Regexp
	pricePattern *regexp.Regexp
}

func NewVelog(f PageFetcher, logger *slog.Logger) *Velog {
	return &Velog{
		fetcher: f,
		logger:  logger.With("scraper", "velog"),
		baseURL: "https://www.velog.rs",
		categories: []category{
			{name: "Bravarski program", path: "/bravarski_program"},
		},
		idPattern:    regexp.MustCompile(`/(\w+)/?$`),
		pricePattern: regexp.MustCompile(`([\d\s.,]+)\s*RSD`),
	}
}

func (s *Velog) Name() string { return "velog" }

func (s *Velog) ScrapeProducts(ctx context.Context) ([]models.ProductRecord, error) {
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

		doc.Find("li").Each(func(_ int, elem *goquery.Selection) {
			rec, err := s.extractProduct(elem, cat.name)
			if err != nil {
				// Most <li> elements are navigation, not products; stay quiet
				// unless debugging.
				s.logger.Debug("skipping element", "category", cat.name, "error", err)
				return
			}
			all = append(all, *rec)
		})
	}

	return all, nil
}

func (s *Velog) extractProduct(elem *goquery.Selection, categoryName string) (*models.ProductRecord, error) {
	link := elem.Find("a[href]").First()
	if link.Length() == 0 {
		return nil, fmt.Errorf("no link")
	}

	href := link.AttrOr("href", "")
	if href == "" || href == "#" {
		return nil, fmt.Errorf("no usable href")
	}
	productURL := absoluteURL(s.baseURL, href)

	name := strings.TrimSpace(link.Text())
	if len(name) < 3 {
		return nil, fmt.Errorf("name too short")
	}

	externalID := ""
	if m := s.idPattern.FindStringSubmatch(productURL); m != nil {
		externalID = m[1]
	} else {
		externalID = strings.ReplaceAll(name, " ", "_")
		if len(externalID) > 50 {
			externalID = externalID[:50]
		}
	}

	priceText := strings.TrimSpace(elem.Find(".price").First().Text())
	if priceText == "" {
		if m := s.pricePattern.FindStringSubmatch(elem.Text()); m != nil {
			priceText = m[1]
		}
	}
	price, err := pricing.ParsePrice(priceText)
	if err != nil {
		return nil, fmt.Errorf("no parseable price: %w", err)
	}

	rec := &models.ProductRecord{
		ExternalID:   externalID,
		Name:         name,
		Category:     categoryName,
		CurrentPrice: price,
		ProductURL:   productURL,
		InStock:      true,
	}

	if img := elem.Find("img").First(); img.Length() > 0 {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		if src != "" {
			rec.ImageURL = absoluteURL(s.baseURL, src)
		}
	}

	return rec, nil
}
