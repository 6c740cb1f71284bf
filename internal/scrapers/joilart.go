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

// JoilArt scrapes joilart.com. Product URLs follow /proizvod/{ID}_{name}/show;
// a sale is marked with the .akcija badge and only the discounted price is
// shown, so sale_price mirrors current_price and original_price stays unset.
type JoilArt struct {
	fetcher    PageFetcher
	logger     *slog.Logger
	baseURL    string
	categories []category

	idPattern         *regexp.Regexp
	fallbackIDPattern *regexp.Regexp
}

func NewJoilArt(f PageFetcher, logger *slog.Logger) *JoilArt {
	return &JoilArt{
		fetcher: f,
		logger:  logger.With("scraper", "joilart"),
		baseURL: "https://joilart.com",
		categories: []category{
			{name: "Kovani vrhovi i šiljci", path: "/proizvodi/1_kovani-elementi/1_kovani-vrhovi-i-siljci"},
			{name: "Cvetovi i listovi", path: "/proizvodi/1_kovani-elementi/41_cvetovi-i-listovi"},
			{name: "Basketi i kugle", path: "/proizvodi/1_kovani-elementi/42_basketi-kovanice-i-kugle"},
			{name: "Flah gladak", path: "/proizvod/3_flah-gladak/materijal"},
			{name: "Kutija kvadratna", path: "/proizvod/5_kutija-kvadratna-glatka/materijal"},
		},
		idPattern:         regexp.MustCompile(`/proizvod/(\d+)_`),
		fallbackIDPattern: regexp.MustCompile(`/(\d+)_`),
	}
}

func (s *JoilArt) Name() string { return "joilart" }

func (s *JoilArt) ScrapeProducts(ctx context.Context) ([]models.ProductRecord, error) {
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

		doc.Find(".product-wrapper").Each(func(_ int, wrapper *goquery.Selection) {
			rec, err := s.extractProduct(wrapper, cat.name)
			if err != nil {
				s.logger.Warn("skipping product", "category", cat.name, "error", err)
				return
			}
			all = append(all, *rec)
		})
	}

	return all, nil
}

func (s *JoilArt) extractProduct(wrapper *goquery.Selection, categoryName string) (*models.ProductRecord, error) {
	link := wrapper.Find(".product-img a").First()
	if link.Length() == 0 {
		link = wrapper.Find(".product-content h5 a").First()
	}
	if link.Length() == 0 {
		return nil, fmt.Errorf("product link not found")
	}

	productURL := absoluteURL(s.baseURL, link.AttrOr("href", ""))

	externalID := ""
	if m := s.idPattern.FindStringSubmatch(productURL); m != nil {
		externalID = m[1]
	} else if m := s.fallbackIDPattern.FindStringSubmatch(productURL); m != nil {
		externalID = m[1]
	} else {
		// URLs end in /show, the slug is the segment before it
		externalID = segmentFromEnd(productURL, 1)
	}

	name := strings.TrimSpace(wrapper.Find(".product-content h5 a").First().Text())
	if name == "" {
		name = "Unknown"
	}

	// The remaining h5 elements carry dimensions, the first one is the name
	var descriptionParts []string
	wrapper.Find(".product-content h5").Each(func(i int, sel *goquery.Selection) {
		if i == 0 {
			return
		}
		text := strings.TrimSpace(sel.Text())
		if text != "" && !strings.Contains(text, "RSD") {
			descriptionParts = append(descriptionParts, text)
		}
	})

	priceText := strings.TrimSpace(wrapper.Find(".product-content span").First().Text())
	price, err := pricing.ParsePrice(priceText)
	if err != nil {
		return nil, fmt.Errorf("no parseable price in %q: %w", priceText, err)
	}

	onSale := wrapper.Find(".akcija").Length() > 0

	rec := &models.ProductRecord{
		ExternalID:   externalID,
		Name:         name,
		Category:     categoryName,
		Description:  strings.Join(descriptionParts, ", "),
		CurrentPrice: price,
		OnSale:       onSale,
		ProductURL:   productURL,
		InStock:      true,
	}
	if onSale {
		// Only the discounted price is visible on the listing
		rec.SalePrice = &price
	}

	if img := wrapper.Find(".product-img img").First(); img.Length() > 0 {
		rec.ImageURL = absoluteURL(s.baseURL, img.AttrOr("src", ""))
	}

	return rec, nil
}
