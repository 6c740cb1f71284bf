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

// IronWorks scrapes ironworks.rs. The site has the widest category tree of
// the monitored competitors and loosely structured markup, so the selectors
// are deliberately broad.
type IronWorks struct {
	fetcher    PageFetcher
	logger     *slog.Logger
	baseURL    string
	categories []category

	idPattern *regexp.Regexp
}

func NewIronWorks(f PageFetcher, logger *slog.Logger) *IronWorks {
	return &IronWorks{
		fetcher: f,
		logger:  logger.With("scraper", "ironworks"),
		baseURL: "https://ironworks.rs",
		categories: []category{
			{name: "Šiljci", path: "/kategorija/siljci/"},
			{name: "Sklopovi", path: "/kategorija/sklopovi/"},
			{name: "Grifovani flah", path: "/kategorija/grifovani-flah/"},
			{name: "Grifovani firiket", path: "/kategorija/grifovani-firiket/"},
			{name: "Kvadratne, pravougaone i okrugle cevi", path: "/kategorija/ravne-kutije/"},
			{name: "Kugle i poklopci", path: "/kategorija/kugle-i-poklopci/"},
			{name: "Ravni firiket", path: "/kategorija/ravan-firiket-okrugli-valjani-celik/"},
			{name: "Asimetrični S elementi", path: "/kategorija/asimetricni-s-elementi/"},
			{name: "Simetrični S elementi", path: "/kategorija/simetricni-s-elementi/"},
			{name: "Grifovane kutije", path: "/kategorija/grifovane-kutije/"},
			{name: "Rozetne", path: "/kategorija/rozetne/"},
			{name: "Basketi", path: "/kategorija/basketi/"},
			{name: "Anker ploče", path: "/kategorija/anker-ploce/"},
			{name: "Asimetrične perece", path: "/kategorija/asimetricne-perece/"},
			{name: "Cvetovi i listovi", path: "/kategorija/cvetovi-i-listovi/"},
			{name: "Dekorativni limovi", path: "/kategorija/dekorativni-i-ostali-limovi/"},
			{name: "Ispune i polja", path: "/kategorija/ispune-polja-i-upredene/"},
			{name: "Krugovi i elipse", path: "/kategorija/krugovi-i-elipse/"},
			{name: "Odkivci i kovanice", path: "/kategorija/odkivci-kovanice/"},
			{name: "Okrugle šavne cevi", path: "/kategorija/okrugle-savne-cevi/"},
			{name: "Prstenovi i obojnice", path: "/kategorija/prstenovi-obojnice/"},
			{name: "Ravni flahovi i L profili", path: "/kategorija/ravni-flahovi-i-l-profili/"},
			{name: "Rukohvati i završetci", path: "/kategorija/rukohvati-i-zavrseci-rukohvata/"},
			{name: "Šildovi i kvake", path: "/kategorija/sildovi-kvake-i-sarke/"},
			{name: "Simetrične perece", path: "/kategorija/simetricne-perece/"},
			{name: "Panelne ograde", path: "/kategorija/panelne-ograde/"},
		},
		idPattern: regexp.MustCompile(`/(\d+)`),
	}
}

func (s *IronWorks) Name() string { return "ironworks" }

func (s *IronWorks) ScrapeProducts(ctx context.Context) ([]models.ProductRecord, error) {
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

		doc.Find(".product, .item, article").Each(func(_ int, elem *goquery.Selection) {
			rec, err := s.extractProduct(elem, cat.name)
			if err != nil {
				s.logger.Warn("skipping product", "category", cat.name, "error", err)
				return
			}
			all = append(all, *rec)
		})
	}

	return all, nil
}

func (s *IronWorks) extractProduct(elem *goquery.Selection, categoryName string) (*models.ProductRecord, error) {
	link := elem.Find("a").First()
	if link.Length() == 0 {
		return nil, fmt.Errorf("product link not found")
	}

	productURL := absoluteURL(s.baseURL, link.AttrOr("href", ""))

	externalID := ""
	if m := s.idPattern.FindStringSubmatch(strings.TrimPrefix(productURL, "https://")); m != nil {
		externalID = m[1]
	} else {
		externalID = segmentFromEnd(productURL, 0)
	}

	name := strings.TrimSpace(elem.Find("h2, h3, .title").First().Text())
	if name == "" {
		name = "Unknown"
	}

	priceText := strings.TrimSpace(elem.Find(".price, span").First().Text())
	price, err := pricing.ParsePrice(priceText)
	if err != nil {
		return nil, fmt.Errorf("no parseable price in %q: %w", priceText, err)
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
		rec.ImageURL = img.AttrOr("src", "")
	}

	return rec, nil
}
