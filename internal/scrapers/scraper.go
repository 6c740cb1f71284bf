package scrapers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ironline/price-monitor/internal/models"
)

var ErrNoScraper = errors.New("no scraper for site")

// PageFetcher fetches a URL and returns the parsed document. Production code
// passes *fetcher.Fetcher; tests inject canned documents.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// Scraper is a site-specific extraction strategy. ScrapeProducts walks the
// site's known category pages and returns normalized product records.
// Per-item and per-category failures are absorbed and logged; the returned
// error covers only failures that invalidate the whole run.
type Scraper interface {
	Name() string
	ScrapeProducts(ctx context.Context) ([]models.ProductRecord, error)
}

// ForSite resolves the scraper for a configured competitor site. The switch
// is the closed set of supported sites; adding a competitor means adding a
// case here and its adapter file.
func ForSite(name string, f PageFetcher, logger *slog.Logger) (Scraper, error) {
	switch strings.ToLower(name) {
	case "joilart":
		return NewJoilArt(f, logger), nil
	case "jeepcommerce":
		return NewJeepCommerce(f, logger), nil
	case "hanan":
		return NewHanan(f, logger), nil
	case "velog":
		return NewVelog(f, logger), nil
	case "ironworks":
		return NewIronWorks(f, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoScraper, name)
	}
}

// SiteNames lists the supported competitor sites.
func SiteNames() []string {
	return []string{"joilart", "jeepcommerce", "hanan", "velog", "ironworks"}
}

type category struct {
	name string
	path string
}
