package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ironline/price-monitor/internal/fetcher"
	"github.com/ironline/price-monitor/internal/models"
	"github.com/ironline/price-monitor/internal/scrapers"
)

// ErrUnknownSite is returned when a requested site name has no row in
// competitor_sites.
var ErrUnknownSite = errors.New("unknown site")

// Store is the slice of the database layer the orchestrator drives.
// *database.DB satisfies it.
type Store interface {
	ListActiveSites(ctx context.Context) ([]*models.CompetitorSite, error)
	GetSiteByName(ctx context.Context, name string) (*models.CompetitorSite, error)
	CreateScrapeLog(ctx context.Context, siteID int64) (int64, error)
	CompleteScrapeLog(ctx context.Context, logID int64, found, created, updated int) error
	FailScrapeLog(ctx context.Context, logID int64, errMsg string) error
	UpdateSiteAfterRun(ctx context.Context, siteID int64, status models.SiteStatus, errMsg string) error
	DeactivateMissing(ctx context.Context, siteID int64, runStart time.Time) (int64, error)
}

// Upserter persists one observed product. *catalog.Catalog satisfies it.
type Upserter interface {
	Upsert(ctx context.Context, site *models.CompetitorSite, rec models.ProductRecord) (bool, error)
}

// ScraperFactory builds the scraper for a site row. Split out so tests can
// substitute canned scrapers without HTTP.
type ScraperFactory func(site *models.CompetitorSite) (scrapers.Scraper, error)

// DefaultScraperFactory wires each site to a fresh fetcher honouring the
// site's configured crawl delay. Timeout and userAgent apply to every site;
// zero values fall back to the fetcher defaults.
func DefaultScraperFactory(timeout time.Duration, userAgent string, logger *slog.Logger) ScraperFactory {
	return func(site *models.CompetitorSite) (scrapers.Scraper, error) {
		f := fetcher.New(fetcher.Config{
			Delay:     time.Duration(site.CrawlDelaySeconds) * time.Second,
			Timeout:   timeout,
			UserAgent: userAgent,
		}, logger)
		return scrapers.ForSite(site.Name, f, logger)
	}
}

// SiteResult summarizes one site's portion of a run.
type SiteResult struct {
	Site            string              `json:"site"`
	Status          models.ScrapeStatus `json:"status"`
	Skipped         bool                `json:"skipped,omitempty"`
	ProductsFound   int                 `json:"products_found"`
	ProductsNew     int                 `json:"products_new"`
	ProductsUpdated int                 `json:"products_updated"`
	Deactivated     int64               `json:"deactivated"`
	Error           string              `json:"error,omitempty"`
	DurationSeconds float64             `json:"duration_seconds"`
}

// RunResult is the outcome of a full Run call, one entry per selected site.
type RunResult struct {
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	Sites       []SiteResult `json:"sites"`
}

// Orchestrator runs the scrape cycle: pick sites, scrape each, persist, and
// record the outcome. A site's failure never aborts the run; every site gets
// its own scrape log either way.
type Orchestrator struct {
	store   Store
	catalog Upserter
	factory ScraperFactory
	logger  *slog.Logger
}

func New(store Store, catalog Upserter, factory ScraperFactory, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		catalog: catalog,
		factory: factory,
		logger:  logger.With("component", "orchestrator"),
	}
}

// Run scrapes the named site, or every active site when siteName is empty.
// Unless force is set, sites that are not yet due per their scrape interval
// are skipped. The returned error covers only site selection; per-site
// failures are reported inside the result.
func (o *Orchestrator) Run(ctx context.Context, siteName string, force bool) (*RunResult, error) {
	result := &RunResult{StartedAt: time.Now()}

	sites, err := o.selectSites(ctx, siteName)
	if err != nil {
		return nil, err
	}

	for _, site := range sites {
		if !force && !site.NeedsScraping(time.Now()) {
			o.logger.Info("site not due, skipping", "site", site.Name)
			result.Sites = append(result.Sites, SiteResult{Site: site.Name, Skipped: true})
			continue
		}
		result.Sites = append(result.Sites, o.scrapeSite(ctx, site))
	}

	result.CompletedAt = time.Now()
	return result, nil
}

func (o *Orchestrator) selectSites(ctx context.Context, siteName string) ([]*models.CompetitorSite, error) {
	if siteName == "" {
		return o.store.ListActiveSites(ctx)
	}
	site, err := o.store.GetSiteByName(ctx, siteName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up site %q: %w", siteName, err)
	}
	if site == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, siteName)
	}
	return []*models.CompetitorSite{site}, nil
}

// scrapeSite runs one site end to end. Failures after the scrape log has been
// opened are recorded on that log and on the site row; the caller only sees
// them through the result.
func (o *Orchestrator) scrapeSite(ctx context.Context, site *models.CompetitorSite) SiteResult {
	start := time.Now()
	res := SiteResult{Site: site.Name, Status: models.ScrapeStatusStarted}
	logger := o.logger.With("site", site.Name)

	logID, err := o.store.CreateScrapeLog(ctx, site.ID)
	if err != nil {
		logger.Error("failed to open scrape log", "error", err)
		return o.fail(ctx, site, &res, -1, start, err)
	}

	scraper, err := o.factory(site)
	if err != nil {
		return o.fail(ctx, site, &res, logID, start, err)
	}

	logger.Info("scrape started")

	records, err := scraper.ScrapeProducts(ctx)
	if err != nil {
		return o.fail(ctx, site, &res, logID, start, fmt.Errorf("scrape failed: %w", err))
	}

	res.ProductsFound = len(records)
	for _, rec := range records {
		created, err := o.catalog.Upsert(ctx, site, rec)
		if err != nil {
			return o.fail(ctx, site, &res, logID, start,
				fmt.Errorf("failed to persist product %s: %w", rec.ExternalID, err))
		}
		if created {
			res.ProductsNew++
		} else {
			res.ProductsUpdated++
		}
	}

	// Anything we did not see this run is presumed delisted. Deactivation is
	// derived state, so a failure here does not void the crawl.
	deactivated, err := o.store.DeactivateMissing(ctx, site.ID, start)
	if err != nil {
		logger.Warn("failed to deactivate missing products", "error", err)
	} else {
		res.Deactivated = deactivated
	}

	if err := o.store.CompleteScrapeLog(ctx, logID, res.ProductsFound, res.ProductsNew, res.ProductsUpdated); err != nil {
		logger.Error("failed to complete scrape log", "error", err)
	}
	if err := o.store.UpdateSiteAfterRun(ctx, site.ID, models.SiteStatusSuccess, ""); err != nil {
		logger.Error("failed to update site status", "error", err)
	}

	res.Status = models.ScrapeStatusSuccess
	res.DurationSeconds = time.Since(start).Seconds()
	logger.Info("scrape finished",
		"products_found", res.ProductsFound,
		"products_new", res.ProductsNew,
		"products_updated", res.ProductsUpdated,
		"deactivated", res.Deactivated,
		"duration_seconds", res.DurationSeconds)
	return res
}

func (o *Orchestrator) fail(ctx context.Context, site *models.CompetitorSite, res *SiteResult, logID int64, start time.Time, cause error) SiteResult {
	o.logger.Error("scrape failed", "site", site.Name, "error", cause)

	if logID >= 0 {
		if err := o.store.FailScrapeLog(ctx, logID, cause.Error()); err != nil {
			o.logger.Error("failed to record scrape failure", "site", site.Name, "error", err)
		}
	}
	if err := o.store.UpdateSiteAfterRun(ctx, site.ID, models.SiteStatusFailed, cause.Error()); err != nil {
		o.logger.Error("failed to update site status", "site", site.Name, "error", err)
	}

	res.Status = models.ScrapeStatusFailed
	res.Error = cause.Error()
	res.DurationSeconds = time.Since(start).Seconds()
	return *res
}
