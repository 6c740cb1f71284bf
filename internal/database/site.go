package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ironline/price-monitor/internal/models"
)

const siteColumns = `
	id, name, url, is_active, scrape_interval_hours, crawl_delay_seconds,
	last_scraped_at, last_scrape_status, last_error_message, created_at, updated_at`

func scanSite(row pgx.Row) (*models.CompetitorSite, error) {
	s := &models.CompetitorSite{}
	err := row.Scan(
		&s.ID, &s.Name, &s.URL, &s.IsActive, &s.ScrapeIntervalHours, &s.CrawlDelaySeconds,
		&s.LastScrapedAt, &s.LastScrapeStatus, &s.LastErrorMessage, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSites returns all configured competitor sites ordered by name.
func (db *DB) ListSites(ctx context.Context) ([]*models.CompetitorSite, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+siteColumns+` FROM competitor_sites ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.CompetitorSite
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// ListActiveSites returns the sites enabled for scraping.
func (db *DB) ListActiveSites(ctx context.Context) ([]*models.CompetitorSite, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+siteColumns+` FROM competitor_sites WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.CompetitorSite
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// GetSiteByName looks up a site case-insensitively. Returns (nil, nil) when
// no such site is configured.
func (db *DB) GetSiteByName(ctx context.Context, name string) (*models.CompetitorSite, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+siteColumns+` FROM competitor_sites WHERE LOWER(name) = LOWER($1)`, name)

	s, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return s, nil
}

// UpdateSiteAfterRun records the outcome of a scrape run on the site row.
// last_scraped_at only advances on success so a failed site stays due.
func (db *DB) UpdateSiteAfterRun(ctx context.Context, siteID int64, status models.SiteStatus, errMsg string) error {
	var query string
	if status == models.SiteStatusSuccess {
		query = `
			UPDATE competitor_sites SET
				last_scraped_at = NOW(),
				last_scrape_status = $2,
				last_error_message = $3,
				updated_at = NOW()
			WHERE id = $1`
	} else {
		query = `
			UPDATE competitor_sites SET
				last_scrape_status = $2,
				last_error_message = $3,
				updated_at = NOW()
			WHERE id = $1`
	}

	if _, err := db.pool.Exec(ctx, query, siteID, status, errMsg); err != nil {
		return fmt.Errorf("failed to update site after run: %w", err)
	}
	return nil
}

// SeedSite is the configuration for one competitor site inserted at startup.
type SeedSite struct {
	Name              string
	URL               string
	IntervalHours     int
	CrawlDelaySeconds int
}

// DefaultSeedSites lists the monitored competitors. Delays follow each
// site's robots.txt; velog.rs is the strictest at 10s, ironworks tolerates 3s.
func DefaultSeedSites() []SeedSite {
	return []SeedSite{
		{Name: "joilart", URL: "https://joilart.com", IntervalHours: 24, CrawlDelaySeconds: 10},
		{Name: "jeepcommerce", URL: "https://jeepcommerce.rs", IntervalHours: 24, CrawlDelaySeconds: 10},
		{Name: "hanan", URL: "https://hanan.rs", IntervalHours: 24, CrawlDelaySeconds: 10},
		{Name: "velog", URL: "https://www.velog.rs", IntervalHours: 24, CrawlDelaySeconds: 10},
		{Name: "ironworks", URL: "https://ironworks.rs", IntervalHours: 24, CrawlDelaySeconds: 3},
	}
}

// EnsureSites inserts missing site rows. Existing rows are left untouched so
// operator tweaks (intervals, is_active) survive restarts.
func (db *DB) EnsureSites(ctx context.Context, seeds []SeedSite) error {
	query := `
		INSERT INTO competitor_sites (name, url, scrape_interval_hours, crawl_delay_seconds, last_scrape_status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING`

	for _, seed := range seeds {
		_, err := db.pool.Exec(ctx, query,
			seed.Name, seed.URL, seed.IntervalHours, seed.CrawlDelaySeconds, models.SiteStatusPending)
		if err != nil {
			return fmt.Errorf("failed to seed site %s: %w", seed.Name, err)
		}
	}
	return nil
}
