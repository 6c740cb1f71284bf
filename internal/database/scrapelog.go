package database

import (
	"context"
	"fmt"

	"github.com/ironline/price-monitor/internal/models"
)

// CreateScrapeLog opens a run record in the started state and returns its id.
func (db *DB) CreateScrapeLog(ctx context.Context, siteID int64) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `
		INSERT INTO scrape_logs (site_id, status)
		VALUES ($1, $2)
		RETURNING id`, siteID, models.ScrapeStatusStarted).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create scrape log: %w", err)
	}
	return id, nil
}

// CompleteScrapeLog moves a run record to its success terminal state.
func (db *DB) CompleteScrapeLog(ctx context.Context, logID int64, found, created, updated int) error {
	query := `
		UPDATE scrape_logs SET
			status = $2,
			products_found = $3,
			products_new = $4,
			products_updated = $5,
			completed_at = NOW(),
			duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at))
		WHERE id = $1`

	_, err := db.pool.Exec(ctx, query, logID, models.ScrapeStatusSuccess, found, created, updated)
	if err != nil {
		return fmt.Errorf("failed to complete scrape log: %w", err)
	}
	return nil
}

// FailScrapeLog moves a run record to its failed terminal state.
func (db *DB) FailScrapeLog(ctx context.Context, logID int64, errMsg string) error {
	query := `
		UPDATE scrape_logs SET
			status = $2,
			error_message = $3,
			completed_at = NOW(),
			duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at))
		WHERE id = $1`

	_, err := db.pool.Exec(ctx, query, logID, models.ScrapeStatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("failed to fail scrape log: %w", err)
	}
	return nil
}

// ListScrapeLogs returns recent run records, newest first, optionally
// filtered by site.
func (db *DB) ListScrapeLogs(ctx context.Context, siteID int64, limit int) ([]*models.ScrapeLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT l.id, l.site_id, s.name, l.status, l.products_found, l.products_new,
		       l.products_updated, l.error_message, l.duration_seconds, l.started_at, l.completed_at
		FROM scrape_logs l
		JOIN competitor_sites s ON s.id = l.site_id`

	var args []interface{}
	if siteID > 0 {
		query += " WHERE l.site_id = $1"
		args = append(args, siteID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY l.started_at DESC LIMIT $%d", len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrape logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ScrapeLog
	for rows.Next() {
		l := &models.ScrapeLog{}
		err := rows.Scan(
			&l.ID, &l.SiteID, &l.SiteName, &l.Status, &l.ProductsFound, &l.ProductsNew,
			&l.ProductsUpdated, &l.ErrorMessage, &l.DurationSeconds, &l.StartedAt, &l.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrape log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
