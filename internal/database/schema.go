package database

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS competitor_sites (
	id                    BIGSERIAL PRIMARY KEY,
	name                  TEXT NOT NULL UNIQUE,
	url                   TEXT NOT NULL,
	is_active             BOOLEAN NOT NULL DEFAULT TRUE,
	scrape_interval_hours INTEGER NOT NULL DEFAULT 24,
	crawl_delay_seconds   INTEGER NOT NULL DEFAULT 10,
	last_scraped_at       TIMESTAMPTZ,
	last_scrape_status    TEXT NOT NULL DEFAULT 'pending',
	last_error_message    TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS scraped_products (
	id             BIGSERIAL PRIMARY KEY,
	site_id        BIGINT NOT NULL REFERENCES competitor_sites(id) ON DELETE CASCADE,
	external_id    TEXT NOT NULL,
	name           TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	current_price  NUMERIC(10,2) NOT NULL,
	on_sale        BOOLEAN NOT NULL DEFAULT FALSE,
	sale_price     NUMERIC(10,2),
	original_price NUMERIC(10,2),
	product_url    TEXT NOT NULL,
	image_url      TEXT NOT NULL DEFAULT '',
	in_stock       BOOLEAN NOT NULL DEFAULT TRUE,
	first_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (site_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_scraped_products_category ON scraped_products (category);
CREATE INDEX IF NOT EXISTS idx_scraped_products_on_sale ON scraped_products (on_sale);

CREATE TABLE IF NOT EXISTS price_history (
	id          BIGSERIAL PRIMARY KEY,
	product_id  BIGINT NOT NULL REFERENCES scraped_products(id) ON DELETE CASCADE,
	price       NUMERIC(10,2) NOT NULL,
	on_sale     BOOLEAN NOT NULL DEFAULT FALSE,
	sale_price  NUMERIC(10,2),
	in_stock    BOOLEAN NOT NULL DEFAULT TRUE,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_price_history_product_recorded ON price_history (product_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS scrape_logs (
	id               BIGSERIAL PRIMARY KEY,
	site_id          BIGINT NOT NULL REFERENCES competitor_sites(id) ON DELETE CASCADE,
	status           TEXT NOT NULL,
	products_found   INTEGER NOT NULL DEFAULT 0,
	products_new     INTEGER NOT NULL DEFAULT 0,
	products_updated INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	duration_seconds DOUBLE PRECISION,
	started_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_scrape_logs_site_started ON scrape_logs (site_id, started_at DESC);

CREATE TABLE IF NOT EXISTS outbox_event (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	target_stream  TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at   TIMESTAMPTZ,
	next_retry_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_event_status_retry ON outbox_event (status, next_retry_at);
`

// Migrate creates the schema if it does not exist yet. Statements are
// idempotent, so running it at every startup is safe.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
