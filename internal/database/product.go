package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ironline/price-monitor/internal/models"
)

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

const productColumns = `
	p.id, p.site_id, p.external_id, p.name, p.category, p.description,
	p.current_price, p.on_sale, p.sale_price, p.original_price,
	p.product_url, p.image_url, p.in_stock, p.first_seen_at, p.last_seen_at, p.is_active`

func scanProduct(row pgx.Row) (*models.ScrapedProduct, error) {
	p := &models.ScrapedProduct{}
	var salePrice, originalPrice decimal.NullDecimal

	err := row.Scan(
		&p.ID, &p.SiteID, &p.ExternalID, &p.Name, &p.Category, &p.Description,
		&p.CurrentPrice, &p.OnSale, &salePrice, &originalPrice,
		&p.ProductURL, &p.ImageURL, &p.InStock, &p.FirstSeenAt, &p.LastSeenAt, &p.IsActive,
	)
	if err != nil {
		return nil, err
	}

	p.SalePrice = fromNullDecimal(salePrice)
	p.OriginalPrice = fromNullDecimal(originalPrice)
	return p, nil
}

// GetProduct looks up a product by its dedup key. Returns (nil, nil) when
// the product has never been seen.
func (db *DB) GetProduct(ctx context.Context, siteID int64, externalID string) (*models.ScrapedProduct, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM scraped_products p WHERE p.site_id = $1 AND p.external_id = $2`,
		siteID, externalID)

	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// InsertProduct creates a product row from a crawl observation.
func (db *DB) InsertProduct(ctx context.Context, siteID int64, rec models.ProductRecord) (int64, error) {
	query := `
		INSERT INTO scraped_products (
			site_id, external_id, name, category, description,
			current_price, on_sale, sale_price, original_price,
			product_url, image_url, in_stock
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	var id int64
	err := db.pool.QueryRow(ctx, query,
		siteID, rec.ExternalID, rec.Name, rec.Category, rec.Description,
		rec.CurrentPrice, rec.OnSale, toNullDecimal(rec.SalePrice), toNullDecimal(rec.OriginalPrice),
		rec.ProductURL, rec.ImageURL, rec.InStock,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}
	return id, nil
}

// UpdateProduct overwrites the mutable fields of an existing product,
// refreshes last_seen_at and reactivates it if a previous crawl had marked
// it inactive.
func (db *DB) UpdateProduct(ctx context.Context, productID int64, rec models.ProductRecord) error {
	query := `
		UPDATE scraped_products SET
			name = $2,
			category = $3,
			description = $4,
			current_price = $5,
			on_sale = $6,
			sale_price = $7,
			original_price = $8,
			product_url = $9,
			image_url = $10,
			in_stock = $11,
			last_seen_at = NOW(),
			is_active = TRUE
		WHERE id = $1`

	_, err := db.pool.Exec(ctx, query,
		productID, rec.Name, rec.Category, rec.Description,
		rec.CurrentPrice, rec.OnSale, toNullDecimal(rec.SalePrice), toNullDecimal(rec.OriginalPrice),
		rec.ProductURL, rec.ImageURL, rec.InStock,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// InsertPriceHistory appends one observation row. Called once per crawl
// sighting whether or not the price moved.
func (db *DB) InsertPriceHistory(ctx context.Context, productID int64, rec models.ProductRecord) error {
	query := `
		INSERT INTO price_history (product_id, price, on_sale, sale_price, in_stock)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := db.pool.Exec(ctx, query,
		productID, rec.CurrentPrice, rec.OnSale, toNullDecimal(rec.SalePrice), rec.InStock)
	if err != nil {
		return fmt.Errorf("failed to insert price history: %w", err)
	}
	return nil
}

// DeactivateMissing flags products of a site that were not seen by the crawl
// that started at runStart. Returns the number of products deactivated.
func (db *DB) DeactivateMissing(ctx context.Context, siteID int64, runStart time.Time) (int64, error) {
	query := `
		UPDATE scraped_products
		SET is_active = FALSE
		WHERE site_id = $1 AND is_active AND last_seen_at < $2`

	tag, err := db.pool.Exec(ctx, query, siteID, runStart)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate missing products: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ProductFilter narrows and orders the product listing.
type ProductFilter struct {
	SiteID   int64
	Category string
	OnSale   *bool
	InStock  *bool
	Search   string
	OrderBy  string // "price", "-price", "last_seen", "-last_seen"
	Limit    int
	Offset   int
}

// ListProducts returns scraped products with their site name, most recently
// seen first unless the filter orders by price.
func (db *DB) ListProducts(ctx context.Context, f ProductFilter) ([]*models.ScrapedProduct, error) {
	var conditions []string
	var args []interface{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.SiteID > 0 {
		add("p.site_id = $%d", f.SiteID)
	}
	if f.Category != "" {
		add("p.category = $%d", f.Category)
	}
	if f.OnSale != nil {
		add("p.on_sale = $%d", *f.OnSale)
	}
	if f.InStock != nil {
		add("p.in_stock = $%d", *f.InStock)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conditions = append(conditions,
			fmt.Sprintf("(p.name ILIKE $%d OR p.description ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + productColumns + `, s.name
		FROM scraped_products p
		JOIN competitor_sites s ON s.id = p.site_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	switch f.OrderBy {
	case "price":
		query += " ORDER BY p.current_price ASC"
	case "-price":
		query += " ORDER BY p.current_price DESC"
	case "last_seen":
		query += " ORDER BY p.last_seen_at ASC"
	default:
		query += " ORDER BY p.last_seen_at DESC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.ScrapedProduct
	for rows.Next() {
		p := &models.ScrapedProduct{}
		var salePrice, originalPrice decimal.NullDecimal
		err := rows.Scan(
			&p.ID, &p.SiteID, &p.ExternalID, &p.Name, &p.Category, &p.Description,
			&p.CurrentPrice, &p.OnSale, &salePrice, &originalPrice,
			&p.ProductURL, &p.ImageURL, &p.InStock, &p.FirstSeenAt, &p.LastSeenAt, &p.IsActive,
			&p.SiteName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.SalePrice = fromNullDecimal(salePrice)
		p.OriginalPrice = fromNullDecimal(originalPrice)
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProductByID returns a single product or (nil, nil) when absent.
func (db *DB) GetProductByID(ctx context.Context, id int64) (*models.ScrapedProduct, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM scraped_products p WHERE p.id = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ListPriceHistory returns the most recent observations for a product,
// newest first. The limit is clamped to 30 rows either way.
func (db *DB) ListPriceHistory(ctx context.Context, productID int64, limit int) ([]*models.PriceHistory, error) {
	if limit <= 0 || limit > 30 {
		limit = 30
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, product_id, price, on_sale, sale_price, in_stock, recorded_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var history []*models.PriceHistory
	for rows.Next() {
		h := &models.PriceHistory{}
		var salePrice decimal.NullDecimal
		if err := rows.Scan(&h.ID, &h.ProductID, &h.Price, &h.OnSale, &salePrice, &h.InStock, &h.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		h.SalePrice = fromNullDecimal(salePrice)
		history = append(history, h)
	}
	return history, rows.Err()
}
