package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ironline/price-monitor/internal/events"
	"github.com/ironline/price-monitor/internal/models"
)

// Store is the persistence surface the catalog needs. *database.DB satisfies
// it; tests use an in-memory fake.
type Store interface {
	GetProduct(ctx context.Context, siteID int64, externalID string) (*models.ScrapedProduct, error)
	InsertProduct(ctx context.Context, siteID int64, rec models.ProductRecord) (int64, error)
	UpdateProduct(ctx context.Context, productID int64, rec models.ProductRecord) error
	InsertPriceHistory(ctx context.Context, productID int64, rec models.ProductRecord) error
}

// EventSink receives domain events derived from upserts. *events.Publisher
// satisfies it.
type EventSink interface {
	Publish(ctx context.Context, eventType events.EventType, payload *events.PricePayload) error
}

// Catalog maps scraper output onto persisted products and their price
// history. Each upsert and each history append is an independent write;
// upserts are idempotent on (site, external_id), so a crashed run can simply
// be repeated.
type Catalog struct {
	store  Store
	sink   EventSink
	logger *slog.Logger
}

// New creates a catalog. sink may be nil when eventing is not wired (the
// one-shot CLI).
func New(store Store, sink EventSink, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		sink:   sink,
		logger: logger.With("component", "catalog"),
	}
}

// Upsert persists one crawl observation. It reports whether a new product
// was created, and always appends exactly one price history row.
func (c *Catalog) Upsert(ctx context.Context, site *models.CompetitorSite, rec models.ProductRecord) (bool, error) {
	existing, err := c.store.GetProduct(ctx, site.ID, rec.ExternalID)
	if err != nil {
		return false, fmt.Errorf("failed to look up product: %w", err)
	}

	var productID int64
	created := existing == nil

	if created {
		productID, err = c.store.InsertProduct(ctx, site.ID, rec)
		if err != nil {
			return false, err
		}
		c.emit(ctx, events.EventTypeNewProductDetected, site, rec, nil)
	} else {
		productID = existing.ID
		if err := c.store.UpdateProduct(ctx, productID, rec); err != nil {
			return false, err
		}
		if !existing.CurrentPrice.Equal(rec.CurrentPrice) {
			prev := existing.CurrentPrice
			c.emit(ctx, events.EventTypePriceChanged, site, rec, &prev)
		}
	}

	if err := c.store.InsertPriceHistory(ctx, productID, rec); err != nil {
		return created, err
	}

	return created, nil
}

// emit records an event, tolerating sink failures: losing a notification
// must not fail the crawl that produced it.
func (c *Catalog) emit(ctx context.Context, eventType events.EventType, site *models.CompetitorSite, rec models.ProductRecord, previous *decimal.Decimal) {
	if c.sink == nil {
		return
	}

	payload := &events.PricePayload{
		Site:       site.Name,
		ExternalID: rec.ExternalID,
		Name:       rec.Name,
		Category:   rec.Category,
		Price:      rec.CurrentPrice,
		OnSale:     rec.OnSale,
		InStock:    rec.InStock,
		ProductURL: rec.ProductURL,
	}
	if previous != nil {
		payload.PreviousPrice = previous
	}

	if err := c.sink.Publish(ctx, eventType, payload); err != nil {
		c.logger.Warn("failed to publish event",
			"event_type", eventType,
			"site", site.Name,
			"external_id", rec.ExternalID,
			"error", err)
	}
}
