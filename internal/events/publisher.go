package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ironline/price-monitor/internal/database"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeNewProductDetected is published when a competitor product is
	// seen for the first time
	EventTypeNewProductDetected EventType = "NEW_PRODUCT_DETECTED"
	// EventTypePriceChanged is published when a known product's price moved
	// between two crawls
	EventTypePriceChanged EventType = "PRICE_CHANGED"
)

// PricePayload is the event body relayed to downstream consumers via the
// price events stream.
type PricePayload struct {
	EventID       string           `json:"event_id"`
	EventType     string           `json:"event_type"`
	Timestamp     time.Time        `json:"timestamp"`
	Site          string           `json:"site"`
	ExternalID    string           `json:"external_id"`
	Name          string           `json:"name"`
	Category      string           `json:"category,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	PreviousPrice *decimal.Decimal `json:"previous_price,omitempty"`
	OnSale        bool             `json:"on_sale"`
	InStock       bool             `json:"in_stock"`
	ProductURL    string           `json:"product_url,omitempty"`
	Source        string           `json:"source"`
}

// Publisher records domain events through the transactional outbox; the
// database relay ships them to Redis.
type Publisher struct {
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// Publish stores one price event in the outbox. Event metadata is filled in
// when the caller left it blank.
func (p *Publisher) Publish(ctx context.Context, eventType EventType, payload *PricePayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(eventType)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	if payload.Source == "" {
		payload.Source = "scraper"
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: "scraped_product",
		AggregateID:   payload.Site + "/" + payload.ExternalID,
		EventType:     string(eventType),
		Payload:       data,
	}

	if err := p.outbox.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}

	p.logger.Debug("event stored",
		"event_type", eventType,
		"site", payload.Site,
		"external_id", payload.ExternalID)

	return nil
}
