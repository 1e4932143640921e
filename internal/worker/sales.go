package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/events"
	"github.com/flicky/storefront-api/internal/repository"
)

// Deduper remembers which units of work have already been applied.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// SalesWorker keeps each product's sold counter in step with placed orders.
type SalesWorker struct {
	products repository.ProductRepository
	dedup    Deduper
	log      *slog.Logger
}

// NewSalesWorker builds the worker. dedup may be nil, in which case a
// redelivered event is counted again.
func NewSalesWorker(products repository.ProductRepository, dedup Deduper, log *slog.Logger) *SalesWorker {
	return &SalesWorker{products: products, dedup: dedup, log: log}
}

// Run consumes events until ctx is cancelled.
func (w *SalesWorker) Run(ctx context.Context, consumer events.Consumer) error {
	w.log.Info("sales worker started")
	defer w.log.Info("sales worker stopped")
	return consumer.Run(ctx, w.Handle)
}

// Handle applies one order.created event. Other event types are ignored.
func (w *SalesWorker) Handle(ctx context.Context, env events.Envelope) error {
	if env.EventType != events.TypeOrderCreated {
		return nil
	}
	payload, err := events.DecodePayload[events.OrderCreated](env)
	if err != nil {
		return err
	}

	log := w.log.With("event_id", env.EventID, "order_id", payload.OrderID)
	for _, item := range payload.Items {
		if err := w.applyItem(ctx, env.EventID, item); err != nil {
			log.Error("record sale failed", "error", err, "product_id", item.ProductID)
			return err
		}
	}
	log.Info("sales recorded", "items", len(payload.Items))
	return nil
}

// applyItem dedups per event and product so a retry after a partial failure
// only touches the items that were not yet counted.
func (w *SalesWorker) applyItem(ctx context.Context, eventID string, item events.OrderItem) error {
	productID, err := uuid.Parse(item.ProductID)
	if err != nil {
		return fmt.Errorf("parse product id: %w", err)
	}

	key := eventID + ":" + item.ProductID
	if w.dedup != nil {
		first, err := w.dedup.Claim(ctx, key)
		if err != nil {
			return err
		}
		if !first {
			w.log.Debug("sale already recorded, skipping", "key", key)
			return nil
		}
	}

	err = w.products.IncrementSold(ctx, productID, item.Quantity)
	if errors.Is(err, repository.ErrNotFound) {
		// Product was deleted after the order was placed.
		w.log.Warn("product gone, sale not recorded", "product_id", item.ProductID)
		return nil
	}
	if err != nil {
		if w.dedup != nil {
			_ = w.dedup.Release(ctx, key)
		}
		return fmt.Errorf("increment sold: %w", err)
	}
	return nil
}
