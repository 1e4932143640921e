package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/apperr"
	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/events"
	"github.com/flicky/storefront-api/internal/metrics"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/redisx"
	"github.com/flicky/storefront-api/internal/repository"
)

var (
	ErrEmptyCart          = apperr.BadRequest("Cart is empty")
	ErrOrderNotFound      = apperr.NotFound("Order not found")
	ErrOrderAccessDenied  = apperr.Unauthorized("Not authorized to access this order")
	ErrOrderUpdateDenied  = apperr.Unauthorized("Not authorized to update this order")
	ErrCheckoutConflict   = apperr.Conflict("Checkout conflicted with a concurrent update, please retry")
	ErrCheckoutInProgress = apperr.Conflict("A checkout with this Idempotency-Key is already in progress")
)

// IdempotencyStore maps a client-chosen key to the order it produced. Claim
// returns redisx.ErrInProgress while the first request is still running.
type IdempotencyStore interface {
	Claim(ctx context.Context, userID, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, userID, key, orderID string) error
	Release(ctx context.Context, userID, key string) error
}

type OrderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	publisher   events.Publisher
	idem        IdempotencyStore
	producer    string
	log         *slog.Logger
	now         func() time.Time
}

// NewOrderService builds the service. idem may be nil, which turns
// Idempotency-Key handling off.
func NewOrderService(orderRepo repository.OrderRepository, cartRepo repository.CartRepository, productRepo repository.ProductRepository, publisher events.Publisher, idem IdempotencyStore, producer string, log *slog.Logger) *OrderService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &OrderService{
		orderRepo: orderRepo, cartRepo: cartRepo, productRepo: productRepo,
		publisher: publisher, idem: idem, producer: producer, log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder turns the caller's cart into an order. The bool result is true
// when idemKey matched an earlier checkout and that order is returned instead.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, req dto.CreateOrderRequest, idemKey string) (*model.Order, bool, error) {
	if idemKey == "" || s.idem == nil {
		order, err := s.placeOrder(ctx, userID, req)
		return order, false, err
	}

	uid := userID.String()
	existing, claimed, err := s.idem.Claim(ctx, uid, idemKey)
	if err != nil {
		if errors.Is(err, redisx.ErrInProgress) {
			return nil, false, ErrCheckoutInProgress
		}
		return nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if !claimed {
		order, err := s.replay(ctx, existing)
		if err != nil {
			return nil, false, err
		}
		metrics.RecordCheckout(metrics.OutcomeReplayed)
		return order, true, nil
	}

	order, err := s.placeOrder(ctx, userID, req)
	if err != nil {
		if rerr := s.idem.Release(ctx, uid, idemKey); rerr != nil {
			s.log.Warn("release idempotency key failed", "error", rerr)
		}
		return nil, false, err
	}
	if err := s.idem.Complete(ctx, uid, idemKey, order.ID.String()); err != nil {
		s.log.Warn("complete idempotency key failed", "error", err, "order_id", order.ID)
	}
	return order, false, nil
}

func (s *OrderService) replay(ctx context.Context, rawID string) (*model.Order, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse stored order id: %w", err)
	}
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s for idempotency key: %w", rawID, repository.ErrNotFound)
	}
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, userID uuid.UUID, req dto.CreateOrderRequest) (*model.Order, error) {
	cart, err := s.cartRepo.GetByUserID(ctx, userID)
	if err != nil {
		metrics.RecordCheckout(metrics.OutcomeError)
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil || cart.Empty() {
		metrics.RecordCheckout(metrics.OutcomeEmptyCart)
		return nil, ErrEmptyCart
	}

	items, err := s.snapshot(ctx, cart)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		UserID:          userID,
		Items:           items,
		ShippingAddress: req.Address(),
		PaymentMethod:   req.PaymentMethod,
		Subtotal:        req.Subtotal,
		Tax:             req.Tax,
		Shipping:        req.Shipping,
		Total:           req.Total,
	}

	if err := s.orderRepo.PlaceOrder(ctx, order, cart); err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientStock):
			metrics.RecordCheckout(metrics.OutcomeOutOfStock)
			return nil, ErrInsufficientStock
		case errors.Is(err, repository.ErrVersionConflict):
			metrics.RecordCheckout(metrics.OutcomeConflict)
			return nil, ErrCheckoutConflict
		}
		metrics.RecordCheckout(metrics.OutcomeError)
		return nil, fmt.Errorf("place order: %w", err)
	}
	metrics.RecordCheckout(metrics.OutcomePlaced)

	s.publishCreated(ctx, order)
	return order, nil
}

// snapshot checks every line against current stock before anything is
// written, and copies name and image so the order outlives product edits.
func (s *OrderService) snapshot(ctx context.Context, cart *model.Cart) ([]model.OrderItem, error) {
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		metrics.RecordCheckout(metrics.OutcomeError)
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := make(map[uuid.UUID]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]model.OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		p, ok := byID[ci.ProductID]
		if !ok || !p.CanSupply(ci.Quantity) {
			name := p.Name
			if !ok {
				name = "Product " + ci.ProductID.String()
			}
			metrics.RecordCheckout(metrics.OutcomeOutOfStock)
			return nil, apperr.BadRequest(name + " is out of stock or has insufficient quantity")
		}
		items = append(items, model.OrderItem{
			ProductID: ci.ProductID,
			Name:      p.Name,
			Quantity:  ci.Quantity,
			Price:     ci.Price,
			ImageURL:  p.ImageURL,
		})
	}
	return items, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	orders, err := s.orderRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) GetByID(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	return s.owned(ctx, orderID, userID, ErrOrderAccessDenied)
}

// Pay records the payment provider's confirmation on the caller's order.
func (s *OrderService) Pay(ctx context.Context, orderID, userID uuid.UUID, result model.PaymentResult) (*model.Order, error) {
	order, err := s.owned(ctx, orderID, userID, ErrOrderUpdateDenied)
	if err != nil {
		return nil, err
	}

	paidAt := s.now()
	if err := s.orderRepo.MarkPaid(ctx, orderID, paidAt, result); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	order.IsPaid = true
	order.PaidAt = &paidAt
	order.PaymentResult = &result
	order.UpdatedAt = paidAt

	s.publish(ctx, events.TypeOrderPaid, order.ID, events.OrderPaid{
		OrderID:   order.ID.String(),
		UserID:    userID.String(),
		PaymentID: result.ID,
		PaidAt:    paidAt,
	})
	return order, nil
}

func (s *OrderService) owned(ctx context.Context, orderID, userID uuid.UUID, denied error) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, denied
	}
	return order, nil
}

func (s *OrderService) publishCreated(ctx context.Context, order *model.Order) {
	items := make([]events.OrderItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, events.OrderItem{ProductID: it.ProductID.String(), Quantity: it.Quantity, Price: it.Price})
	}
	s.publish(ctx, events.TypeOrderCreated, order.ID, events.OrderCreated{
		OrderID: order.ID.String(),
		UserID:  order.UserID.String(),
		Items:   items,
		Total:   order.Total,
	})
}

// publish is best effort: the order is already committed, so a broker
// failure is logged rather than returned.
func (s *OrderService) publish(ctx context.Context, eventType string, orderID uuid.UUID, payload any) {
	env, err := events.NewEnvelope(s.producer, eventType, orderID.String(), payload)
	if err == nil {
		err = s.publisher.Publish(ctx, env)
	}
	if err != nil {
		s.log.Error("publish event failed", "error", err, "event_type", eventType, "order_id", orderID)
	}
}
