package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/apperr"
	"github.com/flicky/storefront-api/internal/metrics"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

var (
	ErrCartNotFound      = apperr.NotFound("Cart not found")
	ErrCartItemNotFound  = apperr.NotFound("Item not found in cart")
	ErrInsufficientStock = apperr.BadRequest("Product is out of stock or insufficient quantity")
	ErrCartConflict      = apperr.Conflict("Cart was modified by another request, please retry")
)

// maxCartWriteAttempts bounds the read-modify-write loop when concurrent
// requests keep winning the version check.
const maxCartWriteAttempts = 3

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

// GetCart returns the user's cart, or nil if they never had one.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.cartRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// AddItem checks stock for the requested amount only; an existing line grows
// by quantity without re-checking the combined total.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*model.Cart, error) {
	product, err := s.stocked(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, true, func(cart *model.Cart) error {
		if i := cart.IndexOf(productID); i >= 0 {
			cart.Items[i].Quantity += quantity
			return nil
		}
		cart.Items = append(cart.Items, model.CartItem{ProductID: productID, Quantity: quantity, Price: product.Price})
		return nil
	})
}

// UpdateItem sets a line's quantity. A quantity of zero or less removes it.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*model.Cart, error) {
	return s.mutate(ctx, userID, false, func(cart *model.Cart) error {
		i := cart.IndexOf(productID)
		if i < 0 {
			return ErrCartItemNotFound
		}
		if quantity <= 0 {
			cart.RemoveAt(i)
			return nil
		}
		if _, err := s.stocked(ctx, productID, quantity); err != nil {
			return err
		}
		cart.Items[i].Quantity = quantity
		return nil
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*model.Cart, error) {
	return s.mutate(ctx, userID, false, func(cart *model.Cart) error {
		i := cart.IndexOf(productID)
		if i < 0 {
			return ErrCartItemNotFound
		}
		cart.RemoveAt(i)
		return nil
	})
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	return s.mutate(ctx, userID, false, func(cart *model.Cart) error {
		cart.Clear()
		return nil
	})
}

func (s *CartService) stocked(ctx context.Context, productID uuid.UUID, quantity int) (*model.Product, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if !product.CanSupply(quantity) {
		return nil, ErrInsufficientStock
	}
	return product, nil
}

// mutate re-reads the cart and re-applies fn until the versioned save
// succeeds or the attempts run out.
func (s *CartService) mutate(ctx context.Context, userID uuid.UUID, create bool, apply func(*model.Cart) error) (*model.Cart, error) {
	for attempt := 1; ; attempt++ {
		cart, err := s.cartRepo.GetByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get cart: %w", err)
		}
		if cart == nil {
			if !create {
				return nil, ErrCartNotFound
			}
			cart = &model.Cart{UserID: userID, Items: []model.CartItem{}}
		}

		if err := apply(cart); err != nil {
			return nil, err
		}
		cart.Recalculate()

		err = s.cartRepo.Save(ctx, cart)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("save cart: %w", err)
		}
		if attempt == maxCartWriteAttempts {
			return nil, ErrCartConflict
		}
		metrics.RecordCartRetry()
	}
}
