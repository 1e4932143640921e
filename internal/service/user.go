package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/apperr"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

var ErrUserNotFound = apperr.NotFound("User not found")

// UserService serves the caller's profile and the wishlist/compare sets.
type UserService struct {
	userRepo    repository.UserRepository
	productRepo repository.ProductRepository
}

func NewUserService(userRepo repository.UserRepository, productRepo repository.ProductRepository) *UserService {
	return &UserService{userRepo: userRepo, productRepo: productRepo}
}

func (s *UserService) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Products resolves one of the user's sets to products, in set order.
// Ids whose product has since been deleted are skipped.
func (s *UserService) Products(ctx context.Context, userID uuid.UUID, list model.ProductList) ([]model.Product, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	products, err := s.productRepo.GetByIDs(ctx, user.List(list))
	if err != nil {
		return nil, fmt.Errorf("get %s products: %w", list, err)
	}
	return products, nil
}

func (s *UserService) Add(ctx context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	set, err := s.userRepo.AddToList(ctx, userID, list, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("add to %s: %w", list, err)
	}
	return set, nil
}

func (s *UserService) Remove(ctx context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error) {
	set, err := s.userRepo.RemoveFromList(ctx, userID, list, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("remove from %s: %w", list, err)
	}
	return set, nil
}
