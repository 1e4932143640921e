package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/flicky/storefront-api/internal/apperr"
	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

var (
	ErrProductNotFound    = apperr.NotFound("Product not found")
	ErrMissingSearchQuery = apperr.BadRequest("Please provide a search query")
	ErrInvalidPage        = apperr.BadRequest("page must be a positive integer")
	ErrInvalidLimit       = apperr.BadRequest("limit must be between 1 and 100")
	ErrNegativePrice      = apperr.BadRequest("Price cannot be negative")
	ErrNegativeQuantity   = apperr.BadRequest("Quantity cannot be negative")
	ErrEmptyName          = apperr.BadRequest("Please add a product name")
	ErrEmptyCategory      = apperr.BadRequest("Please add a category")
)

const (
	defaultPageSize = 8
	maxPageSize     = 100
)

type ProductService struct {
	productRepo repository.ProductRepository
}

func NewProductService(productRepo repository.ProductRepository) *ProductService {
	return &ProductService{productRepo: productRepo}
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*model.Product, error) {
	product := &model.Product{
		Name:        req.Name,
		Description: req.Description,
		Quantity:    req.Quantity,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if err := checkProduct(product); err != nil {
		return nil, err
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// ParseSort turns "price" or "-price" into a field and direction.
func ParseSort(sort string) (field string, desc bool, err error) {
	if sort == "" {
		return "", false, nil
	}
	field = strings.TrimPrefix(sort, "-")
	if !repository.ValidSortField(field) {
		return "", false, apperr.BadRequest(fmt.Sprintf("Invalid sort field: %s", field))
	}
	return field, strings.HasPrefix(sort, "-"), nil
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	page, limit := req.Page, req.Limit
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	if page < 0 {
		return nil, ErrInvalidPage
	}
	if limit < 0 || limit > maxPageSize {
		return nil, ErrInvalidLimit
	}

	field, desc, err := ParseSort(strings.TrimSpace(req.Sort))
	if err != nil {
		return nil, err
	}

	products, total, err := s.productRepo.List(ctx, repository.ProductFilter{
		Category: strings.TrimSpace(req.Category),
		SortBy:   field,
		Desc:     desc,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return &dto.ProductListResponse{Success: true, Count: len(products), Total: total, Products: products}, nil
}

func (s *ProductService) Search(ctx context.Context, query string) ([]model.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingSearchQuery
	}
	products, err := s.productRepo.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return products, nil
}

// Update writes only the fields present in req, so stock taken by a checkout
// running alongside is never restored by an edit that did not touch quantity.
func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*model.Product, error) {
	patch := repository.ProductPatch{
		Name:        trimmed(req.Name),
		Description: trimmed(req.Description),
		Price:       req.Price,
		Quantity:    req.Quantity,
		Category:    trimmed(req.Category),
		ImageURL:    trimmed(req.ImageURL),
	}
	if err := checkPatch(patch); err != nil {
		return nil, err
	}

	product, err := s.productRepo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func checkProduct(p *model.Product) error {
	switch {
	case p.Name == "":
		return ErrEmptyName
	case p.Category == "":
		return ErrEmptyCategory
	case p.Price.IsNegative():
		return ErrNegativePrice
	case p.Quantity < 0:
		return ErrNegativeQuantity
	}
	return nil
}

func checkPatch(p repository.ProductPatch) error {
	switch {
	case p.Name != nil && *p.Name == "":
		return ErrEmptyName
	case p.Category != nil && *p.Category == "":
		return ErrEmptyCategory
	case p.Price != nil && p.Price.IsNegative():
		return ErrNegativePrice
	case p.Quantity != nil && *p.Quantity < 0:
		return ErrNegativeQuantity
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
