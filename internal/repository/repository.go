package repository

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/model"
)

// Backend-neutral errors. Lookups that find nothing return (nil, nil) instead.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVersionConflict   = errors.New("version conflict")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	AddToList(ctx context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error)
	RemoveFromList(ctx context.Context, userID uuid.UUID, list model.ProductList, productID uuid.UUID) (model.ProductSet, error)
}

// Sortable product fields, named as they appear in the API.
const (
	SortName      = "name"
	SortPrice     = "price"
	SortQuantity  = "quantity"
	SortCategory  = "category"
	SortCreatedAt = "createdAt"
	SortSold      = "sold"
)

func ValidSortField(field string) bool {
	switch field {
	case SortName, SortPrice, SortQuantity, SortCategory, SortCreatedAt, SortSold:
		return true
	}
	return false
}

type ProductFilter struct {
	Category string
	SortBy   string
	Desc     bool
	Limit    int
	Offset   int
}

// ProductPatch lists the product columns to change. Nil fields are left as
// stored, so a patch never overwrites stock it did not set.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int
	Category    *string
	ImageURL    *string
}

// Apply copies the set fields onto p.
func (pt ProductPatch) Apply(p *model.Product) {
	if pt.Name != nil {
		p.Name = *pt.Name
	}
	if pt.Description != nil {
		p.Description = *pt.Description
	}
	if pt.Price != nil {
		p.Price = *pt.Price
	}
	if pt.Quantity != nil {
		p.Quantity = *pt.Quantity
	}
	if pt.Category != nil {
		p.Category = *pt.Category
	}
	if pt.ImageURL != nil {
		p.ImageURL = *pt.ImageURL
	}
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]model.Product, int, error)
	Search(ctx context.Context, query string) ([]model.Product, error)
	// Update applies patch in a single write and returns the stored product,
	// or ErrNotFound.
	Update(ctx context.Context, id uuid.UUID, patch ProductPatch) (*model.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	IncrementSold(ctx context.Context, id uuid.UUID, quantity int) error
}

type CartRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// Save inserts a cart whose Version is 0 and otherwise performs a
	// compare-and-swap on Version. On success Version is incremented.
	Save(ctx context.Context, cart *model.Cart) error
}

type OrderRepository interface {
	// PlaceOrder atomically decrements stock for every item, persists the
	// order and empties the cart. Nothing is written if any step fails.
	// Losing a race with another checkout reports ErrVersionConflict.
	PlaceOrder(ctx context.Context, order *model.Order, cart *model.Cart) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time, result model.PaymentResult) error
}

// Store bundles one backend's repositories.
type Store struct {
	Users    UserRepository
	Products ProductRepository
	Carts    CartRepository
	Orders   OrderRepository
	Ping     func(ctx context.Context) error
	Close    func()
}

// OrderByIDs rearranges products to follow ids, dropping ids that were not found.
func OrderByIDs(products []model.Product, ids []uuid.UUID) []model.Product {
	byID := make(map[uuid.UUID]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	out := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// StockLockOrder returns the items sorted by product id. Checkouts touch
// stock rows in this order so two carts sharing products cannot deadlock.
func StockLockOrder(items []model.OrderItem) []model.OrderItem {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b model.OrderItem) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return out
}
