package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

func addProduct(t *testing.T, s *repository.Store, name, category string, price int64, qty int) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Category: category, Price: decimal.NewFromInt(price), Quantity: qty}
	require.NoError(t, s.Products.Create(context.Background(), p))
	return p
}

func TestUsers_DuplicateEmailAndLists(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	u := &model.User{Name: "A", Email: "a@example.com", Password: "x"}
	require.NoError(t, s.Users.Create(ctx, u))
	assert.ErrorIs(t, s.Users.Create(ctx, &model.User{Email: "a@example.com"}), repository.ErrDuplicateEmail)

	missing, err := s.Users.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	p := uuid.New()
	set, err := s.Users.AddToList(ctx, u.ID, model.Wishlist, p)
	require.NoError(t, err)
	set, err = s.Users.AddToList(ctx, u.ID, model.Wishlist, p)
	require.NoError(t, err)
	assert.Equal(t, model.ProductSet{p}, set)

	got, _ := s.Users.GetByID(ctx, u.ID)
	assert.Equal(t, model.ProductSet{p}, got.Wishlist)
	assert.Empty(t, got.CompareList)

	got.Wishlist[0] = uuid.Nil
	again, _ := s.Users.GetByID(ctx, u.ID)
	assert.Equal(t, p, again.Wishlist[0], "returned users must not alias stored state")

	_, err = s.Users.RemoveFromList(ctx, uuid.New(), model.Wishlist, p)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProducts_ListFiltersSortsAndPages(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	addProduct(t, s, "B", "shoes", 30, 1)
	addProduct(t, s, "A", "shoes", 10, 1)
	addProduct(t, s, "C", "hats", 20, 1)

	all, total, err := s.Products.List(ctx, repository.ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"B", "A", "C"}, names(all))

	sorted, _, err := s.Products.List(ctx, repository.ProductFilter{SortBy: repository.SortPrice, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, names(sorted))

	page, total, err := s.Products.List(ctx, repository.ProductFilter{Category: "shoes", SortBy: repository.SortName, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"B"}, names(page))

	beyond, _, err := s.Products.List(ctx, repository.ProductFilter{Limit: 8, Offset: 16})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestProducts_Search(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	addProduct(t, s, "Red Scarf", "winter", 10, 1)
	addProduct(t, s, "Blue Shirt", "summer", 10, 1)

	found, err := s.Products.Search(ctx, "SCARF")
	require.NoError(t, err)
	assert.Equal(t, []string{"Red Scarf"}, names(found))

	none, err := s.Products.Search(ctx, "boots")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCarts_SaveDetectsStaleVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()

	cart := &model.Cart{UserID: userID}
	require.NoError(t, s.Carts.Save(ctx, cart))
	assert.Equal(t, 1, cart.Version)

	stale, _ := s.Carts.GetByUserID(ctx, userID)
	require.NoError(t, s.Carts.Save(ctx, cart))
	assert.ErrorIs(t, s.Carts.Save(ctx, stale), repository.ErrVersionConflict)
	assert.ErrorIs(t, s.Carts.Save(ctx, &model.Cart{UserID: userID}), repository.ErrVersionConflict)
}

func TestOrders_PlaceOrderAllOrNothing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()
	plenty := addProduct(t, s, "Plenty", "x", 25, 10)
	scarce := addProduct(t, s, "Scarce", "x", 5, 1)

	cart := &model.Cart{UserID: userID, Items: []model.CartItem{
		{ProductID: plenty.ID, Quantity: 2, Price: plenty.Price},
		{ProductID: scarce.ID, Quantity: 2, Price: scarce.Price},
	}}
	cart.Recalculate()
	require.NoError(t, s.Carts.Save(ctx, cart))

	order := &model.Order{UserID: userID, Items: []model.OrderItem{
		{ProductID: plenty.ID, Quantity: 2, Price: plenty.Price},
		{ProductID: scarce.ID, Quantity: 2, Price: scarce.Price},
	}}
	assert.ErrorIs(t, s.Orders.PlaceOrder(ctx, order, cart), repository.ErrInsufficientStock)

	p, _ := s.Products.GetByID(ctx, plenty.ID)
	assert.Equal(t, 10, p.Quantity)
	stored, _ := s.Carts.GetByUserID(ctx, userID)
	assert.Len(t, stored.Items, 2)

	order.Items = order.Items[:1]
	require.NoError(t, s.Orders.PlaceOrder(ctx, order, cart))
	assert.NotEqual(t, uuid.Nil, order.ID)
	assert.Empty(t, cart.Items)

	p, _ = s.Products.GetByID(ctx, plenty.ID)
	assert.Equal(t, 8, p.Quantity)
	stored, _ = s.Carts.GetByUserID(ctx, userID)
	assert.Empty(t, stored.Items)
	assert.True(t, stored.TotalPrice.IsZero())

	orders, err := s.Orders.ListByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func names(products []model.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return out
}

func TestProducts_UpdateWritesOnlyPatchedFields(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := addProduct(t, s, "Lamp", "home", 20, 5)
	require.NoError(t, s.Products.IncrementSold(ctx, p.ID, 4))

	name, qty := "Desk lamp", 3
	got, err := s.Products.Update(ctx, p.ID, repository.ProductPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Desk lamp", got.Name)
	assert.Equal(t, 5, got.Quantity)
	assert.Equal(t, 4, got.Sold)
	assert.Equal(t, "home", got.Category)

	got, err = s.Products.Update(ctx, p.ID, repository.ProductPatch{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, "Desk lamp", got.Name)

	stored, err := s.Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, *got, *stored)

	_, err = s.Products.Update(ctx, uuid.New(), repository.ProductPatch{Name: &name})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
