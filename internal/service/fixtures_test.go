package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
	"github.com/flicky/storefront-api/internal/repository/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore() *repository.Store {
	return memory.NewStore()
}

func seedProduct(t *testing.T, store *repository.Store, name string, price int64, qty int) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: decimal.NewFromInt(price), Quantity: qty, Category: "general"}
	require.NoError(t, store.Products.Create(context.Background(), p))
	return p
}

func seedUser(t *testing.T, store *repository.Store, email string) *model.User {
	t.Helper()
	u := &model.User{Name: "Test", Email: email, Password: "x", Wishlist: model.ProductSet{}, CompareList: model.ProductSet{}}
	require.NoError(t, store.Users.Create(context.Background(), u))
	return u
}
