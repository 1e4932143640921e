package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storefront-api/internal/events"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
	"github.com/flicky/storefront-api/internal/repository/memory"
	"github.com/flicky/storefront-api/internal/service"
	"github.com/flicky/storefront-api/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mapRevoker struct{ revoked map[string]bool }

func (r *mapRevoker) Revoke(_ context.Context, jti string, _ time.Time) error {
	r.revoked[jti] = true
	return nil
}

func (r *mapRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	return r.revoked[jti], nil
}

type testApp struct {
	router *gin.Engine
	store  *repository.Store
}

func newTestApp(t *testing.T, cfg RouterConfig) *testApp {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	cookies := session.NewCookies("token", "cookie-secret", time.Hour, false)

	authSvc := service.NewAuthService(store.Users, &mapRevoker{revoked: map[string]bool{}}, "jwt-secret", time.Hour)
	orderSvc := service.NewOrderService(store.Orders, store.Carts, store.Products, events.NopPublisher{}, nil, "test", log)

	if cfg.FrontEndURL == "" {
		cfg.FrontEndURL = "http://localhost:3000"
	}
	router := NewRouter(cfg, Handlers{
		Products: NewProductHandler(service.NewProductService(store.Products)),
		Users:    NewUserHandler(authSvc, service.NewUserService(store.Users, store.Products), cookies),
		Carts:    NewCartHandler(service.NewCartService(store.Carts, store.Products)),
		Orders:   NewOrderHandler(orderSvc),
		Health:   NewHealthHandler(map[string]Check{"store": store.Ping}),
	}, middleware.NewAuth(authSvc, cookies, log), middleware.NewRateLimiter(0, 0, log), log)

	return &testApp{router: router, store: store}
}

type response struct {
	code   int
	body   map[string]any
	header http.Header
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	out := response{code: w.Code, header: w.Header()}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out.body), w.Body.String())
	}
	return out
}

func (a *testApp) register(t *testing.T, email string) string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"name": "Test User", "email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.code, resp.body)
	return resp.body["token"].(string)
}

func (a *testApp) product(t *testing.T, name string, price int64, qty int) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: decimal.NewFromInt(price), Quantity: qty, Category: "general"}
	require.NoError(t, a.store.Products.Create(context.Background(), p))
	return p
}

func data(r response) map[string]any {
	d, _ := r.body["data"].(map[string]any)
	return d
}

func TestUsers_RegisterLoginLogout(t *testing.T) {
	app := newTestApp(t, RouterConfig{})

	resp := app.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"name": " Ann ", "email": " Ann@Example.com ", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.code)
	assert.Equal(t, true, resp.body["success"])
	assert.NotEmpty(t, resp.body["token"])
	user := resp.body["user"].(map[string]any)
	assert.Equal(t, "ann@example.com", user["email"])
	assert.Equal(t, "Ann", user["name"])
	assert.NotContains(t, user, "password")
	assert.Contains(t, resp.header.Get("Set-Cookie"), "token=")
	assert.Contains(t, resp.header.Get("Set-Cookie"), "HttpOnly")

	dup := app.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"name": "Other", "email": "ann@example.com", "password": "secret456",
	})
	assert.Equal(t, http.StatusConflict, dup.code)
	assert.Equal(t, "User with this email already exists", dup.body["error"])

	bad := app.do(t, http.MethodPost, "/api/users/login", "", map[string]any{"email": "ann@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, bad.code)
	assert.Equal(t, "Invalid credentials", bad.body["error"])

	login := app.do(t, http.MethodPost, "/api/users/login", "", map[string]any{"email": "ANN@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, login.code)
	token := login.body["token"].(string)

	me := app.do(t, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, me.code)
	assert.Equal(t, "ann@example.com", data(me)["email"])

	out := app.do(t, http.MethodGet, "/api/users/logout", token, nil)
	require.Equal(t, http.StatusOK, out.code)
	assert.Equal(t, map[string]any{"success": true}, out.body)

	again := app.do(t, http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, again.code)
	assert.Equal(t, "Not authorized to access this route", again.body["error"])
}

func TestUsers_RegisterValidation(t *testing.T) {
	app := newTestApp(t, RouterConfig{})

	resp := app.do(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"email": "not-an-email", "password": "123",
	})
	require.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, false, resp.body["success"])
	assert.Equal(t, "Name is required", resp.body["error"])
	assert.Len(t, resp.body["errors"], 3)
}

func TestUsers_GuestProbes(t *testing.T) {
	app := newTestApp(t, RouterConfig{})

	resp := app.do(t, http.MethodGet, "/api/users/login", "", nil)
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, "User is not logged in", resp.body["message"])

	resp = app.do(t, http.MethodGet, "/api/users/register", "anything", nil)
	assert.Equal(t, http.StatusForbidden, resp.code)
	assert.Equal(t, "User is already logged in", resp.body["error"])

	resp = app.do(t, http.MethodPost, "/api/users/login", "anything", map[string]any{"email": "a@b.co", "password": "x"})
	assert.Equal(t, http.StatusForbidden, resp.code)
}

func TestUsers_WishlistAndCompare(t *testing.T) {
	app := newTestApp(t, RouterConfig{})
	token := app.register(t, "w@example.com")
	p := app.product(t, "Lamp", 30, 3)

	resp := app.do(t, http.MethodPut, "/api/users/wishlist/"+p.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, []any{p.ID.String()}, resp.body["data"])

	resp = app.do(t, http.MethodPut, "/api/users/wishlist/"+p.ID.String(), token, nil)
	assert.Equal(t, []any{p.ID.String()}, resp.body["data"], "adding twice keeps one entry")

	resp = app.do(t, http.MethodGet, "/api/users/wishlist", token, nil)
	require.Equal(t, http.StatusOK, resp.code)
	items := resp.body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Lamp", items[0].(map[string]any)["name"])

	resp = app.do(t, http.MethodGet, "/api/users/compare", token, nil)
	assert.Equal(t, []any{}, resp.body["data"])

	resp = app.do(t, http.MethodPut, "/api/users/compare/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.code)
	assert.Equal(t, "Product not found", resp.body["error"])

	resp = app.do(t, http.MethodDelete, "/api/users/wishlist/"+p.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, []any{}, resp.body["data"])
}

func TestProducts_CRUD(t *testing.T) {
	app := newTestApp(t, RouterConfig{})
	token := app.register(t, "p@example.com")

	created := app.do(t, http.MethodPost, "/api/products", "", map[string]any{
		"name": "Kettle", "description": "Boils water", "price": 25.5, "quantity": 4, "category": "kitchen",
	})
	require.Equal(t, http.StatusCreated, created.code, created.body)
	id := data(created)["id"].(string)
	assert.Equal(t, 25.5, data(created)["price"])

	got := app.do(t, http.MethodGet, "/api/products/"+id, "", nil)
	require.Equal(t, http.StatusOK, got.code)
	assert.Equal(t, "Kettle", data(got)["name"])

	missing := app.do(t, http.MethodGet, "/api/products/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, missing.code)
	assert.Equal(t, "Product not found", missing.body["error"])

	unauth := app.do(t, http.MethodPut, "/api/products/"+id, "", map[string]any{"price": 20})
	assert.Equal(t, http.StatusUnauthorized, unauth.code)

	updated := app.do(t, http.MethodPut, "/api/products/"+id, token, map[string]any{"price": 20})
	require.Equal(t, http.StatusOK, updated.code)
	assert.Equal(t, float64(20), data(updated)["price"])
	assert.Equal(t, "Kettle", data(updated)["name"])

	invalid := app.do(t, http.MethodPut, "/api/products/"+id, token, map[string]any{"quantity": -1})
	assert.Equal(t, http.StatusBadRequest, invalid.code)

	deleted := app.do(t, http.MethodDelete, "/api/products/"+id, token, nil)
	require.Equal(t, http.StatusOK, deleted.code)
	assert.Equal(t, map[string]any{"success": true, "data": map[string]any{}}, deleted.body)

	gone := app.do(t, http.MethodDelete, "/api/products/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, gone.code)
}

func TestProducts_CreateValidation(t *testing.T) {
	app := newTestApp(t, RouterConfig{})
	resp := app.do(t, http.MethodPost, "/api/products", "", map[string]any{"name": "No price"})
	require.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, "Please add a price", resp.body["error"])
}

func TestProducts_CreatePolicyFlag(t *testing.T) {
	app := newTestApp(t, RouterConfig{ProductCreateRequiresAuth: true})
	body := map[string]any{"name": "Kettle", "price": 10, "quantity": 1, "category": "kitchen"}

	resp := app.do(t, http.MethodPost, "/api/products", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.code)

	token := app.register(t, "admin@example.com")
	resp = app.do(t, http.MethodPost, "/api/products", token, body)
	assert.Equal(t, http.StatusCreated, resp.code)
}

func TestProducts_ListAndSearch(t *testing.T) {
	app := newTestApp(t, RouterConfig{})
	for i := 1; i <= 10; i++ {
		app.product(t, "Item", int64(i), 1)
	}
	app.product(t, "Blue Teapot", 50, 1)

	resp := app.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, float64(8), resp.body["count"])
	assert.Equal(t, float64(11), resp.body["total"])
	assert.Len(t, resp.body["products"], 8)

	resp = app.do(t, http.MethodGet, "/api/products?sort=-price&limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.code)
	first := resp.body["products"].([]any)[0].(map[string]any)
	assert.Equal(t, "Blue Teapot", first["name"])

	resp = app.do(t, http.MethodGet, "/api/products?sort=colour", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.code)

	resp = app.do(t, http.MethodGet, "/api/products?page=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.code)

	resp = app.do(t, http.MethodGet, "/api/products/search?query=teapot", "", nil)
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, float64(1), resp.body["count"])

	resp = app.do(t, http.MethodGet, "/api/products/search", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, "Please provide a search query", resp.body["error"])
}

func TestCart_Flow(t *testing.T) {
	app := newTestApp(t, RouterConfig{})
	token := app.register(t, "c@example.com")
	p1 := app.product(t, "P1", 10, 5)

	resp := app.do(t, http.MethodGet, "/api/cart", token, nil)
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, map[string]any{"items": []any{}, "totalPrice": float64(0)}, data(resp))

	resp = app.do(t, http.MethodPost, "/api/cart", token, map[string]any{"productId": p1.ID.String(), "quantity": 2})
	require.Equal(t, http.StatusOK, resp.code, resp.body)
	cart := data(resp)
	assert.Equal(t, float64(20), cart["totalPrice"])
	assert.Equal(t, []any{map[string]any{"product": p1.ID.String(), "quantity": float64(2), "price": float64(10)}}, cart["items"])

	resp = app.do(t, http.MethodPost, "/api/cart", token, map[string]any{"productId": p1.ID.String(), "quantity": 9})
	assert.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, "Product is out of stock or insufficient quantity", resp.body["error"])

	resp = app.do(t, http.MethodPost, "/api/cart", token, map[string]any{"productId": p1.ID.String()})
	assert.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, "Please provide product ID and quantity", resp.body["error"])

	resp = app.do(t, http.MethodPost, "/api/cart", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, []any{"Please provide product ID and quantity"}, resp.body["errors"])

	resp = app.do(t, http.MethodPut, "/api/cart/"+p1.ID.String(), token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, "Please provide quantity", resp.body["error"])

	resp = app.do(t, http.MethodPut, "/api/cart/"+p1.ID.String(), token, map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, []any{}, data(resp)["items"])
	assert.Equal(t, float64(0), data(resp)["totalPrice"])

	resp = app.do(t, http.MethodDelete, "/api/cart/"+p1.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, resp.code)
	assert.Equal(t, "Item not found in cart", resp.body["error"])

	other := app.register(t, "d@example.com")
	resp = app.do(t, http.MethodDelete, "/api/cart", other, nil)
	assert.Equal(t, http.StatusNotFound, resp.code)
	assert.Equal(t, "Cart not found", resp.body["error"])

	resp = app.do(t, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.code)
}

func TestOrders_Flow(t *testing.T) {
	app := newTestApp(t, RouterConfig{})
	token := app.register(t, "o@example.com")
	p := app.product(t, "Mug", 8, 3)

	checkout := map[string]any{
		"shippingAddress": map[string]any{"address": "1 Main St", "city": "Town", "postalCode": "1000", "country": "NL"},
		"paymentMethod":   "PayPal",
		"subtotal":        16, "tax": 0, "shipping": 0, "total": 16,
	}

	resp := app.do(t, http.MethodPost, "/api/orders", token, checkout)
	assert.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, "Cart is empty", resp.body["error"])

	resp = app.do(t, http.MethodPost, "/api/orders", token, map[string]any{"paymentMethod": "PayPal"})
	assert.Equal(t, http.StatusBadRequest, resp.code)
	assert.Equal(t, "Please provide shipping address and payment method", resp.body["error"])

	for _, bad := range []any{42, "", []string{"1 Main St"}} {
		resp = app.do(t, http.MethodPost, "/api/orders", token, map[string]any{"shippingAddress": bad, "paymentMethod": "PayPal"})
		assert.Equal(t, http.StatusBadRequest, resp.code, bad)
		assert.Equal(t, "Please provide shipping address and payment method", resp.body["error"], bad)
	}

	resp = app.do(t, http.MethodPost, "/api/cart", token, map[string]any{"productId": p.ID.String(), "quantity": 2})
	require.Equal(t, http.StatusOK, resp.code)

	resp = app.do(t, http.MethodPost, "/api/orders", token, checkout)
	require.Equal(t, http.StatusCreated, resp.code, resp.body)
	orderID := data(resp)["id"].(string)
	assert.Equal(t, false, data(resp)["isPaid"])

	stock, err := app.store.Products.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock.Quantity)

	resp = app.do(t, http.MethodPost, "/api/cart", token, map[string]any{"productId": p.ID.String(), "quantity": 1})
	require.Equal(t, http.StatusOK, resp.code)
	resp = app.do(t, http.MethodPost, "/api/orders", token, map[string]any{
		"shippingAddress": "2 Side St", "paymentMethod": "PayPal", "total": 8,
	})
	require.Equal(t, http.StatusCreated, resp.code, resp.body)
	assert.Equal(t, "2 Side St", data(resp)["shippingAddress"].(map[string]any)["address"])

	resp = app.do(t, http.MethodGet, "/api/cart", token, nil)
	assert.Equal(t, []any{}, data(resp)["items"])

	resp = app.do(t, http.MethodGet, "/api/orders", token, nil)
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, float64(2), resp.body["count"])

	intruder := app.register(t, "x@example.com")
	resp = app.do(t, http.MethodGet, "/api/orders/"+orderID, intruder, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.code)
	assert.Equal(t, "Not authorized to access this order", resp.body["error"])

	resp = app.do(t, http.MethodPut, "/api/orders/"+orderID+"/pay", intruder, map[string]any{"id": "PAY-1"})
	assert.Equal(t, http.StatusUnauthorized, resp.code)
	assert.Equal(t, "Not authorized to update this order", resp.body["error"])

	resp = app.do(t, http.MethodGet, "/api/orders/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.code)
	assert.Equal(t, "Order not found", resp.body["error"])

	resp = app.do(t, http.MethodPut, "/api/orders/"+orderID+"/pay", token, map[string]any{
		"id": "PAY-1", "status": "COMPLETED", "update_time": "2024-01-01T00:00:00Z", "email_address": "o@example.com",
	})
	require.Equal(t, http.StatusOK, resp.code)
	assert.Equal(t, true, data(resp)["isPaid"])
	assert.Equal(t, "PAY-1", data(resp)["paymentResult"].(map[string]any)["id"])
}

func TestHealth(t *testing.T) {
	router := gin.New()
	h := NewHealthHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("down") },
	})
	router.GET("/healthz", h.Healthz)
	router.GET("/readyz", h.Readyz)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"error","postgres":"connected","redis":"unavailable"}`, w.Body.String())
}
