package dto

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/model"
)

// --- Users ---

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=50" msg:"required=Name is required,max=Name cannot be more than 50 characters"`
	Email    string `json:"email" validate:"required,email" msg:"required=Email is required,email=Please provide a valid email"`
	Password string `json:"password" validate:"required,min=6" msg:"required=Password is required,min=Password must be at least 6 characters"`
}

func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" msg:"required=Email is required,email=Please provide a valid email"`
	Password string `json:"password" validate:"required" msg:"required=Password is required"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    *model.User `json:"user"`
}

// --- Products ---

type CreateProductRequest struct {
	Name        string           `json:"name" validate:"required,max=100" msg:"required=Please add a product name,max=Name cannot be more than 100 characters"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"required" msg:"required=Please add a price"`
	Quantity    int              `json:"quantity" validate:"min=0" msg:"min=Quantity cannot be negative"`
	Category    string           `json:"category" validate:"required" msg:"required=Please add a category"`
	ImageURL    string           `json:"imageUrl"`
}

func (r *CreateProductRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.TrimSpace(r.Category)
	r.ImageURL = strings.TrimSpace(r.ImageURL)
}

// UpdateProductRequest is a partial update; nil fields are left unchanged.
type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *int             `json:"quantity"`
	Category    *string          `json:"category"`
	ImageURL    *string          `json:"imageUrl"`
}

type ListProductsRequest struct {
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
	Category string `form:"category"`
	Sort     string `form:"sort"`
}

type ProductListResponse struct {
	Success  bool            `json:"success"`
	Count    int             `json:"count"`
	Total    int             `json:"total"`
	Products []model.Product `json:"products"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID string `json:"productId" validate:"required" msg:"required=Please provide product ID and quantity"`
	Quantity  int    `json:"quantity" validate:"required,min=1" msg:"required=Please provide product ID and quantity,min=Quantity must be at least 1"`
}

func (r *AddCartItemRequest) Normalize() {
	r.ProductID = strings.TrimSpace(r.ProductID)
}

// UpdateCartItemRequest takes a pointer so an explicit 0 (remove the line)
// is distinguishable from a missing field.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required" msg:"required=Please provide quantity"`
}

// EmptyCart is what GET /api/cart returns for a user who never added anything.
type EmptyCart struct {
	Items      []model.CartItem `json:"items"`
	TotalPrice decimal.Decimal  `json:"totalPrice"`
}

// --- Orders ---

type ShippingAddress struct {
	Address    string `json:"address" validate:"required" msg:"required=Please provide shipping address and payment method"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// UnmarshalJSON also takes a bare string as the address line. Any other
// shape decodes to an empty address, which validation then rejects.
func (a *ShippingAddress) UnmarshalJSON(data []byte) error {
	var line string
	if err := json.Unmarshal(data, &line); err == nil {
		*a = ShippingAddress{Address: line}
		return nil
	}
	type fields ShippingAddress
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		*a = ShippingAddress{}
		return nil
	}
	*a = ShippingAddress(f)
	return nil
}

type CreateOrderRequest struct {
	ShippingAddress *ShippingAddress `json:"shippingAddress" validate:"required" msg:"required=Please provide shipping address and payment method"`
	PaymentMethod   string           `json:"paymentMethod" validate:"required" msg:"required=Please provide shipping address and payment method"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	Tax             decimal.Decimal  `json:"tax"`
	Shipping        decimal.Decimal  `json:"shipping"`
	Total           decimal.Decimal  `json:"total"`
}

func (r *CreateOrderRequest) Normalize() {
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	if r.ShippingAddress != nil {
		a := r.ShippingAddress
		a.Address = strings.TrimSpace(a.Address)
		a.City = strings.TrimSpace(a.City)
		a.PostalCode = strings.TrimSpace(a.PostalCode)
		a.Country = strings.TrimSpace(a.Country)
	}
}

func (r *CreateOrderRequest) Address() model.ShippingAddress {
	if r.ShippingAddress == nil {
		return model.ShippingAddress{}
	}
	return model.ShippingAddress(*r.ShippingAddress)
}

// PayOrderRequest mirrors the payment provider's confirmation payload.
type PayOrderRequest struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

func (r PayOrderRequest) Result() model.PaymentResult {
	return model.PaymentResult(r)
}

// --- Envelopes ---

type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ListResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    any  `json:"data"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed request. Errors lists every
// validation message; Detail carries the wrapped error outside production.
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Errors  []string `json:"errors,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

func Fail(msg string) ErrorResponse { return ErrorResponse{Error: msg} }

type SuccessResponse struct {
	Success bool `json:"success"`
}

func Data(v any) DataResponse { return DataResponse{Success: true, Data: v} }

func List[T any](items []T) ListResponse {
	if items == nil {
		items = []T{}
	}
	return ListResponse{Success: true, Count: len(items), Data: items}
}
