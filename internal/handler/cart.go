package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/service"
)

type CartHandler struct {
	svc *service.CartService
}

func NewCartHandler(svc *service.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

func (h *CartHandler) GetCart(c *gin.Context, id middleware.Identity) {
	cart, err := h.svc.GetCart(c.Request.Context(), id.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if cart == nil {
		c.JSON(http.StatusOK, dto.Data(dto.EmptyCart{Items: []model.CartItem{}, TotalPrice: decimal.Zero}))
		return
	}
	c.JSON(http.StatusOK, dto.Data(cart))
}

func (h *CartHandler) AddItem(c *gin.Context, id middleware.Identity) {
	req := middleware.Body[dto.AddCartItemRequest](c)
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		_ = c.Error(service.ErrProductNotFound)
		return
	}

	cart, err := h.svc.AddItem(c.Request.Context(), id.UserID, productID, req.Quantity)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(cart))
}

// UpdateItem passes an unparsable product id through as uuid.Nil; it then
// matches no line and yields the same 404s as any unknown id.
func (h *CartHandler) UpdateItem(c *gin.Context, id middleware.Identity) {
	productID, _ := uuid.Parse(c.Param("productId"))
	req := middleware.Body[dto.UpdateCartItemRequest](c)

	cart, err := h.svc.UpdateItem(c.Request.Context(), id.UserID, productID, *req.Quantity)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(cart))
}

func (h *CartHandler) RemoveItem(c *gin.Context, id middleware.Identity) {
	productID, _ := uuid.Parse(c.Param("productId"))

	cart, err := h.svc.RemoveItem(c.Request.Context(), id.UserID, productID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(cart))
}

func (h *CartHandler) Clear(c *gin.Context, id middleware.Identity) {
	cart, err := h.svc.Clear(c.Request.Context(), id.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(cart))
}
