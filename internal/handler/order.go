package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/service"
)

// IdempotencyHeader lets a client retry checkout without ordering twice.
const IdempotencyHeader = "Idempotency-Key"

type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

func (h *OrderHandler) CreateOrder(c *gin.Context, id middleware.Identity) {
	req := middleware.Body[dto.CreateOrderRequest](c)

	order, replayed, err := h.svc.CreateOrder(c.Request.Context(), id.UserID, *req, c.GetHeader(IdempotencyHeader))
	if err != nil {
		_ = c.Error(err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	c.JSON(status, dto.Data(order))
}

func (h *OrderHandler) ListOrders(c *gin.Context, id middleware.Identity) {
	orders, err := h.svc.ListOrders(c.Request.Context(), id.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.List(orders))
}

func (h *OrderHandler) GetOrder(c *gin.Context, id middleware.Identity) {
	orderID, ok := paramID(c, "id", service.ErrOrderNotFound)
	if !ok {
		return
	}

	order, err := h.svc.GetByID(c.Request.Context(), orderID, id.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(order))
}

func (h *OrderHandler) PayOrder(c *gin.Context, id middleware.Identity) {
	orderID, ok := paramID(c, "id", service.ErrOrderNotFound)
	if !ok {
		return
	}
	req := middleware.Body[dto.PayOrderRequest](c)

	order, err := h.svc.Pay(c.Request.Context(), orderID, id.UserID, req.Result())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(order))
}
