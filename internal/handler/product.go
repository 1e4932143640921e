package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront-api/internal/apperr"
	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/service"
)

type ProductHandler struct {
	productService *service.ProductService
}

func NewProductHandler(productService *service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

func (h *ProductHandler) Create(c *gin.Context) {
	req := middleware.Body[dto.CreateProductRequest](c)

	product, err := h.productService.Create(c.Request.Context(), *req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dto.Data(product))
}

func (h *ProductHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id", service.ErrProductNotFound)
	if !ok {
		return
	}

	product, err := h.productService.GetByID(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(product))
}

func (h *ProductHandler) List(c *gin.Context) {
	var req dto.ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(apperr.BadRequest("Invalid query parameters"))
		return
	}

	resp, err := h.productService.List(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) Search(c *gin.Context) {
	products, err := h.productService.Search(c.Request.Context(), c.Query("query"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.List(products))
}

func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id", service.ErrProductNotFound)
	if !ok {
		return
	}

	product, err := h.productService.Update(c.Request.Context(), id, *middleware.Body[dto.UpdateProductRequest](c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(product))
}

func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id", service.ErrProductNotFound)
	if !ok {
		return
	}

	if err := h.productService.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(gin.H{}))
}
