package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/service"
	"github.com/flicky/storefront-api/internal/session"
)

type UserHandler struct {
	auth    *service.AuthService
	users   *service.UserService
	cookies *session.Cookies
}

func NewUserHandler(auth *service.AuthService, users *service.UserService, cookies *session.Cookies) *UserHandler {
	return &UserHandler{auth: auth, users: users, cookies: cookies}
}

// NotLoggedIn answers the GET register/login probes once GuestOnly let the
// request through.
func (h *UserHandler) NotLoggedIn(c *gin.Context) {
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: "User is not logged in"})
}

func (h *UserHandler) Register(c *gin.Context) {
	resp, err := h.auth.Register(c.Request.Context(), *middleware.Body[dto.RegisterRequest](c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.cookies.Set(c, resp.Token)
	c.JSON(http.StatusCreated, resp)
}

func (h *UserHandler) Login(c *gin.Context) {
	resp, err := h.auth.Login(c.Request.Context(), *middleware.Body[dto.LoginRequest](c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.cookies.Set(c, resp.Token)
	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) Logout(c *gin.Context, id middleware.Identity) {
	if err := h.auth.Logout(c.Request.Context(), id.Session()); err != nil {
		_ = c.Error(err)
		return
	}
	h.cookies.Clear(c)
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

func (h *UserHandler) Me(c *gin.Context, id middleware.Identity) {
	user, err := h.users.Me(c.Request.Context(), id.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.Data(user))
}

func (h *UserHandler) ListProducts(list model.ProductList) func(*gin.Context, middleware.Identity) {
	return func(c *gin.Context, id middleware.Identity) {
		products, err := h.users.Products(c.Request.Context(), id.UserID, list)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, dto.Data(products))
	}
}

func (h *UserHandler) AddToList(list model.ProductList) func(*gin.Context, middleware.Identity) {
	return func(c *gin.Context, id middleware.Identity) {
		productID, ok := paramID(c, "productId", service.ErrProductNotFound)
		if !ok {
			return
		}
		set, err := h.users.Add(c.Request.Context(), id.UserID, list, productID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, dto.Data(set))
	}
}

func (h *UserHandler) RemoveFromList(list model.ProductList) func(*gin.Context, middleware.Identity) {
	return func(c *gin.Context, id middleware.Identity) {
		productID, ok := paramID(c, "productId", service.ErrProductNotFound)
		if !ok {
			return
		}
		set, err := h.users.Remove(c.Request.Context(), id.UserID, list, productID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, dto.Data(set))
	}
}
