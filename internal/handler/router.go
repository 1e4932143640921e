package handler

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront-api/internal/dto"
	"github.com/flicky/storefront-api/internal/metrics"
	"github.com/flicky/storefront-api/internal/middleware"
	"github.com/flicky/storefront-api/internal/model"
)

type RouterConfig struct {
	Production                bool
	FrontEndURL               string
	ProductCreateRequiresAuth bool
}

type Handlers struct {
	Products *ProductHandler
	Users    *UserHandler
	Carts    *CartHandler
	Orders   *OrderHandler
	Health   *HealthHandler
}

func NewRouter(cfg RouterConfig, h Handlers, auth *middleware.Auth, limiter *middleware.RateLimiter, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(log),
		metrics.Middleware(),
		cors.New(cors.Config{
			AllowOrigins:     []string{cfg.FrontEndURL},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", IdempotencyHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.ErrorHandler(log, cfg.Production),
	)

	router.GET("/healthz", h.Health.Healthz)
	router.GET("/readyz", h.Health.Readyz)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	required := auth.Required()
	api := router.Group("/api")

	products := api.Group("/products")
	{
		products.GET("/search", h.Products.Search)
		products.GET("", h.Products.List)
		products.GET("/:id", h.Products.GetByID)

		create := []gin.HandlerFunc{middleware.ValidateBody[dto.CreateProductRequest](), h.Products.Create}
		if cfg.ProductCreateRequiresAuth {
			create = append([]gin.HandlerFunc{required}, create...)
		}
		products.POST("", create...)
		products.PUT("/:id", required, middleware.ValidateBody[dto.UpdateProductRequest](), h.Products.Update)
		products.DELETE("/:id", required, h.Products.Delete)
	}

	users := api.Group("/users")
	{
		guest := users.Group("", limiter.Handler(), auth.GuestOnly())
		guest.GET("/register", h.Users.NotLoggedIn)
		guest.GET("/login", h.Users.NotLoggedIn)
		guest.POST("/register", middleware.ValidateBody[dto.RegisterRequest](), h.Users.Register)
		guest.POST("/login", middleware.ValidateBody[dto.LoginRequest](), h.Users.Login)

		users.GET("/logout", required, middleware.WithIdentity(h.Users.Logout))
		users.GET("/me", required, middleware.WithIdentity(h.Users.Me))

		for _, list := range []model.ProductList{model.Wishlist, model.CompareList} {
			path := "/" + string(list)
			users.GET(path, required, middleware.WithIdentity(h.Users.ListProducts(list)))
			users.PUT(path+"/:productId", required, middleware.WithIdentity(h.Users.AddToList(list)))
			users.DELETE(path+"/:productId", required, middleware.WithIdentity(h.Users.RemoveFromList(list)))
		}
	}

	cart := api.Group("/cart", required)
	{
		cart.GET("", middleware.WithIdentity(h.Carts.GetCart))
		cart.POST("", middleware.ValidateBody[dto.AddCartItemRequest](), middleware.WithIdentity(h.Carts.AddItem))
		cart.DELETE("", middleware.WithIdentity(h.Carts.Clear))
		cart.PUT("/:productId", middleware.ValidateBody[dto.UpdateCartItemRequest](), middleware.WithIdentity(h.Carts.UpdateItem))
		cart.DELETE("/:productId", middleware.WithIdentity(h.Carts.RemoveItem))
	}

	orders := api.Group("/orders", required)
	{
		orders.POST("", middleware.ValidateBody[dto.CreateOrderRequest](), middleware.WithIdentity(h.Orders.CreateOrder))
		orders.GET("", middleware.WithIdentity(h.Orders.ListOrders))
		orders.GET("/:id", middleware.WithIdentity(h.Orders.GetOrder))
		orders.PUT("/:id/pay", middleware.ValidateBody[dto.PayOrderRequest](), middleware.WithIdentity(h.Orders.PayOrder))
	}

	return router
}
