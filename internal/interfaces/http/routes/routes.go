// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/config"
	"github.com/your-org/shop-backend/internal/domain/cart"
	"github.com/your-org/shop-backend/internal/domain/member"
	"github.com/your-org/shop-backend/internal/domain/order"
	"github.com/your-org/shop-backend/internal/infrastructure/database/redis"
	"github.com/your-org/shop-backend/internal/interfaces/http/handlers"
	"github.com/your-org/shop-backend/internal/interfaces/http/middleware"
	"github.com/your-org/shop-backend/internal/pkg/auth"
	"gorm.io/gorm"
)

// Dependencies are the shared resources the API handlers are built from
type Dependencies struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Config   *config.Config
	Logger   logrus.FieldLogger
	Notifier order.Notifier
	Receipts handlers.ReceiptRenderer
}

type services struct {
	members         *member.Service
	carts           *cart.Service
	orders          *order.Service
	jwtManager      *auth.JWTManager
	passwordManager *auth.PasswordManager
}

// SetupRoutes registers every API route under rg
func SetupRoutes(rg *gin.RouterGroup, deps Dependencies) {
	orders := order.NewService(deps.Config, deps.Notifier, deps.Logger)
	svc := services{
		members:         member.NewService(deps.Config, deps.Logger),
		carts:           cart.NewService(orders, deps.Logger),
		orders:          orders,
		jwtManager:      auth.NewJWTManager(deps.Config),
		passwordManager: auth.NewPasswordManager(deps.Config),
	}

	setupAuthRoutes(rg, deps, svc)
	setupCartRoutes(rg, deps, svc)
	setupOrderRoutes(rg, deps, svc)
	setupAdminRoutes(rg, deps, svc)
}

// setupAuthRoutes sets up registration, login and password routes
func setupAuthRoutes(rg *gin.RouterGroup, deps Dependencies, svc services) {
	authHandler := handlers.NewAuthHandler(deps.DB, svc.members, svc.jwtManager, svc.passwordManager, deps.Logger)

	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/password/check", authHandler.CheckPasswordIdentity)
		authGroup.POST("/password/reset", authHandler.ResetPassword)

		// Protected auth routes
		protected := authGroup.Group("")
		protected.Use(middleware.AuthMiddleware(svc.jwtManager))
		{
			protected.PUT("/password", authHandler.UpdatePassword)
		}
	}
}

// setupCartRoutes sets up cart routes
func setupCartRoutes(rg *gin.RouterGroup, deps Dependencies, svc services) {
	// Checkout retries are deduplicated only when Redis is configured
	var idempotency *redis.IdempotencyStore
	if deps.Redis != nil {
		idempotency = redis.NewIdempotencyStore(deps.Redis, "checkout:idem", deps.Config.Checkout.IdempotencyTTL)
	}
	cartHandler := handlers.NewCartHandler(deps.DB, svc.carts, idempotency, deps.Logger)

	cartGroup := rg.Group("/cart")
	cartGroup.Use(middleware.AuthMiddleware(svc.jwtManager))
	{
		cartGroup.GET("", cartHandler.GetCart)
		cartGroup.POST("/items", cartHandler.AddToCart)
		cartGroup.PATCH("/items/:id", cartHandler.UpdateCartItem)
		cartGroup.DELETE("/items/:id", cartHandler.RemoveCartItem)
		cartGroup.POST("/checkout", cartHandler.Checkout)
	}
}

// setupOrderRoutes sets up order routes
func setupOrderRoutes(rg *gin.RouterGroup, deps Dependencies, svc services) {
	orderHandler := handlers.NewOrderHandler(deps.DB, svc.orders, deps.Logger)
	receiptHandler := handlers.NewReceiptHandler(deps.DB, svc.orders, deps.Receipts, deps.Logger)

	orderGroup := rg.Group("/orders")
	orderGroup.Use(middleware.AuthMiddleware(svc.jwtManager))
	{
		orderGroup.POST("", orderHandler.CreateOrder)
		orderGroup.GET("", orderHandler.GetOrders)
		orderGroup.GET("/returns", orderHandler.GetReturns)
		orderGroup.GET("/:id", orderHandler.GetOrder)
		orderGroup.POST("/:id/cancel", orderHandler.CancelOrder)
		orderGroup.POST("/:id/return", orderHandler.RequestReturn)
		orderGroup.GET("/:id/receipt", receiptHandler.DownloadReceipt)
	}
}

// setupAdminRoutes sets up admin routes
func setupAdminRoutes(rg *gin.RouterGroup, deps Dependencies, svc services) {
	memberHandler := handlers.NewMemberAdminHandler(deps.DB, svc.members, deps.Logger)
	orderHandler := handlers.NewOrderHandler(deps.DB, svc.orders, deps.Logger)

	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(svc.jwtManager), middleware.AdminMiddleware())
	{
		admin.GET("/members", memberHandler.SearchMembers)
		admin.POST("/orders/:id/return/confirm", orderHandler.ConfirmReturn)
	}
}
