package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agrimarket-backend/internal/middleware"
	"agrimarket-backend/internal/models"
	"agrimarket-backend/internal/services"
)

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	Users        *services.UserService
	Auth         *services.AuthService
	Crops        *services.CropService
	Transactions *services.TransactionService

	// Feed is optional; without it the market feed route is not mounted
	Feed *services.MarketFeed

	Logger   *zap.Logger
	Security *middleware.SecurityConfig

	// AuthRateLimit caps credential attempts per IP and window; zero disables it
	AuthRateLimit       int
	AuthRateLimitWindow time.Duration
}

// SetupRouter builds the gin engine with every API route
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(deps.Logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.SecurityMiddleware(deps.Security))

	authMiddleware := middleware.NewAuthMiddleware(deps.Auth)

	authHandlers := NewAuthHandlers(deps.Users, deps.Auth)
	userHandlers := NewUserHandlers(deps.Users, deps.Transactions)
	cropHandlers := NewCropHandlers(deps.Crops)
	transactionHandlers := NewTransactionHandlers(deps.Transactions)

	// Health check endpoint
	router.GET("/health", health)

	apiGroup := router.Group("/api/v1")
	{
		auth := apiGroup.Group("/auth")
		if deps.AuthRateLimit > 0 {
			auth.Use(middleware.AuthRateLimitMiddleware(deps.AuthRateLimit, deps.AuthRateLimitWindow))
		}
		{
			auth.POST("/register", authHandlers.Register)
			auth.POST("/token", authHandlers.Token)
			auth.POST("/logout", authMiddleware.AuthRequired(), authHandlers.Logout)
		}

		// Public catalog
		apiGroup.GET("/crops", cropHandlers.ListCatalog)

		if deps.Feed != nil {
			apiGroup.GET("/market/feed", deps.Feed.HandleWebSocket)
		}

		protected := apiGroup.Group("")
		protected.Use(authMiddleware.AuthRequired())
		{
			protected.GET("/users/me", authHandlers.Me)

			protected.PUT("/farmers/:id", authMiddleware.RequireRole(models.RoleFarmer), userHandlers.UpdateFarmer)
			protected.PUT("/buyers/:id", authMiddleware.RequireRole(models.RoleBuyer), userHandlers.UpdateBuyer)
			protected.GET("/buyers/:id/purchases", authMiddleware.RequireRole(models.RoleBuyer), userHandlers.BuyerPurchases)

			lands := protected.Group("/lands")
			{
				lands.POST("", authMiddleware.RequireRole(models.RoleFarmer), cropHandlers.RegisterLand)
				lands.GET("/:id", cropHandlers.GetLand)
			}

			plantedCrops := protected.Group("/planted-crops")
			{
				plantedCrops.GET("/:id", cropHandlers.GetPlantedCrop)
				plantedCrops.PUT("/:id/harvest-date", authMiddleware.RequireRole(models.RoleFarmer), cropHandlers.SetHarvestDate)
				plantedCrops.POST("/:id/growth", authMiddleware.RequireRole(models.RoleFarmer), cropHandlers.RecordGrowth)
				plantedCrops.GET("/:id/growth", cropHandlers.GrowthHistory)
			}

			protected.POST("/harvest-ready", cropHandlers.SweepHarvestReady)

			transactions := protected.Group("/transactions")
			{
				transactions.GET("", transactionHandlers.ListActive)
				transactions.GET("/:plantedCropId", transactionHandlers.GetTransaction)
				transactions.PUT("/:plantedCropId/selling-price", authMiddleware.RequireRole(models.RoleFarmer), transactionHandlers.SetSellingPrice)
				transactions.PUT("/:plantedCropId/offer", authMiddleware.RequireRole(models.RoleBuyer), transactionHandlers.PlaceOffer)
				transactions.PUT("/:plantedCropId/accept", authMiddleware.RequireRole(models.RoleFarmer), transactionHandlers.AcceptOffer)
			}
		}
	}

	return router
}
