// internal/router/router.go
package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/chain"
	"github.com/stackdrive/stackdrive-backend/internal/config"
	"github.com/stackdrive/stackdrive-backend/internal/handlers"
	"github.com/stackdrive/stackdrive-backend/internal/middleware"
	"github.com/stackdrive/stackdrive-backend/internal/payproto"
	"github.com/stackdrive/stackdrive-backend/internal/services"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, *services.SharedLinkService, error) {
	// Initialize services
	notificationService := services.NewNotificationService(db, cfg)
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage service: %w", err)
	}
	verifier := payproto.NewVerifier(cfg.Chain)
	treasury := chain.NewTreasuryClient(cfg.Chain)

	authService := services.NewAuthService(db, cfg)
	driveService := services.NewDriveService(db, storageService)
	replicationService := services.NewReplicationService(db)
	listingService := services.NewListingService(db)
	sharedLinkService := services.NewSharedLinkService(db, replicationService)
	affiliateService := services.NewAffiliateService(db, cfg)
	purchaseService := services.NewPurchaseService(db, cfg, verifier, replicationService, affiliateService, notificationService)
	settlementService := services.NewSettlementService(db, cfg, treasury, notificationService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	driveHandler := handlers.NewDriveHandler(driveService, storageService)
	listingHandler := handlers.NewListingHandler(listingService, purchaseService)
	sharedLinkHandler := handlers.NewSharedLinkHandler(sharedLinkService, purchaseService)
	affiliateHandler := handlers.NewAffiliateHandler(affiliateService, settlementService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.Frontend.BaseURL))
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
			auth.PUT("/wallet", middleware.AuthRequired(), authHandler.UpdateWallet)
		}

		// Drive routes
		drive := v1.Group("/drive")
		drive.Use(middleware.AuthRequired())
		{
			drive.POST("/folders", driveHandler.CreateFolder)
			drive.POST("/files", middleware.UploadRateLimit(), driveHandler.Upload)
			drive.GET("/items", driveHandler.List)
			drive.GET("/items/:id", driveHandler.Get)
			drive.PUT("/items/:id/name", driveHandler.Rename)
			drive.PUT("/items/:id/parent", driveHandler.Move)
			drive.DELETE("/items/:id", driveHandler.Delete)
			drive.GET("/items/:id/download", driveHandler.Download)
		}

		// Marketplace routes
		listings := v1.Group("/listings")
		{
			listings.GET("", middleware.OptionalAuth(), listingHandler.Search)
			listings.GET("/:id", middleware.OptionalAuth(), listingHandler.Get)

			protected := listings.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", listingHandler.Create)
				protected.PUT("/:id", listingHandler.Update)
				protected.POST("/:id/purchase", middleware.PurchaseRateLimit(), listingHandler.Purchase)
			}
		}

		// Transaction routes
		transactions := v1.Group("/transactions")
		transactions.Use(middleware.AuthRequired())
		{
			transactions.GET("", listingHandler.Transactions)
			transactions.GET("/:id", listingHandler.Transaction)
		}

		// Shared link routes
		links := v1.Group("/shared-links")
		{
			links.GET("/:token", middleware.OptionalAuth(), sharedLinkHandler.Resolve)

			protected := links.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.GET("", sharedLinkHandler.List)
				protected.POST("", sharedLinkHandler.Create)
				protected.POST("/:token/save", sharedLinkHandler.Save)
				protected.POST("/:token/pay", middleware.PurchaseRateLimit(), sharedLinkHandler.Pay)
				protected.DELETE("/:token", sharedLinkHandler.Revoke)
			}
		}

		// Affiliate and settlement routes
		affiliates := v1.Group("/affiliates")
		affiliates.Use(middleware.AuthRequired())
		{
			affiliates.POST("", affiliateHandler.Create)
			affiliates.GET("/owned", affiliateHandler.ListOwned)
			affiliates.GET("/mine", affiliateHandler.ListMine)
			affiliates.PUT("/:id/status", affiliateHandler.SetStatus)
			affiliates.POST("/payments", affiliateHandler.Settle)
			affiliates.GET("/payments", affiliateHandler.Payments)
			affiliates.GET("/earnings", affiliateHandler.Earnings)
		}
	}

	return r, sharedLinkService, nil
}
