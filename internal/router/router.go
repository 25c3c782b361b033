// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/gateway"
	"github.com/javajoker/digistore-backend/internal/handlers"
	"github.com/javajoker/digistore-backend/internal/lock"
	"github.com/javajoker/digistore-backend/internal/metrics"
	"github.com/javajoker/digistore-backend/internal/middleware"
	"github.com/javajoker/digistore-backend/internal/services"
	"github.com/javajoker/digistore-backend/internal/utils"
	"github.com/javajoker/digistore-backend/internal/ws"
)

// Services is the wired service graph shared by the HTTP layer and the
// background workers.
type Services struct {
	Gateway       gateway.Gateway
	Storage       *services.StorageService
	Notifications *services.NotificationService
	Auth          *services.AuthService
	Users         *services.UserService
	Catalog       *services.CatalogService
	Settlement    *services.SettlementService
	Withdrawals   *services.WithdrawalService
	Admin         *services.AdminService
	Hub           *ws.Hub
}

func NewServices(db *gorm.DB, cfg *config.Config, gw gateway.Gateway, locker lock.Locker, hub *ws.Hub) (*Services, error) {
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}

	notificationService := services.NewNotificationService(db, cfg, hub)
	withdrawalService := services.NewWithdrawalService(db, cfg.Payment, gw, locker, notificationService)
	settlementService := services.NewSettlementService(db, cfg.Payment, gw, locker, notificationService, storageService, withdrawalService)

	return &Services{
		Gateway:       gw,
		Storage:       storageService,
		Notifications: notificationService,
		Auth:          services.NewAuthService(db, cfg),
		Users:         services.NewUserService(db, gw),
		Catalog:       services.NewCatalogService(db, storageService, cfg.Payment.Currency),
		Settlement:    settlementService,
		Withdrawals:   withdrawalService,
		Admin:         services.NewAdminService(db),
		Hub:           hub,
	}, nil
}

func Initialize(db *gorm.DB, cfg *config.Config, svc *Services) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth)
	userHandler := handlers.NewUserHandler(svc.Users, cfg.Payment)
	catalogHandler := handlers.NewCatalogHandler(svc.Catalog)
	paymentHandler := handlers.NewPaymentHandler(svc.Settlement, svc.Gateway.SignatureHeader())
	withdrawalHandler := handlers.NewWithdrawalHandler(svc.Withdrawals)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications)
	adminHandler := handlers.NewAdminHandler(svc.Admin, svc.Withdrawals)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(metrics.Middleware())
	r.Use(middleware.CORS(cfg.Frontend.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "up"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			dbStatus = "down"
		}
		c.JSON(status, gin.H{
			"status":   http.StatusText(status),
			"database": dbStatus,
			"gateway":  svc.Gateway.Name(),
		})
	})
	r.GET("/metrics", metrics.Handler())

	r.NoRoute(func(c *gin.Context) {
		utils.NotFoundResponse(c, "route")
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
		}
		v1.GET("/auth/me", middleware.AuthRequired(), authHandler.GetProfile)

		// Catalog routes
		v1.GET("/categories", catalogHandler.ListCategories)

		files := v1.Group("/files")
		{
			files.GET("", catalogHandler.ListFiles)
			files.GET("/:id", middleware.OptionalAuth(), catalogHandler.GetFile)

			seller := files.Group("")
			seller.Use(middleware.AuthRequired(), middleware.SellerRequired())
			{
				seller.POST("", middleware.UploadRateLimit(), catalogHandler.CreateFile)
				seller.PUT("/:id/active", catalogHandler.SetFileActive)
			}
		}

		// Payment routes. Webhooks authenticate by signature, not by token.
		v1.POST("/payments/webhook", paymentHandler.Webhook)
		v1.POST("/withdrawals/webhook", paymentHandler.Webhook)

		payments := v1.Group("/payments")
		payments.Use(middleware.AuthRequired())
		{
			payments.POST("/initialize", middleware.PaymentRateLimit(), paymentHandler.InitializePurchase)
			payments.POST("/verify", middleware.PaymentRateLimit(), paymentHandler.VerifyPayment)
			payments.GET("/history", paymentHandler.GetPurchaseHistory)
			payments.GET("/sales", middleware.SellerRequired(), paymentHandler.GetSales)
			payments.GET("/:id", paymentHandler.GetTransaction)
		}

		v1.GET("/purchases/:id/download", middleware.AuthRequired(), paymentHandler.Download)

		// Seller earnings and payouts
		seller := v1.Group("")
		seller.Use(middleware.AuthRequired(), middleware.SellerRequired())
		{
			seller.GET("/earnings", userHandler.GetEarnings)
			seller.PUT("/users/bank-details", userHandler.UpdateBankDetails)
			seller.POST("/withdrawals", withdrawalHandler.RequestWithdrawal)
			seller.GET("/withdrawals", withdrawalHandler.ListWithdrawals)
		}

		v1.PUT("/users/profile", middleware.AuthRequired(), userHandler.UpdateProfile)

		// Notifications
		notifications := v1.Group("/notifications")
		{
			notifications.GET("/ws", ws.Serve(svc.Hub))

			protected := notifications.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.GET("", notificationHandler.List)
				protected.PUT("/read-all", notificationHandler.MarkAllRead)
				protected.PUT("/:id/read", notificationHandler.MarkRead)
			}
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
			admin.GET("/users", adminHandler.GetUsers)
			admin.PUT("/users/:id/status", adminHandler.UpdateUserStatus)
			admin.GET("/transactions", adminHandler.GetTransactions)

			admin.POST("/categories", catalogHandler.CreateCategory)
			admin.GET("/files/pending", catalogHandler.ListPendingReview)
			admin.PUT("/files/:id/approve", catalogHandler.ApproveFile)

			admin.GET("/withdrawals", withdrawalHandler.ListAllWithdrawals)
			admin.GET("/withdrawals/:id", adminHandler.GetWithdrawal)
			admin.POST("/withdrawals/:id/process", withdrawalHandler.ProcessWithdrawal)
			admin.PUT("/withdrawals/:id/cancel", withdrawalHandler.CancelWithdrawal)

			admin.GET("/notifications", adminHandler.GetNotifications)
			admin.PUT("/notifications/:id/read", adminHandler.MarkNotificationRead)
		}
	}

	return r
}
