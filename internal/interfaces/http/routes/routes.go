// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/asset-inventory/internal/config"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/domain/asset"
	"github.com/your-org/asset-inventory/internal/domain/notification"
	"github.com/your-org/asset-inventory/internal/domain/request"
	"github.com/your-org/asset-inventory/internal/infrastructure/database/postgres"
	redisdb "github.com/your-org/asset-inventory/internal/infrastructure/database/redis"
	"github.com/your-org/asset-inventory/internal/interfaces/http/handlers"
	"github.com/your-org/asset-inventory/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// Services bundles what the HTTP surface calls into
type Services struct {
	Stock       *asset.Service
	Requests    *request.Service
	History     handlers.HistoryReader
	Inbox       handlers.InboxReader
	Idempotency middleware.KeyStore
}

// NewServices wires the domain services onto the database and Redis.
// redisClient may be nil, which disables pub/sub and idempotency keys.
func NewServices(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, logger logrus.FieldLogger) *Services {
	tx := postgres.NewTransactor(db)
	history := activity.NewService(db)
	notifications := notification.NewService(db, redisClient, cfg.Inventory.NotificationChannel, logger)

	stock := asset.NewService(postgres.NewAssetRepository(db), tx, history, logger)
	requests := request.NewService(postgres.NewRequestRepository(db), tx, stock, history, notifications, cfg, logger)

	svc := &Services{
		Stock:    stock,
		Requests: requests,
		History:  history,
		Inbox:    notifications,
	}
	if redisClient != nil {
		svc.Idempotency = redisdb.Wrap(redisClient)
	}
	return svc
}

// SetupRoutes registers every API route under rg
func SetupRoutes(rg *gin.RouterGroup, svc *Services, cfg *config.Config, logger logrus.FieldLogger) {
	SetupRequestRoutes(rg, svc, cfg, logger)
	SetupStockRoutes(rg, svc, cfg)
	SetupNotificationRoutes(rg, svc, cfg)
}

// SetupRequestRoutes sets up request lifecycle routes
func SetupRequestRoutes(rg *gin.RouterGroup, svc *Services, cfg *config.Config, logger logrus.FieldLogger) {
	requestHandler := handlers.NewRequestHandler(svc.Requests, svc.History, cfg)

	requests := rg.Group("/requests")
	requests.Use(middleware.AuthMiddleware(cfg))
	{
		requests.POST("", requestHandler.CreateRequest)
		requests.GET("/:id", requestHandler.GetRequest)
		requests.DELETE("/:id", requestHandler.DeleteRequest)
		requests.GET("/:id/activity", requestHandler.GetRequestActivity)

		// Role is checked against the approval type inside the handler
		requests.POST("/:id/approve", requestHandler.ApproveRequest)

		approvers := requests.Group("")
		approvers.Use(middleware.RequireRole(request.RoleLogisticApprover, request.RolePurchaseApprover))
		{
			approvers.POST("/:id/reject", requestHandler.RejectRequest)
			approvers.POST("/:id/arrive", requestHandler.ArriveRequest)
			approvers.POST("/:id/complete", requestHandler.CompleteRequest)
			approvers.POST("/:id/register",
				middleware.Idempotency(svc.Idempotency, cfg.Inventory.IdempotencyTTL, logger),
				requestHandler.RegisterAssets)
		}
	}
}

// SetupStockRoutes sets up stock ledger routes
func SetupStockRoutes(rg *gin.RouterGroup, svc *Services, cfg *config.Config) {
	stockHandler := handlers.NewStockHandler(svc.Stock, cfg)

	stock := rg.Group("/stock")
	stock.Use(middleware.AuthMiddleware(cfg))
	{
		stock.GET("/availability", stockHandler.GetAvailability)
		stock.GET("/summary", stockHandler.GetSummary)
		stock.POST("/consume", stockHandler.ConsumeStock)
		stock.GET("/lots/:id/movements", stockHandler.GetMovements)
		stock.GET("/lots/:id/reconcile", stockHandler.ReconcileLot)
	}
}

// SetupNotificationRoutes sets up the notification inbox
func SetupNotificationRoutes(rg *gin.RouterGroup, svc *Services, cfg *config.Config) {
	notificationHandler := handlers.NewNotificationHandler(svc.Inbox)

	notifications := rg.Group("/notifications")
	notifications.Use(middleware.AuthMiddleware(cfg))
	{
		notifications.GET("", notificationHandler.GetNotifications)
	}
}
